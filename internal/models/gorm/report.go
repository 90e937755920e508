package gorm

import "time"

// Report status lifecycle. A report only ever moves pending -> sent.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

// Report is a persisted user report awaiting (or past) upstream publication.
// Once written, origin, coordinates, text and queue id never change; only the
// status fields, and created_at during the one-shot skew correction, may.
type Report struct {
	ID             int64      `gorm:"column:id;primaryKey;autoIncrement"`
	QueueID        string     `gorm:"column:queue_id;uniqueIndex;type:varchar(16)"`
	Origin         string     `gorm:"column:origin;index;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;index;not null"`
	Lat            float64    `gorm:"column:lat;not null"`
	Lon            float64    `gorm:"column:lon;not null"`
	TextOriginal   string     `gorm:"column:text_original;not null"`
	TextNormalized string     `gorm:"column:text_normalized;not null"`
	Status         string     `gorm:"column:status;index;not null;default:pending"`
	UpstreamID     *int64     `gorm:"column:upstream_id"`
	UpstreamURL    *string    `gorm:"column:upstream_url"`
	SentAt         *time.Time `gorm:"column:sent_at"`
	LastError      *string    `gorm:"column:last_error"`
	NotifiedSent   bool       `gorm:"column:notified_sent;not null;default:false"`
}

// TableName specifies the table name for GORM
func (Report) TableName() string {
	return "reports"
}
