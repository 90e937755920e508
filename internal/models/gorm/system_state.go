package gorm

import "time"

// SystemState is a single-row table used by the flush worker for the
// clock-skew correction and the daily broadcast bookkeeping.
type SystemState struct {
	ID                    int64     `gorm:"column:id;primaryKey"`
	BootWallclock         time.Time `gorm:"column:boot_wallclock"`
	TimeCorrectionApplied bool      `gorm:"column:time_correction_applied;not null;default:false"`
	LastBroadcastDate     string    `gorm:"column:last_broadcast_date;type:varchar(10)"`
}

// TableName specifies the table name for GORM
func (SystemState) TableName() string {
	return "system_state"
}
