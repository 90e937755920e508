package repositories

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	gormlib "gorm.io/gorm"

	models "lora-osmnotes/gateway/internal/models/gorm"
)

// Deduplication parameters: reports from the same origin with the same
// normalized text, the same position rounded to 4 decimals (~11 m) and the
// same 120 s tumbling window count as one report.
const (
	DedupBucketSeconds = 120
	dedupPrecision     = 1e4
)

// ErrNotPending is returned by MarkSent when the row already left pending.
var ErrNotPending = errors.New("report is not pending")

// RoundCoord rounds half-away-from-zero to 4 decimal digits.
func RoundCoord(v float64) float64 {
	if v >= 0 {
		return math.Floor(v*dedupPrecision+0.5) / dedupPrecision
	}
	return math.Ceil(v*dedupPrecision-0.5) / dedupPrecision
}

// TimeBucket maps an instant to its 120 s dedup bucket.
func TimeBucket(t time.Time) int64 {
	return t.Unix() / DedupBucketSeconds
}

// NodeStats summarizes one origin's reports for #osmcount and #osmstatus.
type NodeStats struct {
	Total int64
	Today int64
	Queue int64
}

// ReportRepository handles the reports table.
type ReportRepository struct {
	db *gormlib.DB
}

func NewReportRepository(db *gormlib.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Append inserts a pending report and mints its queue id from the row id,
// zero-padded to width 4 and growing naturally past Q-9999. Atomic: the
// insert and the queue id assignment commit together.
func (r *ReportRepository) Append(ctx context.Context, origin string, lat, lon float64, textOriginal, textNormalized string, createdAt time.Time) (string, error) {
	var queueID string
	err := r.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		rep := &models.Report{
			Origin:         origin,
			CreatedAt:      createdAt,
			Lat:            lat,
			Lon:            lon,
			TextOriginal:   textOriginal,
			TextNormalized: textNormalized,
			Status:         models.StatusPending,
		}
		if err := tx.Create(rep).Error; err != nil {
			return err
		}
		queueID = FormatQueueID(rep.ID)
		return tx.Model(rep).UpdateColumn("queue_id", queueID).Error
	})
	if err != nil {
		return "", fmt.Errorf("append report: %w", err)
	}
	return queueID, nil
}

// FormatQueueID renders the human-readable queue token for a row id.
func FormatQueueID(id int64) string {
	return fmt.Sprintf("Q-%04d", id)
}

// GetByQueueID returns the report or nil when absent.
func (r *ReportRepository) GetByQueueID(ctx context.Context, queueID string) (*models.Report, error) {
	var rep models.Report
	err := r.db.WithContext(ctx).Where("queue_id = ?", queueID).First(&rep).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rep, nil
}

// MarkSent transitions pending -> sent. Fails with ErrNotPending if the row
// already left pending, so a concurrent immediate-send and flush tick cannot
// both claim the same report.
func (r *ReportRepository) MarkSent(ctx context.Context, queueID string, upstreamID int64, upstreamURL string, sentAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("queue_id = ? AND status = ?", queueID, models.StatusPending).
		Updates(map[string]interface{}{
			"status":       models.StatusSent,
			"upstream_id":  upstreamID,
			"upstream_url": upstreamURL,
			"sent_at":      sentAt,
		})
	if res.Error != nil {
		return fmt.Errorf("mark sent %s: %w", queueID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark sent %s: %w", queueID, ErrNotPending)
	}
	return nil
}

// RecordError stores the transient error tag from the last failed attempt.
// No status change.
func (r *ReportRepository) RecordError(ctx context.Context, queueID, tag string) error {
	return r.db.WithContext(ctx).Model(&models.Report{}).
		Where("queue_id = ?", queueID).
		UpdateColumn("last_error", tag).Error
}

// CheckDuplicate reports whether a row already exists with the same origin,
// normalized text, rounded position and dedup bucket. Rounding and bucket
// arithmetic run in Go so the check never depends on SQL time dialects.
func (r *ReportRepository) CheckDuplicate(ctx context.Context, origin, textNormalized string, latR, lonR float64, bucket int64) (bool, error) {
	var rows []models.Report
	err := r.db.WithContext(ctx).
		Select("lat", "lon", "created_at").
		Where("origin = ? AND text_normalized = ?", origin, textNormalized).
		Find(&rows).Error
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	for _, row := range rows {
		if RoundCoord(row.Lat) == latR && RoundCoord(row.Lon) == lonR && TimeBucket(row.CreatedAt) == bucket {
			return true, nil
		}
	}
	return false, nil
}

// PendingPage returns up to limit pending reports, oldest first.
func (r *ReportRepository) PendingPage(ctx context.Context, limit int) ([]models.Report, error) {
	var rows []models.Report
	err := r.db.WithContext(ctx).
		Where("status = ?", models.StatusPending).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// PendingBefore returns pending reports created strictly before t.
func (r *ReportRepository) PendingBefore(ctx context.Context, t time.Time) ([]models.Report, error) {
	var rows []models.Report
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.StatusPending, t).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// ShiftCreatedAt moves created_at by delta for the given rows. Used once per
// boot by the skew correction; the whole batch commits atomically.
func (r *ReportRepository) ShiftCreatedAt(ctx context.Context, ids []int64, delta time.Duration) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var shifted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		var rows []models.Report
		if err := tx.Select("id", "created_at").Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			res := tx.Model(&models.Report{}).
				Where("id = ?", row.ID).
				UpdateColumn("created_at", row.CreatedAt.Add(delta))
			if res.Error != nil {
				return res.Error
			}
			shifted += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("shift created_at: %w", err)
	}
	return shifted, nil
}

// UnannouncedSent returns sent rows whose origin was not yet told, oldest
// sent first.
func (r *ReportRepository) UnannouncedSent(ctx context.Context) ([]models.Report, error) {
	var rows []models.Report
	err := r.db.WithContext(ctx).
		Where("status = ? AND notified_sent = ?", models.StatusSent, false).
		Order("sent_at ASC").
		Find(&rows).Error
	return rows, err
}

// MarkAnnounced flags the row so its promotion ack is never re-attempted.
func (r *ReportRepository) MarkAnnounced(ctx context.Context, queueID string) error {
	return r.db.WithContext(ctx).Model(&models.Report{}).
		Where("queue_id = ?", queueID).
		UpdateColumn("notified_sent", true).Error
}

// Stats returns per-origin counters. "Today" is bounded by midnight in the
// display timezone.
func (r *ReportRepository) Stats(ctx context.Context, origin string, now time.Time, loc *time.Location) (NodeStats, error) {
	var stats NodeStats

	if err := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("origin = ?", origin).
		Count(&stats.Total).Error; err != nil {
		return stats, err
	}

	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).UTC()
	if err := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("origin = ? AND created_at >= ?", origin, dayStart).
		Count(&stats.Today).Error; err != nil {
		return stats, err
	}

	if err := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("origin = ? AND status = ?", origin, models.StatusPending).
		Count(&stats.Queue).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

// RecentByOrigin returns the origin's newest reports for #osmlist.
func (r *ReportRepository) RecentByOrigin(ctx context.Context, origin string, limit int) ([]models.Report, error) {
	var rows []models.Report
	err := r.db.WithContext(ctx).
		Where("origin = ?", origin).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Recent returns the newest reports across origins for the dashboard.
func (r *ReportRepository) Recent(ctx context.Context, limit int) ([]models.Report, error) {
	var rows []models.Report
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// TotalPending counts the whole queue across origins.
func (r *ReportRepository) TotalPending(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("status = ?", models.StatusPending).
		Count(&n).Error
	return n, err
}

// SentCountByOrigin backs the every-5th-success privacy reminder.
func (r *ReportRepository) SentCountByOrigin(ctx context.Context, origin string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("origin = ? AND status = ?", origin, models.StatusSent).
		Count(&n).Error
	return n, err
}
