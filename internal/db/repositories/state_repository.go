package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	gormlib "gorm.io/gorm"

	models "lora-osmnotes/gateway/internal/models/gorm"
)

const systemStateID = 1

// StateRepository manages the single-row system_state table.
type StateRepository struct {
	db *gormlib.DB
}

func NewStateRepository(db *gormlib.DB) *StateRepository {
	return &StateRepository{db: db}
}

// EnsureBoot records this boot's wallclock and re-arms the one-shot skew
// correction. Called exactly once during startup.
func (r *StateRepository) EnsureBoot(ctx context.Context, bootWallclock time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		var st models.SystemState
		err := tx.First(&st, systemStateID).Error
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return tx.Create(&models.SystemState{
				ID:            systemStateID,
				BootWallclock: bootWallclock,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&st).UpdateColumns(map[string]interface{}{
			"boot_wallclock":          bootWallclock,
			"time_correction_applied": false,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("record boot state: %w", err)
	}
	return nil
}

// Load returns the system state row.
func (r *StateRepository) Load(ctx context.Context) (*models.SystemState, error) {
	var st models.SystemState
	if err := r.db.WithContext(ctx).First(&st, systemStateID).Error; err != nil {
		return nil, fmt.Errorf("load system state: %w", err)
	}
	return &st, nil
}

// SetTimeCorrectionApplied flags the skew correction as done for this boot.
func (r *StateRepository) SetTimeCorrectionApplied(ctx context.Context, applied bool) error {
	return r.db.WithContext(ctx).Model(&models.SystemState{}).
		Where("id = ?", systemStateID).
		UpdateColumn("time_correction_applied", applied).Error
}

// LastBroadcastDate returns the YYYY-MM-DD of the last daily broadcast,
// empty when none was ever sent.
func (r *StateRepository) LastBroadcastDate(ctx context.Context) (string, error) {
	st, err := r.Load(ctx)
	if err != nil {
		return "", err
	}
	return st.LastBroadcastDate, nil
}

// SetLastBroadcastDate persists the day of the daily broadcast so restarts
// do not re-advertise.
func (r *StateRepository) SetLastBroadcastDate(ctx context.Context, date string) error {
	return r.db.WithContext(ctx).Model(&models.SystemState{}).
		Where("id = ?", systemStateID).
		UpdateColumn("last_broadcast_date", date).Error
}
