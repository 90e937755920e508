package repositories

import (
	"context"
	"errors"

	gormlib "gorm.io/gorm"
	"gorm.io/gorm/clause"

	models "lora-osmnotes/gateway/internal/models/gorm"
)

// LanguageRepository stores per-origin reply language preferences (#osmlang).
type LanguageRepository struct {
	db *gormlib.DB
}

func NewLanguageRepository(db *gormlib.DB) *LanguageRepository {
	return &LanguageRepository{db: db}
}

// Get returns the origin's preferred language, empty when unset.
func (r *LanguageRepository) Get(ctx context.Context, origin string) (string, error) {
	var row models.UserLanguage
	err := r.db.WithContext(ctx).Where("origin = ?", origin).First(&row).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return row.Language, nil
}

// Set upserts the origin's preference.
func (r *LanguageRepository) Set(ctx context.Context, origin, language string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "origin"}},
			DoUpdates: clause.AssignmentColumns([]string{"language"}),
		}).
		Create(&models.UserLanguage{Origin: origin, Language: language}).Error
}
