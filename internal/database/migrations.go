package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/logolab/internal/workflow"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillDisplayNames = "2026-08-10_backfill_missing_display_names"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillDisplayNames, apply: backfillMissingDisplayNames},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Rows created via the make-moderator path before display names were threaded
// through carried empty names; fall back to the platform id.
func backfillMissingDisplayNames(db *gorm.DB) error {
	return db.Model(&workflow.User{}).
		Where("display_name = ''").
		Update("display_name", gorm.Expr("platform_id")).Error
}
