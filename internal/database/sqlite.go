package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/logolab/internal/workflow"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// TranslateError is enabled so unique-index violations surface as
// gorm.ErrDuplicatedKey, which the vote path relies on.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := dedupeVotesBeforeIndex(db); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&workflow.User{}, &workflow.Submission{}, &workflow.Vote{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// dedupeVotesBeforeIndex clears duplicate votes left by deployments that
// predate the unique voter index, keeping each user's earliest vote, so that
// AutoMigrate can create the index.
func dedupeVotesBeforeIndex(db *gorm.DB) error {
	if !db.Migrator().HasTable(&workflow.Vote{}) {
		return nil
	}
	return db.Exec(`DELETE FROM votes WHERE id NOT IN (
		SELECT min(id) FROM votes GROUP BY user_id
	);`).Error
}
