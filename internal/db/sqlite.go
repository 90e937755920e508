package db

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	gormlib "gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "lora-osmnotes/gateway/internal/models/gorm"
)

// OpenSQLite opens (creating directories as needed) the single-file database
// and migrates the schema. The connection pool is pinned to one connection so
// every write is serialized by construction.
func OpenSQLite(path string) (*gormlib.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000", path)
	gdb, err := gormlib.Open(sqlite.Open(dsn), &gormlib.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("access sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// Migrate ensures the schema exists. Exposed separately for tests that open
// in-memory databases.
func Migrate(gdb *gormlib.DB) error {
	if err := gdb.AutoMigrate(
		&models.Report{},
		&models.SystemState{},
		&models.UserLanguage{},
	); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
