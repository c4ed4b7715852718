package sqlite

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jakechorley/shift-roster/pkg/db"
)

// DB is an embedded single-file store for local runs and tests
type DB struct {
	gorm *gorm.DB
}

var (
	_ db.Database = (*DB)(nil)
	_ db.Tx       = (*store)(nil)
)

// Open opens (creating if needed) the sqlite database at path and migrates
// its schema. Use ":memory:" for a throwaway database.
func Open(path string) (*DB, error) {
	g, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := g.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases alive
	sqlDB.SetMaxOpenConns(1)

	if err := g.AutoMigrate(allModels...); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
	}

	return &DB{gorm: g}, nil
}

// RunInTx runs fn inside a single transaction, rolling back when it fails
func (d *DB) RunInTx(ctx context.Context, fn func(tx db.Tx) error) error {
	return d.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&store{db: tx})
	})
}

func (d *DB) Close() {
	if sqlDB, err := d.gorm.DB(); err == nil {
		sqlDB.Close()
	}
}
