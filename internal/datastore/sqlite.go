// Package datastore persists per-split training results.
package datastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/seld-go/internal/errors"
	"github.com/tphakala/seld-go/internal/logger"
)

// DefaultSlowQueryThreshold marks queries logged as slow.
const DefaultSlowQueryThreshold = 200 * time.Millisecond

// Store is the interface the training loop writes results through.
type Store interface {
	SaveSplitResult(ctx context.Context, result *SplitResult) error
	SplitResults(ctx context.Context, uniqueName string) ([]SplitResult, error)
	Close() error
}

// SQLiteStore keeps results in a single SQLite file.
type SQLiteStore struct {
	DB   *gorm.DB
	path string
}

// OpenSQLite opens or creates the database at path and migrates the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, dbError(fmt.Errorf("create database directory: %w", err), "open")
		}
	}

	gormLogger := logger.NewGormLoggerAdapter(GetLogger(), DefaultSlowQueryThreshold)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, dbError(fmt.Errorf("failed to open SQLite database: %w", err), "open")
	}

	store := &SQLiteStore{DB: db, path: path}
	if err := store.migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	start := time.Now()
	if err := s.DB.AutoMigrate(&SplitResult{}, &EpochRecord{}); err != nil {
		return dbError(fmt.Errorf("failed to auto-migrate SQLite database: %w", err), "migrate")
	}
	GetLogger().Debug("database migrated",
		logger.String("path", s.path),
		logger.Duration("duration", time.Since(start)))
	return nil
}

// SaveSplitResult inserts result together with its epoch records.
func (s *SQLiteStore) SaveSplitResult(ctx context.Context, result *SplitResult) error {
	if s.DB == nil {
		return dbError(fmt.Errorf("database connection is not initialized"), "save")
	}
	if err := s.DB.WithContext(ctx).Create(result).Error; err != nil {
		return dbError(fmt.Errorf("save split result %s: %w", result.UniqueName, err), "save")
	}
	GetLogger().Info("split result stored",
		logger.String("unique_name", result.UniqueName),
		logger.Int("epochs", len(result.EpochRecords)))
	return nil
}

// SplitResults returns every stored run of uniqueName, oldest first.
func (s *SQLiteStore) SplitResults(ctx context.Context, uniqueName string) ([]SplitResult, error) {
	var results []SplitResult
	err := s.DB.WithContext(ctx).
		Preload("EpochRecords", func(db *gorm.DB) *gorm.DB { return db.Order("epoch ASC") }).
		Where("unique_name = ?", uniqueName).
		Order("id ASC").
		Find(&results).Error
	if err != nil {
		return nil, dbError(fmt.Errorf("query split results %s: %w", uniqueName, err), "query")
	}
	return results, nil
}

// Close releases the underlying connection pool.
func (s *SQLiteStore) Close() error {
	if s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return dbError(err, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	return nil
}

func dbError(err error, operation string) error {
	return errors.New(err).
		Category(errors.CategoryDatabase).
		Component("datastore").
		Context("operation", operation).
		Build()
}
