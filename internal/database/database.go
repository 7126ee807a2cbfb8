package database

import (
	"os"
	"path/filepath"
	"sync"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/priyxstudio/fwauth/internal/models"
)

var (
	mu       sync.RWMutex
	instance *gorm.DB
)

// Open opens the SQLite database at path and migrates the schema. Pass
// ":memory:" for a private in-memory database.
func Open(path string) (*gorm.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, errors.Wrap(err, "database: failed to create database directory")
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.WithDetails(errors.Wrap(err, "database: failed to open"), "path", path)
	}

	// SQLite only supports one writer, and every connection to ":memory:"
	// would otherwise see its own empty database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "database: failed to get underlying connection")
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.FirewallRule{}, &models.Authorization{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "database: failed to migrate schema")
	}
	return db, nil
}

// Initialize opens the database at path and stores it as the process wide
// instance.
func Initialize(path string) error {
	db, err := Open(path)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		if sqlDB, err := instance.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	instance = db
	log.WithField("path", path).Debug("opened local database")
	return nil
}

// Instance returns the database opened by Initialize.
func Instance() *gorm.DB {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		panic("database: Instance called before Initialize")
	}
	return instance
}

// Close closes the process wide instance, if one is open.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		return nil
	}
	sqlDB, err := instance.DB()
	if err != nil {
		return err
	}
	instance = nil
	return sqlDB.Close()
}
