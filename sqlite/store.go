// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

// Package sqlite provides a counter store in a local SQLite database,
// using gorm and a pure-Go SQLite driver.  This is useful for
// single-host deployments and for tests that want a real SQL engine
// without an external server.
package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/diffeo/go-counter/counter"
)

// counterRow is the gorm model for one counter.
type counterRow struct {
	ID          string `gorm:"primaryKey"`
	Value       int64  `gorm:"not null"`
	CreatedAt   time.Time
	LastUpdated time.Time
	LastUser    string `gorm:"not null;default:''"`
	Version     int64  `gorm:"not null"`
}

func (counterRow) TableName() string {
	return "counter"
}

func (row counterRow) record() counter.Record {
	return counter.Record{
		ID:          row.ID,
		Value:       row.Value,
		CreatedAt:   row.CreatedAt,
		LastUpdated: row.LastUpdated,
		LastUser:    row.LastUser,
		Version:     row.Version,
	}
}

type sqliteStore struct {
	db *gorm.DB
}

// New opens (creating if needed) a SQLite database at dsn and makes
// sure the counter table exists.  dsn is a file name, optionally with
// a "file:" prefix and query parameters; ":memory:" gives a private
// in-memory database.
func New(dsn string) (counter.Store, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite")
	}
	// Every connection to ":memory:" is a different database, and
	// SQLite only has one writer anyway.
	sqlDB.SetMaxOpenConns(1)
	if !strings.Contains(dsn, ":memory:") {
		if err := db.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
			logrus.WithFields(logrus.Fields{
				"dsn": dsn,
			}).WithError(err).Warn("Could not enable SQLite write-ahead logging")
		}
	}

	err = db.AutoMigrate(&counterRow{})
	if err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "migrating sqlite schema")
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (counter.Record, error) {
	var row counterRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return counter.Record{}, counter.ErrNoSuchCounter{ID: id}
	}
	if err != nil {
		return counter.Record{}, errors.Wrapf(err, "fetching counter %q", id)
	}
	return row.record(), nil
}

func (s *sqliteStore) Put(ctx context.Context, rec counter.Record) (counter.Record, error) {
	stored := rec
	stored.Version++
	row := counterRow{
		ID:          stored.ID,
		Value:       stored.Value,
		CreatedAt:   stored.CreatedAt,
		LastUpdated: stored.LastUpdated,
		LastUser:    stored.LastUser,
		Version:     stored.Version,
	}

	var result *gorm.DB
	db := s.db.WithContext(ctx)
	if rec.Version == 0 {
		result = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	} else {
		result = db.Model(&counterRow{}).
			Where("id = ? AND version = ?", rec.ID, rec.Version).
			Updates(map[string]interface{}{
				"value":        row.Value,
				"last_updated": row.LastUpdated,
				"last_user":    row.LastUser,
				"version":      row.Version,
			})
	}
	if result.Error != nil {
		return counter.Record{}, errors.Wrapf(result.Error, "writing counter %q", rec.ID)
	}
	if result.RowsAffected == 0 {
		return counter.Record{}, counter.ErrConflict
	}
	return stored, nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&counterRow{})
	if result.Error != nil {
		return errors.Wrapf(result.Error, "deleting counter %q", id)
	}
	if result.RowsAffected == 0 {
		return counter.ErrNoSuchCounter{ID: id}
	}
	return nil
}

func (s *sqliteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
