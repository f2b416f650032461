package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

// ConnectDatabase opens (creating if necessary) the embedded sqlite store
// and sets the global DB. The agent is the only writer, so the sql pool
// is pinned to a single connection; WAL keeps status reads from blocking
// behind a long upsert transaction.
func ConnectDatabase(databasePath string) error {
	if dir := filepath.Dir(databasePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	var err error
	db, err = gorm.Open(sqlite.Open(databasePath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"), initConfig())
	if err != nil {
		return err
	}

	if sqlDB, derr := db.DB(); derr == nil && sqlDB != nil {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	log.Printf("connected to local database (path=%s)", databasePath)
	return nil
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: false,
		},
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}
