package config

import (
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Dialector picks the gorm driver from the scheme of the database URL.
// postgres:// and postgresql:// go to Postgres, mysql:// to MySQL (the scheme is
// stripped to the DSN the MySQL driver expects) and sqlite:// or file: to SQLite.
func Dialector(databaseURL string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgres.Open(databaseURL), nil
	case strings.HasPrefix(databaseURL, "mysql://"):
		return mysql.Open(strings.TrimPrefix(databaseURL, "mysql://")), nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(databaseURL, "sqlite://")), nil
	case strings.HasPrefix(databaseURL, "file:"), databaseURL == ":memory:":
		return sqlite.Open(databaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported database url scheme: %q", redact(databaseURL))
	}
}

// ConnectDatabase establishes a connection to the configured database
func ConnectDatabase(databaseURL string, debug bool) error {
	dialector, err := Dialector(databaseURL)
	if err != nil {
		return err
	}

	gormConfig := &gorm.Config{}
	if !debug {
		gormConfig.Logger = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	DB, err = gorm.Open(dialector, gormConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// SetDB sets the database instance (primarily for testing)
func SetDB(db *gorm.DB) {
	DB = db
}

func redact(databaseURL string) string {
	if i := strings.Index(databaseURL, "://"); i >= 0 {
		return databaseURL[:i+3] + "..."
	}
	return "..."
}
