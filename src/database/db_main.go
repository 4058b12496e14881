package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"agentorchestrator/src/database/migrations"
	"agentorchestrator/src/model"
)

// MainDB is the audit database, nil when persistence is disabled.
var MainDB *gorm.DB

// Dialector picks the driver from the URL scheme. mysql:// is stripped and
// the rest passed as a go-sql-driver DSN. Anything else is handed to sqlite.
func Dialector(url string) gorm.Dialector {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.Open(url)
	case strings.HasPrefix(url, "mysql://"):
		return mysql.Open(strings.TrimPrefix(url, "mysql://"))
	default:
		return sqlite.Open(url)
	}
}

// Open connects and migrates without touching MainDB.
func Open(config Config) (*gorm.DB, error) {
	db, err := gorm.Open(Dialector(config.DatabaseURL),
		&gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB from GORM: %w", err)
	}
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the audit tables and runs pending data migrations.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.CEODecisionRecord{},
		&model.TradeRecord{},
		&migrations.DataMigration{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations: %w", err)
	}
	return nil
}

// InitMainDB opens the audit database when ENABLE_DB is set. It returns
// (nil, nil) when persistence is disabled.
func InitMainDB() (*gorm.DB, error) {
	config := GetConfig()
	if !config.EnableDB {
		logrus.Info("[database] persistence disabled, audit trail is log-only")
		return nil, nil
	}

	db, err := Open(config)
	if err != nil {
		return nil, err
	}

	MainDB = db
	logrus.WithField("driver", db.Dialector.Name()).Info("[database] MainDB connection established")
	return db, nil
}
