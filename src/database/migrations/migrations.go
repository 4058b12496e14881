package migrations

import (
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DataMigration is one row per applied data migration.
type DataMigration struct {
	ID        string    `gorm:"primaryKey;size:200;column:id"`
	AppliedAt time.Time `gorm:"not null;column:applied_at"`
}

func (DataMigration) TableName() string { return "data_migrations" }

// Migration is a data change that schema auto-migration cannot express.
type Migration struct {
	ID string
	Up func(tx *gorm.DB) error
}

// All lists the data migrations in apply order. IDs are stable; append only.
var All = []Migration{
	{
		ID: "00001_index_ceo_decisions_session_time",
		Up: func(tx *gorm.DB) error {
			// mysql has no CREATE INDEX IF NOT EXISTS
			if tx.Migrator().HasIndex("ceo_decisions", "idx_ceo_decisions_session_decided") {
				return nil
			}
			return tx.Exec("CREATE INDEX idx_ceo_decisions_session_decided ON ceo_decisions (session_id, decided_at)").Error
		},
	},
	{
		// trades journaled with an error message but an empty status
		ID: "00002_backfill_trade_error_status",
		Up: func(tx *gorm.DB) error {
			return tx.Exec("UPDATE trade_records SET status = ? WHERE error_message IS NOT NULL AND (status IS NULL OR status = '')", "error").Error
		},
	},
}

// Run applies every migration in All that has not been recorded yet.
func Run(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	if err := db.AutoMigrate(&DataMigration{}); err != nil {
		return fmt.Errorf("ensure data migrations table: %w", err)
	}

	for _, m := range All {
		applied, err := apply(db, m)
		if err != nil {
			return err
		}
		if applied {
			logger.WithField("migration", m.ID).Info("Applied data migration")
		}
	}
	return nil
}

// apply runs m inside a transaction and records it only when Up succeeds.
func apply(db *gorm.DB, m Migration) (bool, error) {
	if m.ID == "" || m.Up == nil {
		return false, fmt.Errorf("invalid migration %q", m.ID)
	}

	applied := false
	err := db.Transaction(func(tx *gorm.DB) error {
		var existing DataMigration
		err := tx.Where("id = ?", m.ID).Take(&existing).Error
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("check migration %q: %w", m.ID, err)
		}

		if err := m.Up(tx); err != nil {
			return fmt.Errorf("run migration %q: %w", m.ID, err)
		}
		if err := tx.Create(&DataMigration{ID: m.ID, AppliedAt: time.Now().UTC()}).Error; err != nil {
			return fmt.Errorf("record migration %q: %w", m.ID, err)
		}
		applied = true
		return nil
	})
	return applied, err
}
