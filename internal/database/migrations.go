package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sporttracker/sporttracker/internal/activity"
)

const migrationRepairLocalTombstones = "2026-05-12_repair_local_tombstones"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRepairLocalTombstones, apply: repairLocalTombstones},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// repairLocalTombstones clears tombstone flags on LOCAL records. Tombstones
// only ever apply to REMOTE records awaiting a remote delete; earlier builds
// could leave LOCAL rows hidden this way.
func repairLocalTombstones(db *gorm.DB) error {
	return db.Model(&activity.Activity{}).
		Where("storage_type = ? AND is_deleted = ?", activity.StorageLocal, true).
		Updates(map[string]interface{}{
			"is_deleted":  false,
			"sync_status": activity.StatusSynced,
		}).Error
}
