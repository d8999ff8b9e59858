// Package cloudstore is the server side of the remote activity collection:
// one logical document set per user, keyed by activity id, with
// last-write-wins reconciliation on the batch sync path.
package cloudstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sporttracker/sporttracker/internal/activity"
)

var (
	errMissingDatabase = errors.New("cloudstore: database connection required")
	// ErrMissingUserID indicates a call without a user scope.
	ErrMissingUserID = errors.New("cloudstore: user id required")
)

// Record is the persisted remote document. Documents are scoped by user and
// keyed by the activity id assigned on the device.
type Record struct {
	UserID          string               `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_remote_user_modified,priority:1"`
	ActivityID      string               `gorm:"column:activity_id;primaryKey;size:190;not null"`
	Name            string               `gorm:"column:name;not null"`
	Location        string               `gorm:"column:location;not null"`
	DurationMinutes int                  `gorm:"column:duration_minutes;not null"`
	Type            activity.Type        `gorm:"column:activity_type;size:32;not null"`
	StorageType     activity.StorageType `gorm:"column:storage_type;size:16;not null"`
	CreatedAt       int64                `gorm:"column:created_at;not null"`
	LastModified    int64                `gorm:"column:last_modified;not null;index:idx_remote_user_modified,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "remote_activities"
}

// ServiceConfig describes the dependencies for the cloud store service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider activity.IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service owns the remote collection. All operations are scoped to a user id.
type Service struct {
	db         *gorm.DB
	idProvider activity.IDProvider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService constructs the cloud store and ensures its schema is present.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if err := cfg.Database.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("cloudstore: migrate: %w", err)
	}

	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = activity.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{db: cfg.Database, idProvider: idProvider, clock: clock, logger: logger}, nil
}

// List returns every document owned by the user, most recently modified first.
func (s *Service) List(ctx context.Context, userID string) ([]activity.Activity, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	var records []Record
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_modified DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("cloudstore: list: %w", err)
	}

	activities := make([]activity.Activity, 0, len(records))
	for _, record := range records {
		activities = append(activities, record.toActivity())
	}
	return activities, nil
}

// Upsert stores the record with create-or-replace semantics keyed by activity
// id. A record arriving without an id is assigned one; the stored id is
// returned either way.
func (s *Service) Upsert(ctx context.Context, userID string, record activity.Activity) (string, error) {
	if userID == "" {
		return "", ErrMissingUserID
	}

	if record.ID == "" {
		id, err := s.idProvider.NewID()
		if err != nil {
			return "", fmt.Errorf("cloudstore: assign id: %w", err)
		}
		record.ID = id
	}
	if record.LastModified == 0 {
		record.LastModified = s.clock().UnixMilli()
	}

	stored := fromActivity(userID, record)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&stored).Error
	if err != nil {
		return "", fmt.Errorf("cloudstore: upsert: %w", err)
	}
	return record.ID, nil
}

// Delete removes the user's document with the given id. Absent ids succeed.
func (s *Service) Delete(ctx context.Context, userID, activityID string) error {
	if userID == "" {
		return ErrMissingUserID
	}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND activity_id = ?", userID, activityID).
		Delete(&Record{}).Error
	if err != nil {
		return fmt.Errorf("cloudstore: delete: %w", err)
	}
	return nil
}

// SyncBatch upserts a batch of records inside one transaction, applying
// last-write-wins by LastModified per record: an incoming record replaces the
// stored one only when strictly newer. Accepted counts how many won.
func (s *Service) SyncBatch(ctx context.Context, userID string, records []activity.Activity) (int, error) {
	if userID == "" {
		return 0, ErrMissingUserID
	}

	accepted := 0
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			if record.ID == "" {
				continue
			}

			var existing Record
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ? AND activity_id = ?", userID, record.ID).
				Take(&existing).Error
			if err == nil && record.LastModified <= existing.LastModified {
				continue
			}
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("cloudstore: batch select: %w", err)
			}

			stored := fromActivity(userID, record)
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&stored).Error; err != nil {
				return fmt.Errorf("cloudstore: batch upsert: %w", err)
			}
			accepted++
		}
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}

	s.logger.Debug("sync batch applied",
		zap.String("user_id", userID),
		zap.Int("received", len(records)),
		zap.Int("accepted", accepted))
	return accepted, nil
}

func (r Record) toActivity() activity.Activity {
	return activity.Activity{
		ID:              r.ActivityID,
		Name:            r.Name,
		Location:        r.Location,
		DurationMinutes: r.DurationMinutes,
		Type:            r.Type,
		StorageType:     r.StorageType,
		CreatedAt:       r.CreatedAt,
		LastModified:    r.LastModified,
		SyncStatus:      activity.StatusSynced,
		UserID:          r.UserID,
	}
}

func fromActivity(userID string, a activity.Activity) Record {
	return Record{
		UserID:          userID,
		ActivityID:      a.ID,
		Name:            a.Name,
		Location:        a.Location,
		DurationMinutes: a.DurationMinutes,
		Type:            a.Type,
		StorageType:     a.StorageType,
		CreatedAt:       a.CreatedAt,
		LastModified:    a.LastModified,
	}
}
