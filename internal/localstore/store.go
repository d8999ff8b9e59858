// Package localstore implements the on-device activity store on GORM/SQLite.
// Read paths hide tombstoned rows and order newest first; every mutating write
// re-publishes a snapshot to all ObserveAll subscribers.
package localstore

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sporttracker/sporttracker/internal/activity"
)

var errMissingDatabase = errors.New("localstore: database handle is required")

// Store is the durable local activity store. It implements
// [activity.LocalStore].
type Store struct {
	db     *gorm.DB
	logger *zap.Logger

	mu          sync.Mutex
	subscribers map[int]chan []activity.Activity
	nextID      int
}

// New constructs a Store over an opened database handle.
func New(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:          db,
		logger:      logger,
		subscribers: make(map[int]chan []activity.Activity),
	}, nil
}

// ObserveAll returns a live stream of activity snapshots. The current snapshot
// is delivered on subscribe and again after every mutating write. Slow
// consumers only ever see the latest snapshot; intermediate ones are dropped.
// The channel closes when ctx is cancelled.
func (s *Store) ObserveAll(ctx context.Context) <-chan []activity.Activity {
	snapshots := make(chan []activity.Activity, 1)
	initial := s.snapshot(ctx)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = snapshots
	deliver(snapshots, initial)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subscribers, id)
		close(snapshots)
		s.mu.Unlock()
	}()

	return snapshots
}

// GetAll returns all non-deleted activities ordered by creation time, newest
// first.
func (s *Store) GetAll(ctx context.Context) ([]activity.Activity, error) {
	var records []activity.Activity
	err := s.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetByID returns the non-deleted activity with the given id, or nil when it
// is absent or tombstoned.
func (s *Store) GetByID(ctx context.Context, id string) (*activity.Activity, error) {
	var record activity.Activity
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", id, false).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetUnsynced returns every record awaiting reconciliation (PENDING or ERROR),
// including tombstones queued for remote deletion.
func (s *Store) GetUnsynced(ctx context.Context) ([]activity.Activity, error) {
	var records []activity.Activity
	err := s.db.WithContext(ctx).
		Where("sync_status IN ?", []activity.SyncStatus{activity.StatusPending, activity.StatusError}).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// GetByIDIncludingDeleted looks a record up without the tombstone filter.
func (s *Store) GetByIDIncludingDeleted(ctx context.Context, id string) (*activity.Activity, error) {
	var record activity.Activity
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Insert writes a record with replace-on-conflict semantics keyed by id.
func (s *Store) Insert(ctx context.Context, record activity.Activity) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error
	if err != nil {
		return err
	}
	s.notify(ctx)
	return nil
}

// Update rewrites an existing record in full. A missing row is written anew;
// single-record upsert is the only atomicity the store guarantees.
func (s *Store) Update(ctx context.Context, record activity.Activity) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error
	if err != nil {
		return err
	}
	s.notify(ctx)
	return nil
}

// Delete physically removes the record with the given id. Deleting an absent
// id succeeds.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&activity.Activity{}).Error
	if err != nil {
		return err
	}
	s.notify(ctx)
	return nil
}

// DeleteAll removes every record, tombstoned or not.
func (s *Store) DeleteAll(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&activity.Activity{}).Error
	if err != nil {
		return err
	}
	s.notify(ctx)
	return nil
}

// snapshot reads the current observable record set. Read errors degrade to an
// empty snapshot so observers never see the stream fail.
func (s *Store) snapshot(ctx context.Context) []activity.Activity {
	records, err := s.GetAll(ctx)
	if err != nil {
		s.logger.Error("snapshot read failed", zap.Error(err))
		return []activity.Activity{}
	}
	if records == nil {
		records = []activity.Activity{}
	}
	return records
}

func (s *Store) notify(ctx context.Context) {
	s.mu.Lock()
	subscribed := len(s.subscribers) > 0
	s.mu.Unlock()
	if !subscribed {
		return
	}

	snapshot := s.snapshot(ctx)

	// Delivery happens under the lock so a cancelled subscriber's channel is
	// never written after it closes. Sends are non-blocking.
	s.mu.Lock()
	for _, subscriber := range s.subscribers {
		deliver(subscriber, snapshot)
	}
	s.mu.Unlock()
}

// deliver replaces any undelivered snapshot with the latest one.
func deliver(subscriber chan []activity.Activity, snapshot []activity.Activity) {
	for {
		select {
		case subscriber <- snapshot:
			return
		default:
		}
		select {
		case <-subscriber:
		default:
		}
	}
}
