package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingLocalStore  = errors.New("local store is required")
	errMissingRemoteStore = errors.New("remote store is required")
	errMissingIdentity    = errors.New("identity provider is required")
	errMissingIDProvider  = errors.New("id provider is required")
	noOpLogger            = zap.NewNop()

	// ErrNotAuthenticated is returned when a remote-touching operation needs a
	// user identity and none is available.
	ErrNotAuthenticated = errors.New("activity: user not authenticated")
)

// RepositoryError carries a stable operation.reason code alongside the cause.
type RepositoryError struct {
	code string
	err  error
}

func (e *RepositoryError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *RepositoryError) Unwrap() error {
	return e.err
}

func (e *RepositoryError) Code() string {
	return e.code
}

const (
	opRepositoryNew = "activity.repository.new"
	opGetAll        = "activity.get_all"
	opGetByID       = "activity.get_by_id"
	opSave          = "activity.save"
	opUpdate        = "activity.update"
	opDelete        = "activity.delete"
	opSync          = "activity.sync"
)

func newRepositoryError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &RepositoryError{code: code, err: cause}
}

// LocalStore is the durable on-device record store. GetAll and GetByID filter
// tombstoned records; the *IncludingDeleted variants exist for the sync pass,
// which must see tombstones to retry queued deletes.
type LocalStore interface {
	ObserveAll(ctx context.Context) <-chan []Activity
	GetAll(ctx context.Context) ([]Activity, error)
	GetByID(ctx context.Context, id string) (*Activity, error)
	GetUnsynced(ctx context.Context) ([]Activity, error)
	GetByIDIncludingDeleted(ctx context.Context, id string) (*Activity, error)
	Insert(ctx context.Context, record Activity) error
	Update(ctx context.Context, record Activity) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}

// RemoteStore is the network-backed record store scoped by user identity.
// Failure causes are opaque; the repository reacts only to success or failure.
type RemoteStore interface {
	GetActivities(ctx context.Context, userID string) ([]Activity, error)
	SaveActivity(ctx context.Context, userID string, record Activity) error
	UpdateActivity(ctx context.Context, userID string, record Activity) error
	DeleteActivity(ctx context.Context, userID, id string) error
	SyncActivities(ctx context.Context, userID string, records []Activity) error
}

// IdentityProvider supplies the current user identifier, or an empty string
// when no user is signed in. The lookup may trigger an implicit sign-in.
type IdentityProvider interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// IDProvider issues unique, stable identifiers for new activities.
type IDProvider interface {
	NewID() (string, error)
}

// RepositoryConfig describes the collaborators behind the repository.
type RepositoryConfig struct {
	Local      LocalStore
	Remote     RemoteStore
	Identity   IdentityProvider
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Repository mediates between the local and remote stores: it decides per
// write whether an operation is local-only or must also propagate remotely,
// maintains per-record sync status, and runs the bulk reconciliation pass.
//
// Every public method writes the local store before any remote call, so
// observers always see the offline-first state immediately. Remote-touching
// read-modify-write sequences are serialized per record id to keep concurrent
// invocations from duplicating remote calls.
type Repository struct {
	local      LocalStore
	remote     RemoteStore
	identity   IdentityProvider
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRepository constructs the synchronization repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Local == nil {
		return nil, newRepositoryError(opRepositoryNew, "missing_local_store", errMissingLocalStore)
	}
	if cfg.Remote == nil {
		return nil, newRepositoryError(opRepositoryNew, "missing_remote_store", errMissingRemoteStore)
	}
	if cfg.Identity == nil {
		return nil, newRepositoryError(opRepositoryNew, "missing_identity_provider", errMissingIdentity)
	}

	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Repository{
		local:      cfg.Local,
		remote:     cfg.Remote,
		identity:   cfg.Identity,
		idProvider: idProvider,
		clock:      clock,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// ObserveActivities streams live snapshots of the local store. The stream
// never fails: storage glitches surface as an empty list, not a closed channel.
func (r *Repository) ObserveActivities(ctx context.Context) <-chan []Activity {
	source := r.local.ObserveAll(ctx)
	snapshots := make(chan []Activity, 1)
	go func() {
		defer close(snapshots)
		for snapshot := range source {
			if snapshot == nil {
				snapshot = []Activity{}
			}
			select {
			case snapshots <- snapshot:
			case <-ctx.Done():
				return
			}
		}
	}()
	return snapshots
}

// GetActivities returns all non-deleted activities, newest first.
func (r *Repository) GetActivities(ctx context.Context) ([]Activity, error) {
	records, err := r.local.GetAll(ctx)
	if err != nil {
		r.logError(opGetAll, "local_read_failed", err)
		return nil, newRepositoryError(opGetAll, "local_read_failed", err)
	}
	return records, nil
}

// GetActivitiesByStorage returns the non-deleted activities with the given
// storage intent, newest first.
func (r *Repository) GetActivitiesByStorage(ctx context.Context, storage StorageType) ([]Activity, error) {
	records, err := r.GetActivities(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]Activity, 0, len(records))
	for _, record := range records {
		if record.StorageType == storage {
			filtered = append(filtered, record)
		}
	}
	return filtered, nil
}

// GetActivityByID returns the activity with the given id, or nil when absent.
func (r *Repository) GetActivityByID(ctx context.Context, id string) (*Activity, error) {
	record, err := r.local.GetByID(ctx, id)
	if err != nil {
		r.logError(opGetByID, "local_read_failed", err, zap.String("activity_id", id))
		return nil, newRepositoryError(opGetByID, "local_read_failed", err)
	}
	return record, nil
}

// SaveActivity persists a new activity. LOCAL records are written once and
// marked SYNCED. REMOTE records land locally as PENDING first, then the remote
// write settles the status to SYNCED or ERROR; either way the record stays
// retrievable locally.
func (r *Repository) SaveActivity(ctx context.Context, record Activity) error {
	return r.writeActivity(ctx, opSave, record, r.local.Insert, r.remote.SaveActivity)
}

// UpdateActivity mutates an existing activity with the same local-first shape
// as SaveActivity. The record's storage intent is taken as passed in.
func (r *Repository) UpdateActivity(ctx context.Context, record Activity) error {
	return r.writeActivity(ctx, opUpdate, record, r.local.Update, r.remote.UpdateActivity)
}

func (r *Repository) writeActivity(
	ctx context.Context,
	operation string,
	record Activity,
	localWrite func(context.Context, Activity) error,
	remoteWrite func(context.Context, string, Activity) error,
) error {
	if record.ID == "" {
		id, err := r.idProvider.NewID()
		if err != nil {
			r.logError(operation, "id_generation_failed", err)
			return newRepositoryError(operation, "id_generation_failed", err)
		}
		record.ID = id
	}

	now := r.clock().UnixMilli()
	record.LastModified = now
	if record.CreatedAt == 0 {
		record.CreatedAt = now
	}

	switch record.StorageType {
	case StorageLocal:
		record.SyncStatus = StatusSynced
		if err := localWrite(ctx, record); err != nil {
			r.logError(operation, "local_write_failed", err, zap.String("activity_id", record.ID))
			return newRepositoryError(operation, "local_write_failed", err)
		}
		return nil

	case StorageRemote:
		unlock := r.lockRecord(record.ID)
		defer unlock()

		pending := record
		pending.SyncStatus = StatusPending
		if err := localWrite(ctx, pending); err != nil {
			r.logError(operation, "local_write_failed", err, zap.String("activity_id", record.ID))
			return newRepositoryError(operation, "local_write_failed", err)
		}

		userID, err := r.identity.CurrentUserID(ctx)
		if err != nil {
			r.logError(operation, "identity_lookup_failed", err, zap.String("activity_id", record.ID))
			return newRepositoryError(operation, "identity_lookup_failed", err)
		}
		if userID == "" {
			// The record stays PENDING locally; a later sync pass picks it up.
			return newRepositoryError(operation, "not_authenticated", ErrNotAuthenticated)
		}

		if remoteErr := remoteWrite(ctx, userID, record); remoteErr != nil {
			failed := record
			failed.SyncStatus = StatusError
			if err := r.local.Update(ctx, failed); err != nil {
				r.logError(operation, "status_update_failed", err, zap.String("activity_id", record.ID))
			}
			r.logError(operation, "remote_write_failed", remoteErr, zap.String("activity_id", record.ID))
			return newRepositoryError(operation, "remote_write_failed", remoteErr)
		}

		synced := record
		synced.SyncStatus = StatusSynced
		synced.UserID = userID
		if err := r.local.Update(ctx, synced); err != nil {
			r.logError(operation, "status_update_failed", err, zap.String("activity_id", record.ID))
			return newRepositoryError(operation, "status_update_failed", err)
		}
		return nil

	default:
		return newRepositoryError(operation, "unknown_storage_type",
			fmt.Errorf("storage type %q", record.StorageType))
	}
}

// DeleteActivity removes an activity. LOCAL (and unknown) ids delete directly
// and idempotently. REMOTE records are tombstoned first so list views hide
// them immediately; the physical local delete waits for remote confirmation.
// A failed remote delete is absorbed: the tombstone is durably queued for the
// next sync pass, so the call still succeeds.
func (r *Repository) DeleteActivity(ctx context.Context, id string) error {
	unlock := r.lockRecord(id)
	defer unlock()

	record, err := r.local.GetByID(ctx, id)
	if err != nil {
		r.logError(opDelete, "local_read_failed", err, zap.String("activity_id", id))
		return newRepositoryError(opDelete, "local_read_failed", err)
	}

	if record == nil || record.StorageType == StorageLocal {
		if err := r.local.Delete(ctx, id); err != nil {
			r.logError(opDelete, "local_delete_failed", err, zap.String("activity_id", id))
			return newRepositoryError(opDelete, "local_delete_failed", err)
		}
		return nil
	}

	userID, err := r.identity.CurrentUserID(ctx)
	if err != nil {
		r.logError(opDelete, "identity_lookup_failed", err, zap.String("activity_id", id))
		return newRepositoryError(opDelete, "identity_lookup_failed", err)
	}
	if userID == "" {
		// No remote counterpart reachable without an identity.
		if err := r.local.Delete(ctx, id); err != nil {
			r.logError(opDelete, "local_delete_failed", err, zap.String("activity_id", id))
			return newRepositoryError(opDelete, "local_delete_failed", err)
		}
		return nil
	}

	tombstone := *record
	tombstone.IsDeleted = true
	tombstone.SyncStatus = StatusPending
	tombstone.LastModified = r.clock().UnixMilli()
	if err := r.local.Update(ctx, tombstone); err != nil {
		r.logError(opDelete, "tombstone_write_failed", err, zap.String("activity_id", id))
		return newRepositoryError(opDelete, "tombstone_write_failed", err)
	}

	if remoteErr := r.remote.DeleteActivity(ctx, userID, id); remoteErr != nil {
		r.logger.Warn("remote delete failed, tombstone retained for next sync",
			zap.String("activity_id", id),
			zap.Error(remoteErr))
		return nil
	}

	if err := r.local.Delete(ctx, id); err != nil {
		r.logError(opDelete, "local_delete_failed", err, zap.String("activity_id", id))
		return newRepositoryError(opDelete, "local_delete_failed", err)
	}
	return nil
}

// SyncActivities runs one bulk reconciliation pass: outbound it drains every
// PENDING/ERROR record sequentially (uploading writes, replaying tombstoned
// deletes), inbound it merges the remote record set with last-write-wins by
// LastModified, local winning ties. Per-record failures are absorbed and left
// for the next pass; only a missing identity or a failed inbound fetch fails
// the call, and outbound work already done is never rolled back.
func (r *Repository) SyncActivities(ctx context.Context) error {
	userID, err := r.identity.CurrentUserID(ctx)
	if err != nil {
		r.logError(opSync, "identity_lookup_failed", err)
		return newRepositoryError(opSync, "identity_lookup_failed", err)
	}
	if userID == "" {
		return newRepositoryError(opSync, "not_authenticated", ErrNotAuthenticated)
	}

	unsynced, err := r.local.GetUnsynced(ctx)
	if err != nil {
		r.logError(opSync, "local_read_failed", err)
		return newRepositoryError(opSync, "local_read_failed", err)
	}

	for _, record := range unsynced {
		r.syncOutbound(ctx, userID, record)
	}

	remoteRecords, err := r.remote.GetActivities(ctx, userID)
	if err != nil {
		r.logError(opSync, "remote_fetch_failed", err)
		return newRepositoryError(opSync, "remote_fetch_failed", err)
	}

	for _, remoteRecord := range remoteRecords {
		r.mergeInbound(ctx, remoteRecord)
	}

	return nil
}

// syncOutbound retries one queued record. Failures are logged and left in
// place; the record stays PENDING/ERROR for the next pass.
func (r *Repository) syncOutbound(ctx context.Context, userID string, record Activity) {
	unlock := r.lockRecord(record.ID)
	defer unlock()

	if record.IsDeleted {
		if err := r.remote.DeleteActivity(ctx, userID, record.ID); err != nil {
			r.logger.Debug("outbound delete retry failed",
				zap.String("activity_id", record.ID), zap.Error(err))
			return
		}
		if err := r.local.Delete(ctx, record.ID); err != nil {
			r.logError(opSync, "local_delete_failed", err, zap.String("activity_id", record.ID))
		}
		return
	}

	if err := r.remote.SaveActivity(ctx, userID, record); err != nil {
		r.logger.Debug("outbound save retry failed",
			zap.String("activity_id", record.ID), zap.Error(err))
		return
	}
	synced := record
	synced.SyncStatus = StatusSynced
	synced.UserID = userID
	if err := r.local.Update(ctx, synced); err != nil {
		r.logError(opSync, "status_update_failed", err, zap.String("activity_id", record.ID))
	}
}

// mergeInbound applies one remote record with last-write-wins by LastModified.
// The tombstone-aware lookup keeps a queued local delete from being
// resurrected by a stale remote copy.
func (r *Repository) mergeInbound(ctx context.Context, remoteRecord Activity) {
	unlock := r.lockRecord(remoteRecord.ID)
	defer unlock()

	localRecord, err := r.local.GetByIDIncludingDeleted(ctx, remoteRecord.ID)
	if err != nil {
		r.logError(opSync, "local_read_failed", err, zap.String("activity_id", remoteRecord.ID))
		return
	}
	if localRecord != nil && remoteRecord.LastModified <= localRecord.LastModified {
		// Local is newer or equal: local wins ties.
		return
	}

	merged := remoteRecord
	merged.SyncStatus = StatusSynced
	merged.IsDeleted = false
	if err := r.local.Insert(ctx, merged); err != nil {
		r.logError(opSync, "local_write_failed", err, zap.String("activity_id", remoteRecord.ID))
	}
}

// lockRecord serializes remote-touching read-modify-write sequences for a
// single record id. Guards against duplicate remote calls when a sync pass
// overlaps a user write for the same record.
func (r *Repository) lockRecord(id string) func() {
	r.mu.Lock()
	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	r.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func (r *Repository) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("activity repository error", attrs...)
}
