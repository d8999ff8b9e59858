package activity

import (
	"errors"
	"fmt"
	"strings"
)

// StorageType is the storage intent chosen at creation time. It is fixed for
// the lifetime of a record: LOCAL records never leave the device.
type StorageType string

const (
	// StorageLocal keeps the record on-device only.
	StorageLocal StorageType = "LOCAL"
	// StorageRemote requires eventual presence in the remote store.
	StorageRemote StorageType = "REMOTE"
)

// SyncStatus tracks where a record stands relative to the remote store.
type SyncStatus string

const (
	// StatusSynced means the record matches its remote counterpart (or is LOCAL).
	StatusSynced SyncStatus = "SYNCED"
	// StatusPending means a remote write is in flight or queued for retry.
	StatusPending SyncStatus = "PENDING"
	// StatusError means the last remote attempt failed; retried on the next sync pass.
	StatusError SyncStatus = "ERROR"
)

// Type enumerates the supported activity categories.
type Type string

const (
	TypeRunning  Type = "RUNNING"
	TypeCycling  Type = "CYCLING"
	TypeWalking  Type = "WALKING"
	TypeSwimming Type = "SWIMMING"
	TypeGym      Type = "GYM"
	TypeHiking   Type = "HIKING"
	TypeYoga     Type = "YOGA"
	TypeOther    Type = "OTHER"
)

// TypeDescriptor carries the presentation metadata for an activity type. The
// tag itself stays free of presentation concerns; callers look the rest up here.
type TypeDescriptor struct {
	Label           string
	DefaultDuration int
}

var typeDescriptors = map[Type]TypeDescriptor{
	TypeRunning:  {Label: "Running", DefaultDuration: 30},
	TypeCycling:  {Label: "Cycling", DefaultDuration: 45},
	TypeWalking:  {Label: "Walking", DefaultDuration: 60},
	TypeSwimming: {Label: "Swimming", DefaultDuration: 30},
	TypeGym:      {Label: "Gym", DefaultDuration: 60},
	TypeHiking:   {Label: "Hiking", DefaultDuration: 120},
	TypeYoga:     {Label: "Yoga", DefaultDuration: 45},
	TypeOther:    {Label: "Other", DefaultDuration: 30},
}

// Types lists every supported activity type in display order.
func Types() []Type {
	return []Type{
		TypeRunning, TypeCycling, TypeWalking, TypeSwimming,
		TypeGym, TypeHiking, TypeYoga, TypeOther,
	}
}

// Descriptor returns the display metadata for the type. Unknown tags fall back
// to the OTHER descriptor.
func (t Type) Descriptor() TypeDescriptor {
	if descriptor, ok := typeDescriptors[t]; ok {
		return descriptor
	}
	return typeDescriptors[TypeOther]
}

// ErrUnknownType indicates an activity type outside the supported set.
var ErrUnknownType = errors.New("activity: unknown activity type")

// ParseType maps raw input onto a supported activity type.
func ParseType(rawInput string) (Type, error) {
	candidate := Type(strings.ToUpper(strings.TrimSpace(rawInput)))
	if _, ok := typeDescriptors[candidate]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, rawInput)
	}
	return candidate, nil
}

const maxIdentifierLength = 190

var (
	// ErrInvalidActivityID indicates that an activity identifier is empty or exceeds storage bounds.
	ErrInvalidActivityID = errors.New("activity: invalid activity id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("activity: invalid user id")
)

// ActivityID represents a validated activity identifier.
type ActivityID string

// NewActivityID validates raw input and returns an ActivityID.
func NewActivityID(rawInput string) (ActivityID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidActivityID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidActivityID, maxIdentifierLength)
	}
	return ActivityID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ActivityID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Activity models the persisted sport activity with synchronization metadata.
// Timestamps are milliseconds since epoch; LastModified is rewritten on every
// mutating operation and drives last-write-wins reconciliation.
type Activity struct {
	ID              string      `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Name            string      `gorm:"column:name;not null" json:"name"`
	Location        string      `gorm:"column:location;not null" json:"location"`
	DurationMinutes int         `gorm:"column:duration_minutes;not null" json:"duration_minutes"`
	Type            Type        `gorm:"column:activity_type;size:32;not null" json:"activity_type"`
	StorageType     StorageType `gorm:"column:storage_type;size:16;not null" json:"storage_type"`
	CreatedAt       int64       `gorm:"column:created_at;not null;index:idx_activities_created" json:"created_at"`
	LastModified    int64       `gorm:"column:last_modified;not null" json:"last_modified"`
	SyncStatus      SyncStatus  `gorm:"column:sync_status;size:16;not null" json:"sync_status"`
	IsDeleted       bool        `gorm:"column:is_deleted;not null;default:false" json:"is_deleted"`
	UserID          string      `gorm:"column:user_id;size:190" json:"user_id,omitempty"`
}

// TableName provides the explicit table binding for GORM.
func (Activity) TableName() string {
	return "activities"
}
