// Package stores provides persistent storage for gateway instance records
// and their lifecycle event history.
package stores

import (
	"context"
	"time"
)

// Instance is one managed gateway deployment as tracked by the registry.
// There is at most one instance per (profile, target kind) pair.
type Instance struct {
	// ID is the deterministic instance identifier.
	ID string

	// Profile is the profile name the instance was created for.
	Profile string

	// TargetKind is the deployment target kind (local, kubernetes, ...).
	TargetKind string

	// State is the last observed lifecycle state.
	State string

	// Endpoint is the last known gateway endpoint URL, if any.
	Endpoint string

	// ConfigHash fingerprints the last applied configuration.
	ConfigHash string

	// Version is the installed gateway version, if known.
	Version string

	// CreatedAt is when the instance record was created.
	CreatedAt time.Time

	// UpdatedAt is when the instance record was last modified.
	UpdatedAt time.Time
}

// Event records one lifecycle operation against an instance.
type Event struct {
	// ID is the auto-assigned event row ID.
	ID int64

	// InstanceID references the instance the event belongs to.
	InstanceID string

	// Operation is the lifecycle operation name (install, start, ...).
	Operation string

	// Success records whether the operation succeeded.
	Success bool

	// Detail carries a human-readable message or error text.
	Detail string

	// CreatedAt is when the event was recorded.
	CreatedAt time.Time
}

// Store is the persistence interface for the instance registry.
type Store interface {
	// Init initializes the backing database.
	Init(ctx context.Context) error

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	// Close releases the database connection.
	Close() error

	// UpsertInstance creates or replaces an instance record.
	UpsertInstance(ctx context.Context, inst *Instance) error

	// GetInstance retrieves an instance by profile and target kind.
	GetInstance(ctx context.Context, profile, targetKind string) (*Instance, error)

	// ListInstances returns all instance records.
	ListInstances(ctx context.Context) ([]*Instance, error)

	// UpdateInstanceState updates the state and endpoint of an instance.
	UpdateInstanceState(ctx context.Context, id, state, endpoint string) error

	// DeleteInstance removes an instance and its events.
	DeleteInstance(ctx context.Context, id string) error

	// RecordEvent appends a lifecycle event for an instance.
	RecordEvent(ctx context.Context, event *Event) error

	// ListEvents returns the most recent events for an instance, newest
	// first, limited to limit rows.
	ListEvents(ctx context.Context, instanceID string, limit int) ([]*Event, error)
}
