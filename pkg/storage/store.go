package storage

import (
	"errors"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/types"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEvent is returned when an event id has already been
	// ingested; callers treat it as a successful no-op
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrLeaseHeld is returned when a live lease for the tenant already
	// exists
	ErrLeaseHeld = errors.New("lease held")
)

// StateStore persists tenant state, correlations, and heal attempt counters
type StateStore interface {
	// Tenants
	CreateTenant(state *types.TenantState) error
	GetTenant(tenantID, stackID string) (*types.TenantState, error)
	ListTenants() ([]*types.TenantState, error)
	UpdateTenant(state *types.TenantState) error
	ArchiveTenant(tenantID, stackID string) error

	// Correlations
	CreateCorrelation(rec *types.CorrelationRecord) error
	GetCorrelation(id string) (*types.CorrelationRecord, error)
	UpdateCorrelation(rec *types.CorrelationRecord) error
	ListPendingCorrelations() ([]*types.CorrelationRecord, error)
	ListCorrelationsByTenant(tenantID string) ([]*types.CorrelationRecord, error)

	// Heal attempts, keyed by drift fingerprint
	GetHealAttempt(tenantID, fingerprint string) (*types.HealAttempt, error)
	PutHealAttempt(attempt *types.HealAttempt) error
	ResetHealAttempts(tenantID string) error
}

// EventStore is the bounded, append-only window of inbound events
type EventStore interface {
	// AppendEvent persists an event; a second append of the same event id
	// returns ErrDuplicateEvent
	AppendEvent(event *types.EventRecord) error
	RecentEvents(tenantID string, since time.Time) ([]*types.EventRecord, error)
	EventsByCorrelation(correlationID string) ([]*types.EventRecord, error)

	// SweepEvents removes events older than cutoff and returns how many
	// were deleted
	SweepEvents(cutoff time.Time) (int, error)
}

// LeaseStore serializes reconciliation passes per tenant
type LeaseStore interface {
	// AcquireLease claims the tenant's reconciliation slot. Any live
	// lease fails with ErrLeaseHeld regardless of owner; an expired
	// lease is taken over. Release is by the returned lease's LeaseID
	// token.
	AcquireLease(tenantID, owner string, ttl time.Duration) (*types.Lease, error)
	ReleaseLease(tenantID, leaseID string) error
	GetLease(tenantID string) (*types.Lease, error)
}

// Store is the full persistence contract consumed by the reconciliation core
type Store interface {
	StateStore
	EventStore
	LeaseStore

	Close() error
}
