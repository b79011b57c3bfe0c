package storage

import (
	"testing"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTenantCRUD(t *testing.T) {
	store := newTestStore(t)

	state := &types.TenantState{
		TenantID: "acme",
		StackID:  "storefront",
		Status:   types.TenantStatusHealthy,
		Policy:   types.DefaultPolicy(),
	}
	require.NoError(t, store.CreateTenant(state))

	got, err := store.GetTenant("acme", "storefront")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.TenantID)
	assert.Equal(t, types.TenantStatusHealthy, got.Status)

	got.Status = types.TenantStatusDriftDetected
	require.NoError(t, store.UpdateTenant(got))

	got, err = store.GetTenant("acme", "storefront")
	require.NoError(t, err)
	assert.Equal(t, types.TenantStatusDriftDetected, got.Status)

	_, err = store.GetTenant("acme", "missing-stack")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListTenants(t *testing.T) {
	store := newTestStore(t)

	for _, stack := range []string{"storefront", "blog"} {
		require.NoError(t, store.CreateTenant(&types.TenantState{
			TenantID: "acme",
			StackID:  stack,
			Status:   types.TenantStatusHealthy,
		}))
	}
	require.NoError(t, store.CreateTenant(&types.TenantState{
		TenantID: "globex",
		StackID:  "storefront",
		Status:   types.TenantStatusHealthy,
	}))

	tenants, err := store.ListTenants()
	require.NoError(t, err)
	assert.Len(t, tenants, 3)
}

func TestArchiveTenant(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateTenant(&types.TenantState{
		TenantID: "acme",
		StackID:  "storefront",
		Status:   types.TenantStatusHealthy,
	}))

	require.NoError(t, store.ArchiveTenant("acme", "storefront"))

	// Gone from the active set
	_, err := store.GetTenant("acme", "storefront")
	assert.ErrorIs(t, err, ErrNotFound)

	tenants, err := store.ListTenants()
	require.NoError(t, err)
	assert.Empty(t, tenants)

	// Archiving twice fails, the record already moved
	err = store.ArchiveTenant("acme", "storefront")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendEventIdempotent(t *testing.T) {
	store := newTestStore(t)

	event := &types.EventRecord{
		EventID:   "evt-1",
		TenantID:  "acme",
		Source:    "cms",
		EventType: "provider.registered",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, store.AppendEvent(event))

	err := store.AppendEvent(event)
	assert.ErrorIs(t, err, ErrDuplicateEvent)

	recent, err := store.RecentEvents("acme", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestRecentEventsWindowAndOrder(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC()

	// Inserted out of order on purpose
	for _, spec := range []struct {
		id     string
		offset time.Duration
	}{
		{"evt-new", -1 * time.Minute},
		{"evt-old", -30 * time.Minute},
		{"evt-mid", -5 * time.Minute},
	} {
		require.NoError(t, store.AppendEvent(&types.EventRecord{
			EventID:   spec.id,
			TenantID:  "acme",
			EventType: "provider.status",
			Timestamp: base.Add(spec.offset),
		}))
	}

	recent, err := store.RecentEvents("acme", base.Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// Ascending by timestamp
	assert.Equal(t, "evt-mid", recent[0].EventID)
	assert.Equal(t, "evt-new", recent[1].EventID)
}

func TestRecentEventsTenantIsolation(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.AppendEvent(&types.EventRecord{
		EventID: "evt-acme", TenantID: "acme", EventType: "x", Timestamp: now,
	}))
	require.NoError(t, store.AppendEvent(&types.EventRecord{
		EventID: "evt-globex", TenantID: "globex", EventType: "x", Timestamp: now,
	}))

	recent, err := store.RecentEvents("acme", now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "evt-acme", recent[0].EventID)
}

func TestEventsByCorrelation(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.AppendEvent(&types.EventRecord{
		EventID: "evt-1", TenantID: "acme", EventType: "heal_started",
		Timestamp: now, CorrelationID: "corr-1",
	}))
	require.NoError(t, store.AppendEvent(&types.EventRecord{
		EventID: "evt-2", TenantID: "acme", EventType: "heal_completed",
		Timestamp: now, CorrelationID: "corr-1",
	}))
	require.NoError(t, store.AppendEvent(&types.EventRecord{
		EventID: "evt-3", TenantID: "acme", EventType: "heal_started",
		Timestamp: now, CorrelationID: "corr-2",
	}))

	events, err := store.EventsByCorrelation("corr-1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestSweepEvents(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.AppendEvent(&types.EventRecord{
		EventID: "evt-old", TenantID: "acme", EventType: "x",
		Timestamp: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, store.AppendEvent(&types.EventRecord{
		EventID: "evt-new", TenantID: "acme", EventType: "x",
		Timestamp: now,
	}))

	deleted, err := store.SweepEvents(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	recent, err := store.RecentEvents("acme", now.Add(-72*time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "evt-new", recent[0].EventID)
}

func TestAcquireLeaseCAS(t *testing.T) {
	store := newTestStore(t)

	lease, err := store.AcquireLease("acme", "worker-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "worker-1", lease.Owner)
	assert.NotEmpty(t, lease.LeaseID)

	// Any live lease blocks acquisition, other owner or not
	_, err = store.AcquireLease("acme", "worker-2", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)
	_, err = store.AcquireLease("acme", "worker-1", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, store.ReleaseLease("acme", lease.LeaseID))

	_, err = store.AcquireLease("acme", "worker-2", time.Minute)
	assert.NoError(t, err)
}

func TestAcquireLeaseSameOwnerContends(t *testing.T) {
	store := newTestStore(t)

	// Two workers of one process share the owner label. The second pass
	// for the same tenant must still lose while the first holds the slot.
	lease, err := store.AcquireLease("acme", "node-1", time.Minute)
	require.NoError(t, err)

	_, err = store.AcquireLease("acme", "node-1", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, store.ReleaseLease("acme", lease.LeaseID))
	_, err = store.AcquireLease("acme", "node-1", time.Minute)
	assert.NoError(t, err)
}

func TestAcquireLeaseExpiredTakeover(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AcquireLease("acme", "worker-1", -time.Second)
	require.NoError(t, err)

	// Expired lease is taken over without a release
	lease, err := store.AcquireLease("acme", "worker-2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "worker-2", lease.Owner)
}

func TestReleaseLeaseStaleToken(t *testing.T) {
	store := newTestStore(t)

	stale, err := store.AcquireLease("acme", "worker-1", -time.Second)
	require.NoError(t, err)

	_, err = store.AcquireLease("acme", "worker-2", time.Minute)
	require.NoError(t, err)

	// The crashed holder's late release must not free the successor's slot
	require.NoError(t, store.ReleaseLease("acme", stale.LeaseID))

	_, err = store.AcquireLease("acme", "worker-3", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)
}

func TestHealAttempts(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetHealAttempt("acme", "provider:cms")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.PutHealAttempt(&types.HealAttempt{
		Fingerprint: "provider:cms",
		TenantID:    "acme",
		Attempts:    2,
	}))
	require.NoError(t, store.PutHealAttempt(&types.HealAttempt{
		Fingerprint: "integration:webhook",
		TenantID:    "acme",
		Attempts:    1,
	}))
	require.NoError(t, store.PutHealAttempt(&types.HealAttempt{
		Fingerprint: "provider:cms",
		TenantID:    "globex",
		Attempts:    3,
	}))

	got, err := store.GetHealAttempt("acme", "provider:cms")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)

	// Reset clears every fingerprint for the tenant, nobody else's
	require.NoError(t, store.ResetHealAttempts("acme"))

	_, err = store.GetHealAttempt("acme", "provider:cms")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetHealAttempt("acme", "integration:webhook")
	assert.ErrorIs(t, err, ErrNotFound)

	other, err := store.GetHealAttempt("globex", "provider:cms")
	require.NoError(t, err)
	assert.Equal(t, 3, other.Attempts)
}

func TestCorrelationLifecyclePersistence(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	rec := &types.CorrelationRecord{
		CorrelationID:  "corr-1",
		TenantID:       "acme",
		Type:           types.CorrelationHealing,
		ExpectedEvents: []string{types.EventHealStarted, types.EventHealCompleted},
		WindowSeconds:  5,
		InitiatedAt:    now,
		ExpiresAt:      now.Add(5 * time.Second),
		Status:         types.CorrelationPending,
	}
	require.NoError(t, store.CreateCorrelation(rec))

	pending, err := store.ListPendingCorrelations()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	rec.Status = types.CorrelationCompleted
	require.NoError(t, store.UpdateCorrelation(rec))

	pending, err = store.ListPendingCorrelations()
	require.NoError(t, err)
	assert.Empty(t, pending)

	byTenant, err := store.ListCorrelationsByTenant("acme")
	require.NoError(t, err)
	require.Len(t, byTenant, 1)
	assert.Equal(t, types.CorrelationCompleted, byTenant[0].Status)
}
