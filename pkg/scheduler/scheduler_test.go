package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/correlation"
	"github.com/blackwell-systems/stackwarden/pkg/events"
	"github.com/blackwell-systems/stackwarden/pkg/healing"
	"github.com/blackwell-systems/stackwarden/pkg/probe"
	"github.com/blackwell-systems/stackwarden/pkg/queue"
	"github.com/blackwell-systems/stackwarden/pkg/reconciler"
	"github.com/blackwell-systems/stackwarden/pkg/storage"
	"github.com/blackwell-systems/stackwarden/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopExecutor struct{}

func (noopExecutor) Execute(context.Context, *types.Command) error { return nil }

type healthyProber struct{}

func (healthyProber) Probe(context.Context, types.ResourceRef) probe.Result {
	return probe.Result{Healthy: true}
}

type fixture struct {
	sched    *Scheduler
	store    *storage.BoltStore
	tracker  *correlation.Tracker
	triggers *queue.Memory
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tracker := correlation.NewTracker(store)
	orch := healing.NewOrchestrator(store, tracker, noopExecutor{})
	rec := reconciler.New(store, tracker, orch, healthyProber{}, events.NewBroker(), "sched-test")
	triggers := queue.NewMemory(16)
	t.Cleanup(func() { triggers.Close() })

	return &fixture{
		sched:    NewScheduler(store, rec, tracker, triggers, cfg),
		store:    store,
		tracker:  tracker,
		triggers: triggers,
	}
}

func (f *fixture) seedTenant(t *testing.T, tenantID string, archived bool) {
	t.Helper()

	desired := &types.Composition{Providers: map[string]string{"cms": "contentful"}}
	require.NoError(t, f.store.CreateTenant(&types.TenantState{
		TenantID:    tenantID,
		StackID:     "web",
		Status:      types.TenantStatusHealthy,
		Policy:      types.DefaultPolicy(),
		Desired:     desired,
		DesiredHash: desired.Hash(),
		Applied:     desired,
		AppliedHash: desired.Hash(),
		Archived:    archived,
	}))
}

func TestConfigDefaults(t *testing.T) {
	s := NewScheduler(nil, nil, nil, nil, Config{})
	assert.Equal(t, 5*time.Minute, s.cfg.Interval)
	assert.Equal(t, 8, s.cfg.Workers)
	assert.Equal(t, 64, s.cfg.BatchSize)
	assert.Equal(t, s.cfg.Interval, s.cfg.PassDeadline)
	assert.Equal(t, 30*24*time.Hour, s.cfg.EventRetention)
}

func TestSweepReconcilesActiveTenants(t *testing.T) {
	f := newFixture(t, Config{Interval: 50 * time.Millisecond, Workers: 2})
	f.seedTenant(t, "acme", false)
	f.seedTenant(t, "globex", true)

	f.sched.Start()
	defer f.sched.Stop()

	require.Eventually(t, func() bool {
		tenant, err := f.store.GetTenant("acme", "web")
		return err == nil && !tenant.LastVerified.IsZero()
	}, 2*time.Second, 20*time.Millisecond, "active tenant never reconciled")

	// The archived tenant is never queued
	archived, err := f.store.GetTenant("globex", "web")
	require.NoError(t, err)
	assert.True(t, archived.LastVerified.IsZero())
}

func TestTriggerRunsImmediatePass(t *testing.T) {
	// Long interval: only the trigger path can reach a tenant created
	// after the initial sweep
	f := newFixture(t, Config{Interval: time.Hour, Workers: 2})

	f.sched.Start()
	defer f.sched.Stop()

	time.Sleep(50 * time.Millisecond)
	f.seedTenant(t, "acme", false)
	require.NoError(t, f.sched.Trigger(context.Background(), "acme"))

	require.Eventually(t, func() bool {
		tenant, err := f.store.GetTenant("acme", "web")
		return err == nil && !tenant.LastVerified.IsZero()
	}, 2*time.Second, 20*time.Millisecond, "trigger never reconciled the tenant")
}

func TestSweepExpiresOverdueCorrelations(t *testing.T) {
	f := newFixture(t, Config{Interval: 50 * time.Millisecond, Workers: 1})

	correlationID, err := f.tracker.Create(correlation.CreateOptions{
		CommandID:      uuid.New().String(),
		TenantID:       "acme",
		Type:           types.CorrelationHealing,
		Fingerprint:    "provider:cms",
		ExpectedEvents: []string{types.EventHealStarted},
		WindowSeconds:  30,
	})
	require.NoError(t, err)

	rec, err := f.store.GetCorrelation(correlationID)
	require.NoError(t, err)
	rec.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, f.store.UpdateCorrelation(rec))

	f.sched.Start()
	defer f.sched.Stop()

	require.Eventually(t, func() bool {
		rec, err := f.store.GetCorrelation(correlationID)
		return err == nil && rec.Status == types.CorrelationExpired
	}, 2*time.Second, 20*time.Millisecond, "overdue correlation never expired")
}

func TestSweepEnforcesEventRetention(t *testing.T) {
	f := newFixture(t, Config{Interval: 50 * time.Millisecond, Workers: 1, EventRetention: time.Minute})

	require.NoError(t, f.store.AppendEvent(&types.EventRecord{
		EventID:   "evt-old",
		TenantID:  "acme",
		EventType: "push",
		Timestamp: time.Now().UTC().Add(-time.Hour),
	}))

	f.sched.Start()
	defer f.sched.Stop()

	require.Eventually(t, func() bool {
		recent, err := f.store.RecentEvents("acme", time.Now().UTC().Add(-24*time.Hour))
		return err == nil && len(recent) == 0
	}, 2*time.Second, 20*time.Millisecond, "stale event never swept")
}
