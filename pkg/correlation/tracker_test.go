package correlation

import (
	"testing"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/storage"
	"github.com/blackwell-systems/stackwarden/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) (*Tracker, *storage.BoltStore) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewTracker(store), store
}

func healOptions(window int) CreateOptions {
	return CreateOptions{
		CommandID:      "cmd-1",
		TenantID:       "acme",
		Type:           types.CorrelationHealing,
		Fingerprint:    "provider:cms",
		ExpectedEvents: []string{types.EventHealStarted, types.EventHealCompleted},
		WindowSeconds:  window,
	}
}

func event(id, eventType string, ts time.Time) *types.EventRecord {
	return &types.EventRecord{
		EventID:   id,
		TenantID:  "acme",
		EventType: eventType,
		Timestamp: ts,
	}
}

func TestCreateRejectsInvalidWindow(t *testing.T) {
	tracker, _ := newTestTracker(t)

	tests := []struct {
		name   string
		window int
	}{
		{"zero window", 0},
		{"negative window", -5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tracker.Create(healOptions(tt.window))
			assert.ErrorIs(t, err, ErrInvalidWindow)
		})
	}
}

func TestAttachCompletesWhenAllExpectedArrive(t *testing.T) {
	tracker, store := newTestTracker(t)
	now := time.Now().UTC()

	id, err := tracker.Create(healOptions(5))
	require.NoError(t, err)

	status, err := tracker.Attach(id, event("evt-1", types.EventHealStarted, now))
	require.NoError(t, err)
	assert.Equal(t, types.CorrelationPending, status)

	status, err = tracker.Attach(id, event("evt-2", types.EventHealCompleted, now.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, types.CorrelationCompleted, status)

	rec, err := store.GetCorrelation(id)
	require.NoError(t, err)
	assert.Equal(t, types.CorrelationCompleted, rec.Status)
	assert.Len(t, rec.EventBuffer, 2)
}

func TestAttachIdempotentOnEventID(t *testing.T) {
	tracker, store := newTestTracker(t)
	now := time.Now().UTC()

	id, err := tracker.Create(healOptions(5))
	require.NoError(t, err)

	ev := event("evt-1", types.EventHealStarted, now)
	_, err = tracker.Attach(id, ev)
	require.NoError(t, err)
	_, err = tracker.Attach(id, ev)
	require.NoError(t, err)

	rec, err := store.GetCorrelation(id)
	require.NoError(t, err)
	assert.Len(t, rec.EventBuffer, 1)
}

func TestAttachUnexpectedEventDoesNotComplete(t *testing.T) {
	tracker, _ := newTestTracker(t)
	now := time.Now().UTC()

	id, err := tracker.Create(healOptions(5))
	require.NoError(t, err)

	status, err := tracker.Attach(id, event("evt-1", "provider.status", now))
	require.NoError(t, err)
	assert.Equal(t, types.CorrelationPending, status)
}

func TestAttachAfterWindowClosedExpires(t *testing.T) {
	tracker, store := newTestTracker(t)
	now := time.Now().UTC()

	id, err := tracker.Create(healOptions(30))
	require.NoError(t, err)

	_, err = tracker.Attach(id, event("evt-1", types.EventHealStarted, now))
	require.NoError(t, err)

	// Close the window before the sweep has a chance to run
	rec, err := store.GetCorrelation(id)
	require.NoError(t, err)
	rec.ExpiresAt = now.Add(-time.Second)
	require.NoError(t, store.UpdateCorrelation(rec))

	// The completing event arrives late; it must expire the correlation,
	// never complete it
	status, err := tracker.Attach(id, event("evt-2", types.EventHealCompleted, now))
	require.NoError(t, err)
	assert.Equal(t, types.CorrelationExpired, status)

	rec, err = store.GetCorrelation(id)
	require.NoError(t, err)
	assert.Equal(t, types.CorrelationExpired, rec.Status)
	assert.Len(t, rec.EventBuffer, 1)
	assert.False(t, HealSucceeded(rec))

	// Nor can anything reopen it afterwards
	status, err = tracker.Attach(id, event("evt-3", types.EventHealCompleted, now))
	require.NoError(t, err)
	assert.Equal(t, types.CorrelationExpired, status)
}

func TestAttachRejectsForeignTenantEvent(t *testing.T) {
	tracker, store := newTestTracker(t)
	now := time.Now().UTC()

	id, err := tracker.Create(healOptions(30))
	require.NoError(t, err)

	_, err = tracker.Attach(id, event("evt-1", types.EventHealStarted, now))
	require.NoError(t, err)

	// An event tagged with another tenant's id must not complete this
	// tenant's correlation
	foreign := event("evt-2", types.EventHealCompleted, now)
	foreign.TenantID = "globex"
	status, err := tracker.Attach(id, foreign)
	require.NoError(t, err)
	assert.Equal(t, types.CorrelationPending, status)

	rec, err := store.GetCorrelation(id)
	require.NoError(t, err)
	assert.Len(t, rec.EventBuffer, 1)
}

func TestLateEventAfterFinalizationNotAttached(t *testing.T) {
	tracker, store := newTestTracker(t)
	now := time.Now().UTC()

	id, err := tracker.Create(healOptions(5))
	require.NoError(t, err)
	require.NoError(t, tracker.Fail(id))

	status, err := tracker.Attach(id, event("evt-late", types.EventHealStarted, now))
	require.NoError(t, err)
	assert.Equal(t, types.CorrelationFailed, status)

	rec, err := store.GetCorrelation(id)
	require.NoError(t, err)
	assert.Empty(t, rec.EventBuffer)
}

func TestFailIsTerminal(t *testing.T) {
	tracker, store := newTestTracker(t)

	id, err := tracker.Create(healOptions(5))
	require.NoError(t, err)

	require.NoError(t, tracker.Fail(id))
	// Failing again is a no-op
	require.NoError(t, tracker.Fail(id))

	rec, err := store.GetCorrelation(id)
	require.NoError(t, err)
	assert.Equal(t, types.CorrelationFailed, rec.Status)
}

func TestSweepExpired(t *testing.T) {
	tracker, store := newTestTracker(t)
	now := time.Now().UTC()

	id, err := tracker.Create(healOptions(5))
	require.NoError(t, err)

	// Still inside the window: untouched
	expired, err := tracker.SweepExpired(now)
	require.NoError(t, err)
	assert.Empty(t, expired)

	// Past the window: finalized exactly once
	expired, err = tracker.SweepExpired(now.Add(10 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, expired)

	rec, err := store.GetCorrelation(id)
	require.NoError(t, err)
	assert.Equal(t, types.CorrelationExpired, rec.Status)

	// A second sweep finds nothing
	expired, err = tracker.SweepExpired(now.Add(20 * time.Second))
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestCompletionWinsOverExpiry(t *testing.T) {
	tracker, store := newTestTracker(t)
	now := time.Now().UTC()

	id, err := tracker.Create(healOptions(5))
	require.NoError(t, err)

	// All expected events arrive, then the sweep runs late
	_, err = tracker.Attach(id, event("evt-1", types.EventHealStarted, now))
	require.NoError(t, err)
	_, err = tracker.Attach(id, event("evt-2", types.EventHealCompleted, now))
	require.NoError(t, err)

	expired, err := tracker.SweepExpired(now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, expired)

	rec, err := store.GetCorrelation(id)
	require.NoError(t, err)
	assert.Equal(t, types.CorrelationCompleted, rec.Status)
}

func TestOrderedEventsTimestampThenID(t *testing.T) {
	tracker, store := newTestTracker(t)
	base := time.Now().UTC().Truncate(time.Second)

	id, err := tracker.Create(healOptions(30))
	require.NoError(t, err)

	// Completion arrives first in wall-clock delivery order but carries a
	// later timestamp; two more share a timestamp to exercise the id
	// tie-break
	_, err = tracker.Attach(id, event("evt-c", types.EventHealCompleted, base.Add(2*time.Second)))
	require.NoError(t, err)
	_, err = tracker.Attach(id, event("evt-b", "provider.status", base))
	require.NoError(t, err)
	_, err = tracker.Attach(id, event("evt-a", types.EventHealStarted, base))
	require.NoError(t, err)

	rec, err := store.GetCorrelation(id)
	require.NoError(t, err)

	ordered := rec.OrderedEvents()
	require.Len(t, ordered, 3)
	assert.Equal(t, "evt-a", ordered[0].EventID) // ts tie, id breaks it
	assert.Equal(t, "evt-b", ordered[1].EventID)
	assert.Equal(t, "evt-c", ordered[2].EventID)
}

func TestHealSucceeded(t *testing.T) {
	base := time.Now().UTC()

	buffered := func(id, eventType string, offset time.Duration) types.BufferedEvent {
		return types.BufferedEvent{
			EventID:   id,
			EventType: eventType,
			Timestamp: base.Add(offset),
		}
	}

	tests := []struct {
		name   string
		status types.CorrelationStatus
		events []types.BufferedEvent
		want   bool
	}{
		{
			name:   "started then completed",
			status: types.CorrelationCompleted,
			events: []types.BufferedEvent{
				buffered("e1", types.EventHealStarted, 0),
				buffered("e2", types.EventHealCompleted, time.Second),
			},
			want: true,
		},
		{
			name:   "completed before started by timestamp",
			status: types.CorrelationCompleted,
			events: []types.BufferedEvent{
				buffered("e1", types.EventHealCompleted, 0),
				buffered("e2", types.EventHealStarted, time.Second),
			},
			want: false,
		},
		{
			name:   "failure between start and completion",
			status: types.CorrelationCompleted,
			events: []types.BufferedEvent{
				buffered("e1", types.EventHealStarted, 0),
				buffered("e2", types.EventHealFailed, time.Second),
				buffered("e3", types.EventHealCompleted, 2*time.Second),
			},
			want: false,
		},
		{
			name:   "not completed",
			status: types.CorrelationExpired,
			events: []types.BufferedEvent{
				buffered("e1", types.EventHealStarted, 0),
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &types.CorrelationRecord{
				Status:      tt.status,
				EventBuffer: tt.events,
			}
			assert.Equal(t, tt.want, HealSucceeded(rec))
		})
	}
}

func TestExpiryDrift(t *testing.T) {
	now := time.Now().UTC()

	rec := &types.CorrelationRecord{
		CorrelationID:  "corr-1",
		Fingerprint:    "provider:cms",
		ExpectedEvents: []string{types.EventHealStarted, types.EventHealCompleted},
		ReceivedEvents: []string{types.EventHealStarted},
		Status:         types.CorrelationExpired,
	}

	item := ExpiryDrift(rec, now)
	require.NotNil(t, item)
	assert.Equal(t, types.DriftIntegration, item.Type)
	assert.Equal(t, types.SeverityMedium, item.Severity)
	assert.Contains(t, item.Expected, types.EventHealCompleted)

	// The component tracks the healed item's fingerprint, never the
	// correlation id, so a recurring expiry keeps one fingerprint and
	// the attempt budget can exhaust
	assert.Equal(t, "provider:cms", item.Component)
	rec.CorrelationID = "corr-2"
	again := ExpiryDrift(rec, now)
	require.NotNil(t, again)
	assert.Equal(t, item.Component, again.Component)

	// Without a fingerprint the missing events stand in
	rec.Fingerprint = ""
	bare := ExpiryDrift(rec, now)
	require.NotNil(t, bare)
	assert.Equal(t, types.EventHealCompleted, bare.Component)

	// Nothing missing means no drift to record
	rec.ReceivedEvents = rec.ExpectedEvents
	assert.Nil(t, ExpiryDrift(rec, now))
}
