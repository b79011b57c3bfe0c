package events

import (
	"context"
	"testing"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/correlation"
	"github.com/blackwell-systems/stackwarden/pkg/queue"
	"github.com/blackwell-systems/stackwarden/pkg/storage"
	"github.com/blackwell-systems/stackwarden/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIngestor(t *testing.T) (*Ingestor, *storage.BoltStore, *correlation.Tracker, *queue.Memory) {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tracker := correlation.NewTracker(store)
	q := queue.NewMemory(16)
	t.Cleanup(func() { q.Close() })

	return NewIngestor(store, tracker, q), store, tracker, q
}

func TestPublishPersistsEvent(t *testing.T) {
	ing, store, _, _ := newTestIngestor(t)

	event := &types.EventRecord{
		TenantID:  "acme",
		Source:    "github",
		EventType: "push",
	}
	require.NoError(t, ing.Publish(context.Background(), event))

	// Missing id and timestamp are filled on ingest
	assert.NotEmpty(t, event.EventID)
	assert.False(t, event.Timestamp.IsZero())

	recent, err := store.RecentEvents("acme", event.Timestamp.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "push", recent[0].EventType)
}

func TestPublishDuplicateDropped(t *testing.T) {
	ing, store, _, _ := newTestIngestor(t)
	ctx := context.Background()

	event := &types.EventRecord{
		EventID:   "evt-1",
		TenantID:  "acme",
		Source:    "github",
		EventType: "push",
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, ing.Publish(ctx, event))

	redelivery := *event
	redelivery.EventType = "push-changed"
	require.NoError(t, ing.Publish(ctx, &redelivery))

	recent, err := store.RecentEvents("acme", event.Timestamp.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "push", recent[0].EventType, "first delivery wins")
}

func TestPublishAttachesToCorrelation(t *testing.T) {
	ing, store, tracker, _ := newTestIngestor(t)
	ctx := context.Background()

	correlationID, err := tracker.Create(correlation.CreateOptions{
		CommandID:      "cmd-1",
		TenantID:       "acme",
		Type:           types.CorrelationHealing,
		Fingerprint:    "provider:cms",
		ExpectedEvents: []string{types.EventHealStarted, types.EventHealCompleted},
		WindowSeconds:  30,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, ing.Publish(ctx, &types.EventRecord{
		TenantID:      "acme",
		Source:        "executor",
		EventType:     types.EventHealStarted,
		Timestamp:     now,
		CorrelationID: correlationID,
	}))
	require.NoError(t, ing.Publish(ctx, &types.EventRecord{
		TenantID:      "acme",
		Source:        "executor",
		EventType:     types.EventHealCompleted,
		Timestamp:     now.Add(time.Second),
		CorrelationID: correlationID,
	}))

	rec, err := store.GetCorrelation(correlationID)
	require.NoError(t, err)
	assert.Equal(t, types.CorrelationCompleted, rec.Status)
	assert.Len(t, rec.EventBuffer, 2)
}

func TestPublishUnknownCorrelationStillIngests(t *testing.T) {
	ing, store, _, _ := newTestIngestor(t)

	event := &types.EventRecord{
		TenantID:      "acme",
		Source:        "executor",
		EventType:     types.EventHealStarted,
		Timestamp:     time.Now().UTC(),
		CorrelationID: "no-such-correlation",
	}
	require.NoError(t, ing.Publish(context.Background(), event))

	recent, err := store.RecentEvents("acme", event.Timestamp.Add(-time.Minute))
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestPublishHighPrioritySourceTriggersReconcile(t *testing.T) {
	ing, _, _, q := newTestIngestor(t)
	ctx := context.Background()

	require.NoError(t, ing.Publish(ctx, &types.EventRecord{
		TenantID:  "acme",
		Source:    "cms",
		EventType: "content.published",
	}))

	tenantID, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acme", tenantID)
}

func TestPublishLowPrioritySourceDoesNotTrigger(t *testing.T) {
	ing, _, _, q := newTestIngestor(t)
	ctx := context.Background()

	require.NoError(t, ing.Publish(ctx, &types.EventRecord{
		TenantID:  "acme",
		Source:    "github",
		EventType: "push",
	}))

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
