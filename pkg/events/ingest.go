package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/correlation"
	"github.com/blackwell-systems/stackwarden/pkg/log"
	"github.com/blackwell-systems/stackwarden/pkg/metrics"
	"github.com/blackwell-systems/stackwarden/pkg/queue"
	"github.com/blackwell-systems/stackwarden/pkg/storage"
	"github.com/blackwell-systems/stackwarden/pkg/types"
	"github.com/google/uuid"
)

// highPriority lists event sources whose arrival triggers an immediate,
// tenant-scoped reconciliation pass instead of waiting for the next sweep
var highPriority = map[string]bool{
	"cms":       true,
	"ecommerce": true,
}

// Ingestor is the single entry point for inbound provider and system
// events: persist, correlate, trigger
type Ingestor struct {
	store   storage.EventStore
	tracker *correlation.Tracker
	queue   queue.Queue
}

// NewIngestor creates an event ingestor
func NewIngestor(store storage.EventStore, tracker *correlation.Tracker, q queue.Queue) *Ingestor {
	return &Ingestor{
		store:   store,
		tracker: tracker,
		queue:   q,
	}
}

// Publish ingests one event. Ingestion is idempotent on event id: a
// duplicate delivery is acknowledged without any side effect. Events
// carrying a correlation id are attached to their correlation; events from
// high-priority sources additionally trigger an immediate reconciliation
// pass for the tenant.
func (i *Ingestor) Publish(ctx context.Context, event *types.EventRecord) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	logger := log.WithEventID(event.EventID)

	if err := i.store.AppendEvent(event); err != nil {
		if errors.Is(err, storage.ErrDuplicateEvent) {
			metrics.EventsDuplicate.Inc()
			logger.Debug().Str("tenant_id", event.TenantID).Msg("duplicate event delivery dropped")
			return nil
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	metrics.EventsIngested.Inc()

	if event.CorrelationID != "" {
		status, err := i.tracker.Attach(event.CorrelationID, event)
		if err != nil {
			// The event is durably stored; correlation bookkeeping can be
			// recovered by the sweep, so ingestion still succeeds
			logger.Error().Err(err).
				Str("correlation_id", event.CorrelationID).
				Msg("failed to attach event to correlation")
		} else {
			logger.Debug().
				Str("correlation_id", event.CorrelationID).
				Str("status", string(status)).
				Msg("event attached to correlation")
		}
	}

	if highPriority[event.Source] && event.TenantID != "" {
		if err := i.queue.Enqueue(ctx, event.TenantID); err != nil {
			logger.Warn().Err(err).Str("tenant_id", event.TenantID).
				Msg("failed to enqueue reconcile trigger")
		}
	}

	return nil
}
