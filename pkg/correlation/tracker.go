package correlation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/log"
	"github.com/blackwell-systems/stackwarden/pkg/metrics"
	"github.com/blackwell-systems/stackwarden/pkg/types"
	"github.com/google/uuid"
)

// DefaultWindowSeconds is the consistency window applied when a command
// class does not configure its own
const DefaultWindowSeconds = 5

// ErrInvalidWindow is returned when a correlation is created with a
// non-positive consistency window
var ErrInvalidWindow = errors.New("invalid consistency window")

// Store is the persistence surface the tracker needs
type Store interface {
	CreateCorrelation(rec *types.CorrelationRecord) error
	GetCorrelation(id string) (*types.CorrelationRecord, error)
	UpdateCorrelation(rec *types.CorrelationRecord) error
	ListPendingCorrelations() ([]*types.CorrelationRecord, error)
}

// Tracker maps issued commands to the events they are expected to produce
// within a bounded time window
type Tracker struct {
	store Store

	// Per-correlation locks. Event ingestion for different correlations
	// must never serialize behind one another, so there is no global
	// write lock here; mu only guards the lock map itself.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker creates a new correlation tracker
func NewTracker(store Store) *Tracker {
	return &Tracker{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

func (t *Tracker) lockFor(correlationID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[correlationID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[correlationID] = l
	}
	return l
}

func (t *Tracker) dropLock(correlationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.locks, correlationID)
}

// CreateOptions configures a new correlation
type CreateOptions struct {
	CommandID      string
	TenantID       string
	Type           types.CorrelationType
	Fingerprint    string
	ExpectedEvents []string
	WindowSeconds  int
}

// Create registers a new pending correlation and returns its id
func (t *Tracker) Create(opts CreateOptions) (string, error) {
	if opts.WindowSeconds <= 0 {
		return "", fmt.Errorf("window %ds: %w", opts.WindowSeconds, ErrInvalidWindow)
	}

	now := time.Now().UTC()
	rec := &types.CorrelationRecord{
		CorrelationID:  uuid.New().String(),
		CommandID:      opts.CommandID,
		TenantID:       opts.TenantID,
		Type:           opts.Type,
		Fingerprint:    opts.Fingerprint,
		ExpectedEvents: opts.ExpectedEvents,
		WindowSeconds:  opts.WindowSeconds,
		InitiatedAt:    now,
		ExpiresAt:      now.Add(time.Duration(opts.WindowSeconds) * time.Second),
		Status:         types.CorrelationPending,
	}

	if err := t.store.CreateCorrelation(rec); err != nil {
		return "", fmt.Errorf("failed to create correlation: %w", err)
	}

	logger := log.WithCorrelationID(rec.CorrelationID)
	logger.Debug().
		Str("tenant_id", rec.TenantID).
		Str("command_id", rec.CommandID).
		Int("window_seconds", rec.WindowSeconds).
		Msg("correlation opened")

	return rec.CorrelationID, nil
}

// Attach records an inbound event against its correlation. Returns the
// correlation status after the event is absorbed: completed once every
// expected event type has arrived, pending otherwise. Attaching the same
// event id twice is a no-op. Events arriving after the correlation has
// been finalized do not reopen or complete it, and an event arriving after
// the window deadline finalizes the correlation as expired rather than
// completing it, even if the sweep has not run yet.
func (t *Tracker) Attach(correlationID string, event *types.EventRecord) (types.CorrelationStatus, error) {
	l := t.lockFor(correlationID)
	l.Lock()
	defer l.Unlock()

	rec, err := t.store.GetCorrelation(correlationID)
	if err != nil {
		return "", fmt.Errorf("failed to load correlation: %w", err)
	}

	logger := log.WithCorrelationID(correlationID)

	if rec.Status.Final() {
		logger.Debug().
			Str("event_id", event.EventID).
			Str("status", string(rec.Status)).
			Msg("late event for finalized correlation, not attaching")
		return rec.Status, nil
	}

	if event.TenantID != "" && event.TenantID != rec.TenantID {
		logger.Warn().
			Str("event_id", event.EventID).
			Str("event_tenant", event.TenantID).
			Str("correlation_tenant", rec.TenantID).
			Msg("event tenant does not match correlation, not attaching")
		return rec.Status, nil
	}

	// A correlation whose window has closed is expired even if the sweep
	// has not observed it yet. Late events must not complete it; the raw
	// event is already in the event store for audit.
	if rec.Expired(time.Now().UTC()) {
		rec.Status = types.CorrelationExpired
		if err := t.store.UpdateCorrelation(rec); err != nil {
			return "", fmt.Errorf("failed to expire correlation: %w", err)
		}
		metrics.CorrelationsFinalized.WithLabelValues(string(types.CorrelationExpired)).Inc()
		t.dropLock(correlationID)
		logger.Debug().
			Str("event_id", event.EventID).
			Msg("event arrived after window closed, correlation expired")
		return rec.Status, nil
	}

	// Idempotent on event id
	for _, buffered := range rec.EventBuffer {
		if buffered.EventID == event.EventID {
			return rec.Status, nil
		}
	}

	rec.EventBuffer = append(rec.EventBuffer, types.BufferedEvent{
		EventID:        event.EventID,
		EventType:      event.EventType,
		Timestamp:      event.Timestamp,
		ReceivedAt:     time.Now().UTC(),
		SequenceNumber: len(rec.EventBuffer) + 1,
	})
	if !rec.Received(event.EventType) {
		rec.ReceivedEvents = append(rec.ReceivedEvents, event.EventType)
	}

	if rec.Complete() {
		rec.Status = types.CorrelationCompleted
		metrics.CorrelationsFinalized.WithLabelValues(string(types.CorrelationCompleted)).Inc()
	}

	if err := t.store.UpdateCorrelation(rec); err != nil {
		return "", fmt.Errorf("failed to update correlation: %w", err)
	}

	if rec.Status == types.CorrelationCompleted {
		t.dropLock(correlationID)
		logger.Debug().
			Str("tenant_id", rec.TenantID).
			Int("events", len(rec.EventBuffer)).
			Msg("correlation completed")
	}

	return rec.Status, nil
}

// Fail finalizes a pending correlation as failed. Used when the command
// executor reports a synchronous failure.
func (t *Tracker) Fail(correlationID string) error {
	l := t.lockFor(correlationID)
	l.Lock()
	defer l.Unlock()

	rec, err := t.store.GetCorrelation(correlationID)
	if err != nil {
		return err
	}
	if rec.Status.Final() {
		return nil
	}

	rec.Status = types.CorrelationFailed
	if err := t.store.UpdateCorrelation(rec); err != nil {
		return fmt.Errorf("failed to fail correlation: %w", err)
	}
	metrics.CorrelationsFinalized.WithLabelValues(string(types.CorrelationFailed)).Inc()
	t.dropLock(correlationID)
	return nil
}

// SweepExpired finalizes every pending correlation whose window has
// closed and returns their ids. Completion and expiry are mutually
// exclusive: a correlation that completed before its deadline is never
// returned here.
func (t *Tracker) SweepExpired(now time.Time) ([]string, error) {
	pending, err := t.store.ListPendingCorrelations()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending correlations: %w", err)
	}

	var expired []string
	for _, rec := range pending {
		if !rec.Expired(now) {
			continue
		}

		l := t.lockFor(rec.CorrelationID)
		l.Lock()

		// Re-read under the lock; an event may have completed it since
		// the list was taken
		fresh, err := t.store.GetCorrelation(rec.CorrelationID)
		if err != nil {
			l.Unlock()
			continue
		}
		if fresh.Status != types.CorrelationPending || !fresh.Expired(now) {
			l.Unlock()
			continue
		}

		fresh.Status = types.CorrelationExpired
		if err := t.store.UpdateCorrelation(fresh); err != nil {
			l.Unlock()
			return expired, fmt.Errorf("failed to expire correlation %s: %w", fresh.CorrelationID, err)
		}
		l.Unlock()
		t.dropLock(fresh.CorrelationID)

		metrics.CorrelationsFinalized.WithLabelValues(string(types.CorrelationExpired)).Inc()
		logger := log.WithCorrelationID(fresh.CorrelationID)
		logger.Info().
			Str("tenant_id", fresh.TenantID).
			Strs("missing_events", fresh.MissingEvents()).
			Msg("correlation expired")

		expired = append(expired, fresh.CorrelationID)
	}

	return expired, nil
}
