package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/correlation"
	"github.com/blackwell-systems/stackwarden/pkg/drift"
	"github.com/blackwell-systems/stackwarden/pkg/events"
	"github.com/blackwell-systems/stackwarden/pkg/healing"
	"github.com/blackwell-systems/stackwarden/pkg/log"
	"github.com/blackwell-systems/stackwarden/pkg/metrics"
	"github.com/blackwell-systems/stackwarden/pkg/probe"
	"github.com/blackwell-systems/stackwarden/pkg/storage"
	"github.com/blackwell-systems/stackwarden/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultEventWindow bounds how far back the observed-state synthesis
// looks in the event store
const DefaultEventWindow = 15 * time.Minute

// DefaultLeaseTTL bounds how long a crashed worker can block a tenant's
// reconciliation slot
const DefaultLeaseTTL = 2 * time.Minute

// DesiredStateSource supplies the declared composition for a tenant. The
// default reads the tenant record; deployments wire the configuration
// layer in here.
type DesiredStateSource interface {
	DesiredState(ctx context.Context, tenant *types.TenantState) (*types.Composition, error)
}

// RecordSource reads the declared composition stored on the tenant record
type RecordSource struct{}

func (RecordSource) DesiredState(_ context.Context, tenant *types.TenantState) (*types.Composition, error) {
	return tenant.Desired, nil
}

// Reconciler runs the per-tenant reconciliation pass: synthesize observed
// state, compare against desired, drive healing, and write the outcome
// back. It is the only writer of tenant status.
type Reconciler struct {
	store        storage.Store
	tracker      *correlation.Tracker
	orchestrator *healing.Orchestrator
	prober       probe.Prober
	broker       *events.Broker
	desired      DesiredStateSource

	// Owner identifies this worker process in lease records
	Owner       string
	EventWindow time.Duration
	LeaseTTL    time.Duration
}

// New creates a reconciler
func New(store storage.Store, tracker *correlation.Tracker, orchestrator *healing.Orchestrator, prober probe.Prober, broker *events.Broker, owner string) *Reconciler {
	return &Reconciler{
		store:        store,
		tracker:      tracker,
		orchestrator: orchestrator,
		prober:       prober,
		broker:       broker,
		desired:      RecordSource{},
		Owner:        owner,
		EventWindow:  DefaultEventWindow,
		LeaseTTL:     DefaultLeaseTTL,
	}
}

// SetDesiredStateSource overrides where declared compositions come from
func (r *Reconciler) SetDesiredStateSource(src DesiredStateSource) {
	r.desired = src
}

// Reconcile runs one pass for a tenant stack. Concurrent invocations for
// the same tenant are serialized by the lease: the loser skips, it does
// not wait. Any error aborts the pass without partial writes; the next
// tick retries.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID, stackID string) (err error) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
		if err != nil {
			metrics.ReconciliationErrors.Inc()
		}
	}()

	logger := log.WithTenantID(tenantID)

	lease, err := r.store.AcquireLease(tenantID, r.Owner, r.LeaseTTL)
	if err != nil {
		if errors.Is(err, storage.ErrLeaseHeld) {
			logger.Debug().Msg("reconciliation already in flight, skipping")
			return nil
		}
		return fmt.Errorf("failed to acquire lease: %w", err)
	}
	defer func() {
		if releaseErr := r.store.ReleaseLease(tenantID, lease.LeaseID); releaseErr != nil {
			logger.Error().Err(releaseErr).Msg("failed to release lease")
		}
	}()

	// One tenant's panic must never take down the batch
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("reconciliation pass panicked")
			r.markError(tenantID, stackID, fmt.Sprintf("panic: %v", rec))
			err = fmt.Errorf("reconciliation panicked: %v", rec)
		}
	}()

	return r.reconcile(ctx, tenantID, stackID, logger)
}

func (r *Reconciler) reconcile(ctx context.Context, tenantID, stackID string, logger zerolog.Logger) error {
	now := time.Now().UTC()

	tenant, err := r.store.GetTenant(tenantID, stackID)
	if err != nil {
		return fmt.Errorf("failed to load tenant: %w", err)
	}
	if tenant.Archived {
		return nil
	}

	from := tenant.Status

	// Settle the open correlation before fresh detection: the drift
	// detector must never see a partially-arrived heal transaction
	waiting, expiryDrift, err := r.settleOpenCorrelation(tenant, now, logger)
	if err != nil {
		return err
	}
	if waiting {
		// Window still open; events may yet arrive. Retried next tick.
		return nil
	}

	desired, err := r.desired.DesiredState(ctx, tenant)
	if err != nil {
		return fmt.Errorf("failed to load desired state: %w", err)
	}

	observed, err := r.synthesizeObserved(ctx, tenant, now)
	if err != nil {
		return err
	}

	report := drift.Compare(desired, observed, now)
	items := report.Items
	if expiryDrift != nil {
		items = append(items, *expiryDrift)
	}

	tenant.LastVerified = now

	if len(items) == 0 {
		r.converge(tenant, from, now, logger)
	} else {
		tenant.DriftDetails = items
		if err := r.handleDrift(ctx, tenant, from, items, now, logger); err != nil {
			return err
		}
	}

	tenant.UpdatedAt = now
	if err := r.store.UpdateTenant(tenant); err != nil {
		return fmt.Errorf("failed to persist tenant state: %w", err)
	}

	if tenant.Status != from {
		logger.Info().
			Str("from", string(from)).
			Str("to", string(tenant.Status)).
			Int("drift_items", len(tenant.DriftDetails)).
			Msg("tenant status changed")
	}
	return nil
}

// settleOpenCorrelation inspects the tenant's in-flight correlation, if
// any. Returns waiting=true while the consistency window is still open,
// and a drift item when the window expired with events missing.
func (r *Reconciler) settleOpenCorrelation(tenant *types.TenantState, now time.Time, logger zerolog.Logger) (waiting bool, expiryDrift *types.DriftItem, err error) {
	if tenant.OpenCorrelationID == "" {
		return false, nil, nil
	}

	rec, err := r.store.GetCorrelation(tenant.OpenCorrelationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Record aged out; nothing left to wait on
			tenant.OpenCorrelationID = ""
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("failed to load open correlation: %w", err)
	}

	if !correlation.Drainable(rec, now) {
		return true, nil, nil
	}

	switch {
	case rec.Status == types.CorrelationCompleted && correlation.HealSucceeded(rec):
		metrics.HealOutcomes.WithLabelValues("succeeded").Inc()
		logger.Info().Str("correlation_id", rec.CorrelationID).Msg("heal transaction completed")
	case rec.Status == types.CorrelationPending || rec.Status == types.CorrelationExpired:
		// Window closed with events missing; record it as integration
		// drift and let detection decide what remains
		if rec.Status == types.CorrelationPending {
			if _, sweepErr := r.tracker.SweepExpired(now); sweepErr != nil {
				return false, nil, sweepErr
			}
		}
		expiryDrift = correlation.ExpiryDrift(rec, now)
		metrics.HealOutcomes.WithLabelValues("expired").Inc()
		r.notify(types.EventHealFailed, tenant.TenantID, fmt.Sprintf("heal window expired, missing events: %s", strings.Join(rec.MissingEvents(), ",")))
	default:
		// Completed without a clean started/completed sequence, or the
		// executor failed synchronously
		metrics.HealOutcomes.WithLabelValues("failed").Inc()
		r.notify(types.EventHealFailed, tenant.TenantID, "heal transaction did not complete successfully")
	}

	tenant.OpenCorrelationID = ""
	return false, expiryDrift, nil
}

// converge settles a tenant with no remaining drift
func (r *Reconciler) converge(tenant *types.TenantState, from types.TenantStatus, now time.Time, logger zerolog.Logger) {
	tenant.DriftDetails = nil

	if from == types.TenantStatusError {
		// Error state requires human acknowledgment even if the drift
		// resolved on its own; only the drift list is refreshed
		return
	}

	if !types.CanTransition(from, types.TenantStatusHealthy) {
		logger.Warn().Str("from", string(from)).Msg("invalid transition to healthy, keeping status")
		return
	}

	tenant.Status = types.TenantStatusHealthy
	tenant.AppliedHash = tenant.DesiredHash
	tenant.Applied = tenant.Desired
	tenant.LastApplied = now

	if from != types.TenantStatusHealthy {
		r.notify(types.EventStateSynced, tenant.TenantID, "desired and observed state converged")
		if from == types.TenantStatusReconciling {
			r.notify(types.EventHealCompleted, tenant.TenantID, "drift healed")
		}
	}
}

// handleDrift runs the healing policy over detected drift, highest
// severity first. At most one heal command is issued per pass so a tenant
// never carries more than one in-flight correlation.
func (r *Reconciler) handleDrift(ctx context.Context, tenant *types.TenantState, from types.TenantStatus, items []types.DriftItem, now time.Time, logger zerolog.Logger) error {
	// Fleet-wide drift gauges are owned by the metrics collector; a pass
	// only sees one tenant and must not overwrite them
	if from == types.TenantStatusHealthy {
		r.notify(types.EventDriftDetected, tenant.TenantID, fmt.Sprintf("%d drift item(s) detected", len(items)))
	}

	if from == types.TenantStatusError {
		// Awaiting acknowledgment; detection keeps the record current but
		// no automation runs
		return nil
	}

	if types.CanTransition(from, types.TenantStatusDriftDetected) && from != types.TenantStatusDriftDetected {
		tenant.Status = types.TenantStatusDriftDetected
	}

	for _, item := range items {
		decision, err := r.orchestrator.Decide(tenant, item, now)
		if err != nil {
			return err
		}

		if decision.Exhausted {
			logger.Warn().
				Str("component", item.Component).
				Str("type", string(item.Type)).
				Msg("heal attempts exhausted, escalating to error")
			tenant.Status = types.TenantStatusError
			r.notify(types.EventHealFailed, tenant.TenantID, fmt.Sprintf("heal attempts exhausted for %s:%s", item.Type, item.Component))
			return nil
		}

		if !decision.Eligible {
			logger.Debug().
				Str("component", item.Component).
				Str("reason", decision.Reason).
				Msg("drift item not auto-heal eligible")
			continue
		}

		correlationID, err := r.orchestrator.Heal(ctx, tenant, item, now)
		if err != nil {
			if errors.Is(err, healing.ErrExecutionFailed) {
				// Counted against the fingerprint; retried after backoff
				logger.Error().Err(err).Str("component", item.Component).Msg("heal command execution failed")
				r.notify(types.EventHealFailed, tenant.TenantID, fmt.Sprintf("heal execution failed for %s:%s", item.Type, item.Component))
				continue
			}
			return err
		}

		tenant.OpenCorrelationID = correlationID
		tenant.Status = types.TenantStatusReconciling
		return nil
	}

	return nil
}

// Acknowledge is the human override: a tenant in error state returns to
// drift_detected with its attempt counters cleared, so automation may run
// again
func (r *Reconciler) Acknowledge(tenantID, stackID string) error {
	tenant, err := r.store.GetTenant(tenantID, stackID)
	if err != nil {
		return fmt.Errorf("failed to load tenant: %w", err)
	}
	if tenant.Status != types.TenantStatusError {
		return fmt.Errorf("tenant %s is %s, acknowledgment applies to error state only", tenantID, tenant.Status)
	}

	if err := r.store.ResetHealAttempts(tenantID); err != nil {
		return fmt.Errorf("failed to reset heal attempts: %w", err)
	}

	tenant.Status = types.TenantStatusDriftDetected
	tenant.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateTenant(tenant); err != nil {
		return fmt.Errorf("failed to persist tenant state: %w", err)
	}

	logger := log.WithTenantID(tenantID)
	logger.Info().Msg("drift acknowledged, automation resumed")
	return nil
}

// synthesizeObserved builds the runtime view: the last applied composition
// as baseline, overridden by evidence from the recent event window, plus
// live resource probes
func (r *Reconciler) synthesizeObserved(ctx context.Context, tenant *types.TenantState, now time.Time) (*drift.Observed, error) {
	observed := &drift.Observed{
		Providers:      make(map[string]string),
		ResourceHealth: make(map[string]drift.ResourceHealth),
		Integrations:   make(map[string]map[string]string),
	}

	if tenant.Applied != nil {
		for slot, provider := range tenant.Applied.Providers {
			observed.Providers[slot] = provider
		}
		for name, cfg := range tenant.Applied.Integrations {
			copied := make(map[string]string, len(cfg))
			for k, v := range cfg {
				copied[k] = v
			}
			observed.Integrations[name] = copied
		}
	}

	recent, err := r.store.RecentEvents(tenant.TenantID, now.Add(-r.EventWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load recent events: %w", err)
	}

	// Events arrive ascending by timestamp, so later evidence wins
	for _, event := range recent {
		applyEventEvidence(observed, event)
	}

	if tenant.Desired != nil {
		for name, ref := range tenant.Desired.Resources {
			if ref.ProbeType == types.ProbeNone {
				continue
			}
			result := r.prober.Probe(ctx, ref)
			observed.ResourceHealth[name] = drift.ResourceHealth{
				Healthy: result.Healthy,
				Message: result.Message,
			}
		}
	}

	return observed, nil
}

// applyEventEvidence folds one event into the observed composition.
// Provider lifecycle events carry slot/provider payload fields;
// integration config events carry the integration name plus its observed
// settings.
func applyEventEvidence(observed *drift.Observed, event *types.EventRecord) {
	switch event.EventType {
	case "provider.registered", "provider.status":
		slot := event.Payload["slot"]
		provider := event.Payload["provider"]
		if slot != "" && provider != "" {
			observed.Providers[slot] = provider
		}
	case "provider.deregistered":
		if slot := event.Payload["slot"]; slot != "" {
			delete(observed.Providers, slot)
		}
	case "integration.config":
		name := event.Payload["integration"]
		if name == "" {
			return
		}
		cfg := make(map[string]string, len(event.Payload))
		for k, v := range event.Payload {
			if k == "integration" {
				continue
			}
			cfg[k] = v
		}
		observed.Integrations[name] = cfg
	}
}

// markError transitions a tenant to error state outside the normal pass,
// used by the panic boundary. Best effort: the pass already failed.
func (r *Reconciler) markError(tenantID, stackID, reason string) {
	tenant, err := r.store.GetTenant(tenantID, stackID)
	if err != nil {
		return
	}
	if !types.CanTransition(tenant.Status, types.TenantStatusError) {
		return
	}
	tenant.Status = types.TenantStatusError
	tenant.UpdatedAt = time.Now().UTC()
	if err := r.store.UpdateTenant(tenant); err != nil {
		logger := log.WithTenantID(tenantID)
		logger.Error().Err(err).Msg("failed to persist error state")
		return
	}
	r.notify(types.EventHealFailed, tenantID, reason)
}

func (r *Reconciler) notify(eventType, tenantID, message string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(&types.Notification{
		Type:     eventType,
		TenantID: tenantID,
		Message:  message,
	})
}
