package healing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/correlation"
	"github.com/blackwell-systems/stackwarden/pkg/drift"
	"github.com/blackwell-systems/stackwarden/pkg/log"
	"github.com/blackwell-systems/stackwarden/pkg/metrics"
	"github.com/blackwell-systems/stackwarden/pkg/storage"
	"github.com/blackwell-systems/stackwarden/pkg/types"
	"github.com/google/uuid"
)

// ErrExecutionFailed wraps synchronous failures from the external command
// executor. Retried per backoff policy, escalated after max attempts.
var ErrExecutionFailed = errors.New("healing execution failed")

// Executor runs corrective commands on behalf of the core. Executors must
// be idempotent per command id; the orchestrator guarantees it never
// re-issues while a correlation for the same fingerprint is still pending.
type Executor interface {
	Execute(ctx context.Context, cmd *types.Command) error
}

// Store is the persistence surface the orchestrator needs
type Store interface {
	GetHealAttempt(tenantID, fingerprint string) (*types.HealAttempt, error)
	PutHealAttempt(attempt *types.HealAttempt) error
	ListCorrelationsByTenant(tenantID string) ([]*types.CorrelationRecord, error)
}

// Decision explains whether a drift item may be auto-healed right now
type Decision struct {
	Eligible bool
	Reason   string

	// Exhausted is set when the fingerprint has used up its attempt
	// budget; the tenant escalates to error
	Exhausted bool
}

// Orchestrator decides, per drift item, whether to attempt automated
// correction, and issues the command when policy allows
type Orchestrator struct {
	store    Store
	tracker  *correlation.Tracker
	executor Executor

	// WindowSeconds is the consistency window for heal command
	// correlations; slow executors (multi-stage builds) configure a
	// longer one
	WindowSeconds int
}

// NewOrchestrator creates a healing orchestrator
func NewOrchestrator(store Store, tracker *correlation.Tracker, executor Executor) *Orchestrator {
	return &Orchestrator{
		store:         store,
		tracker:       tracker,
		executor:      executor,
		WindowSeconds: correlation.DefaultWindowSeconds,
	}
}

// Decide evaluates auto-heal eligibility for one drift item under the
// tenant's policy
func (o *Orchestrator) Decide(tenant *types.TenantState, item types.DriftItem, now time.Time) (Decision, error) {
	policy := tenant.Policy
	fingerprint := drift.Fingerprint(item)

	if !policy.AutoHeal {
		return Decision{Reason: "auto-heal disabled"}, nil
	}
	if policy.RequiresApproval(item.Type) {
		return Decision{Reason: fmt.Sprintf("drift type %s requires approval", item.Type)}, nil
	}

	attempt, err := o.store.GetHealAttempt(tenant.TenantID, fingerprint)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Decision{}, fmt.Errorf("failed to load heal attempts: %w", err)
	}
	if attempt != nil {
		if attempt.Attempts >= policy.MaxHealAttempts {
			return Decision{
				Reason:    fmt.Sprintf("attempts exhausted (%d/%d)", attempt.Attempts, policy.MaxHealAttempts),
				Exhausted: true,
			}, nil
		}
		if now.Before(attempt.NextEligible) {
			return Decision{Reason: fmt.Sprintf("backing off until %s", attempt.NextEligible.Format(time.RFC3339))}, nil
		}
	}

	open, err := o.pendingCorrelationFor(tenant.TenantID, fingerprint)
	if err != nil {
		return Decision{}, err
	}
	if open != nil {
		return Decision{Reason: "correlation still pending for fingerprint"}, nil
	}

	return Decision{Eligible: true}, nil
}

// Heal issues one corrective command for an eligible drift item, registers
// its correlation, and records the attempt. Returns the correlation id the
// caller attaches to the tenant.
func (o *Orchestrator) Heal(ctx context.Context, tenant *types.TenantState, item types.DriftItem, now time.Time) (string, error) {
	fingerprint := drift.Fingerprint(item)
	logger := log.WithTenantID(tenant.TenantID)

	cmd := &types.Command{
		CommandID: uuid.New().String(),
		TenantID:  tenant.TenantID,
		Type:      item.Type,
		Component: item.Component,
		Action:    actionFor(item.Type),
		Payload: map[string]string{
			"expected": item.Expected,
			"observed": item.Observed,
			"stack_id": tenant.StackID,
		},
		IssuedAt: now,
	}

	correlationID, err := o.tracker.Create(correlation.CreateOptions{
		CommandID:      cmd.CommandID,
		TenantID:       tenant.TenantID,
		Type:           types.CorrelationHealing,
		Fingerprint:    fingerprint,
		ExpectedEvents: []string{types.EventHealStarted, types.EventHealCompleted},
		WindowSeconds:  o.WindowSeconds,
	})
	if err != nil {
		return "", fmt.Errorf("failed to open heal correlation: %w", err)
	}
	cmd.CorrelationID = correlationID

	if err := o.recordAttempt(tenant, fingerprint, now); err != nil {
		return "", err
	}

	metrics.HealCommandsIssued.Inc()
	logger.Info().
		Str("fingerprint", fingerprint).
		Str("command_id", cmd.CommandID).
		Str("correlation_id", correlationID).
		Str("action", cmd.Action).
		Msg("issuing heal command")

	if err := o.executor.Execute(ctx, cmd); err != nil {
		// The command never got off the ground; close the correlation so
		// the next pass is free to retry after backoff
		if failErr := o.tracker.Fail(correlationID); failErr != nil {
			logger.Error().Err(failErr).Str("correlation_id", correlationID).
				Msg("failed to finalize correlation after executor failure")
		}
		metrics.HealOutcomes.WithLabelValues("execution_failed").Inc()
		return correlationID, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	return correlationID, nil
}

// recordAttempt bumps the fingerprint's attempt counter and schedules the
// earliest next retry per the tenant's backoff policy
func (o *Orchestrator) recordAttempt(tenant *types.TenantState, fingerprint string, now time.Time) error {
	attempt, err := o.store.GetHealAttempt(tenant.TenantID, fingerprint)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to load heal attempts: %w", err)
		}
		attempt = &types.HealAttempt{
			Fingerprint: fingerprint,
			TenantID:    tenant.TenantID,
		}
	}

	attempt.Attempts++
	attempt.LastAttempt = now
	attempt.NextEligible = now.Add(Delay(tenant.Policy, attempt.Attempts))

	if err := o.store.PutHealAttempt(attempt); err != nil {
		return fmt.Errorf("failed to record heal attempt: %w", err)
	}
	return nil
}

func (o *Orchestrator) pendingCorrelationFor(tenantID, fingerprint string) (*types.CorrelationRecord, error) {
	recs, err := o.store.ListCorrelationsByTenant(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list correlations: %w", err)
	}
	for _, rec := range recs {
		if rec.Fingerprint == fingerprint && rec.Status == types.CorrelationPending {
			return rec, nil
		}
	}
	return nil, nil
}

// actionFor maps a drift type to the corrective action executed by the
// external action layer
func actionFor(dt types.DriftType) string {
	switch dt {
	case types.DriftProvider:
		return "provider.reregister"
	case types.DriftResource:
		return "site.rebuild"
	case types.DriftIntegration:
		return "integration.resync"
	default:
		return "noop"
	}
}
