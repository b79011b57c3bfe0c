/*
Package types defines the core domain model shared by every component.

The central record is TenantState: one per (tenant, stack) pair, holding
the declared composition, the last applied composition, the open drift
items, and the reconciliation policy. Around it sit the records the
pipeline produces and consumes: EventRecord for inbound signals,
CorrelationRecord for command/event windows, Command for outbound heal
actions, HealAttempt for retry accounting, and Lease for pass
serialization.

# Status Machine

Tenant status is a closed state machine; CanTransition is the single
source of truth for which moves are legal:

	healthy        -> drift_detected
	drift_detected -> reconciling, error, healthy
	reconciling    -> healthy, drift_detected, error
	error          -> drift_detected

Self-transitions are always allowed. The reconciler is the only writer.

# Correlation Ordering

CorrelationRecord buffers events with arrival sequence numbers, but
OrderedEvents sorts by event timestamp with ties broken by event id, so
every consumer sees the same causal order regardless of delivery races.

This package depends on nothing else in the module; everything else
depends on it.
*/
package types
