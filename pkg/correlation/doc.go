/*
Package correlation tracks issued commands against the events they are
expected to produce within a bounded time window.

External providers are eventually consistent: a heal command issued now
produces heal_started and heal_completed events seconds later, possibly
out of order, possibly duplicated, possibly never. The tracker gives each
command a consistency window and buffers whatever arrives inside it, so
the rest of the system reasons about settled transactions instead of
in-flight noise.

# Lifecycle

A correlation moves through exactly one terminal transition:

	                ┌──────────┐
	   Create ─────▶│ pending  │
	                └────┬─────┘
	      all expected   │   window passed      executor
	      events arrive  │   events missing     failed
	          ┌──────────┼──────────┬───────────────┐
	          ▼                     ▼               ▼
	    ┌───────────┐         ┌──────────┐    ┌──────────┐
	    │ completed │         │ expired  │    │  failed  │
	    └───────────┘         └──────────┘    └──────────┘

Finalization is guarded per correlation id: Attach, Fail, and SweepExpired
re-read the record under the correlation's lock before writing, so a
correlation completing at the same instant its window expires settles
exactly once. Completion is checked before expiry, so a full set of events
arriving on the boundary counts as completed.

# Event Buffering

Events attach to a correlation in arrival order and are kept with a
sequence number. Consumers that care about causality use OrderedEvents,
which sorts by event timestamp and breaks ties by event id, giving every
reader the same deterministic order no matter how delivery raced.

Attaching is idempotent per event id, and events arriving after
finalization are not attached; the transaction already settled without
them.

# Expiry

Nothing fires when a window lapses. Expiry is detected lazily by the
scheduler's sweep and by any pass that inspects the correlation after the
deadline. An expired heal correlation is translated by ExpiryDrift into a
medium-severity integration drift item, which is how "the provider never
answered" re-enters the normal drift pipeline.

# Usage

	tracker := correlation.NewTracker(store)

	id, err := tracker.Create(correlation.CreateOptions{
		CommandID:      cmd.CommandID,
		TenantID:       "acme",
		Type:           types.CorrelationHealing,
		ExpectedEvents: []string{types.EventHealStarted, types.EventHealCompleted},
		WindowSeconds:  5,
	})

	// On event ingestion
	status, err := tracker.Attach(id, event)

	// Periodically
	expired, err := tracker.SweepExpired(time.Now().UTC())
*/
package correlation
