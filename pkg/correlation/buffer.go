package correlation

import (
	"strings"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/types"
)

// The consistency buffer absorbs the delivery jitter of asynchronously
// arriving events so the drift detector never sees a partially-arrived
// transaction as a steady state. A correlation's buffer is drained when it
// is complete or its window has expired, whichever happens first.

// Drainable reports whether a correlation's buffer is ready to hand to the
// reconciler
func Drainable(rec *types.CorrelationRecord, now time.Time) bool {
	if rec.Status.Final() {
		return true
	}
	return rec.Complete() || rec.Expired(now)
}

// ExpiryDrift builds the drift item recorded when a correlation's window
// closes with expected events still missing. The component is the
// correlation's fingerprint, not its id, so repeated expiries of the same
// failure mode share one fingerprint and count against one heal attempt
// budget.
func ExpiryDrift(rec *types.CorrelationRecord, now time.Time) *types.DriftItem {
	missing := rec.MissingEvents()
	if len(missing) == 0 {
		return nil
	}
	component := rec.Fingerprint
	if component == "" {
		component = strings.Join(missing, ",")
	}
	return &types.DriftItem{
		Type:       types.DriftIntegration,
		Component:  component,
		Expected:   strings.Join(rec.ExpectedEvents, ","),
		Observed:   strings.Join(rec.ReceivedEvents, ","),
		Severity:   types.SeverityMedium,
		DetectedAt: now,
	}
}

// HealSucceeded inspects a drained buffer and reports whether the heal
// transaction ran to a successful completion: heal_started followed by
// heal_completed in ordered sequence, with no heal_failed in between
func HealSucceeded(rec *types.CorrelationRecord) bool {
	if rec.Status != types.CorrelationCompleted {
		return false
	}
	started := false
	for _, ev := range rec.OrderedEvents() {
		switch ev.EventType {
		case types.EventHealStarted:
			started = true
		case types.EventHealFailed:
			return false
		case types.EventHealCompleted:
			if started {
				return true
			}
		}
	}
	return false
}
