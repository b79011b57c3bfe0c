/*
Package metrics provides Prometheus metrics for the reconciliation core.

All metrics carry the stackwarden_ prefix and register at package init.
Counters and histograms are instrumented inline where the work happens:
reconciliation passes, event ingestion, correlation finalization, heal
command issue and outcome, API requests. Gauges that describe stored
state (tenants by status, open drift by type and severity, pending
correlations) are sampled by the Collector every 15 seconds rather than
maintained incrementally, so a crashed pass can never leave them stale.

# Key Metrics

	stackwarden_tenants_total{status}
	stackwarden_drift_items_open{type,severity}
	stackwarden_reconciliation_cycles_total
	stackwarden_reconciliation_duration_seconds
	stackwarden_reconciliation_errors_total
	stackwarden_events_ingested_total
	stackwarden_events_duplicate_total
	stackwarden_correlations_pending
	stackwarden_correlations_finalized_total{status}
	stackwarden_heal_commands_issued_total
	stackwarden_heal_outcomes_total{result}
	stackwarden_api_requests_total{route,status}

Handler returns the scrape endpoint; the API server mounts it at
/metrics.

Timer is a small convenience for observing durations:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)
*/
package metrics
