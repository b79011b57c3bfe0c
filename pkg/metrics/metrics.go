package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tenant metrics
	TenantsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stackwarden_tenants_total",
			Help: "Total number of tenant stacks by status",
		},
		[]string{"status"},
	)

	DriftItemsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stackwarden_drift_items_open",
			Help: "Open drift items by type and severity",
		},
		[]string{"type", "severity"},
	)

	// Reconciliation metrics
	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stackwarden_reconciliation_cycles_total",
			Help: "Total number of reconciliation passes",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stackwarden_reconciliation_duration_seconds",
			Help:    "Duration of one tenant reconciliation pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stackwarden_reconciliation_errors_total",
			Help: "Total number of reconciliation passes aborted by errors",
		},
	)

	// Event metrics
	EventsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stackwarden_events_ingested_total",
			Help: "Total number of events accepted by the event store",
		},
	)

	EventsDuplicate = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stackwarden_events_duplicate_total",
			Help: "Total number of duplicate event deliveries dropped",
		},
	)

	// Correlation metrics
	CorrelationsPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stackwarden_correlations_pending",
			Help: "Number of correlations currently awaiting events",
		},
	)

	CorrelationsFinalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stackwarden_correlations_finalized_total",
			Help: "Total number of correlations finalized by outcome",
		},
		[]string{"status"},
	)

	// Healing metrics
	HealCommandsIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stackwarden_heal_commands_issued_total",
			Help: "Total number of heal commands issued",
		},
	)

	HealOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stackwarden_heal_outcomes_total",
			Help: "Total number of heal outcomes by result",
		},
		[]string{"result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stackwarden_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TenantsTotal)
	prometheus.MustRegister(DriftItemsOpen)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationErrors)
	prometheus.MustRegister(EventsIngested)
	prometheus.MustRegister(EventsDuplicate)
	prometheus.MustRegister(CorrelationsPending)
	prometheus.MustRegister(CorrelationsFinalized)
	prometheus.MustRegister(HealCommandsIssued)
	prometheus.MustRegister(HealOutcomes)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
