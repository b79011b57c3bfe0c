package metrics

import (
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/storage"
	"github.com/blackwell-systems/stackwarden/pkg/types"
)

// Collector periodically samples the store into the tenant, drift, and
// correlation gauges
type Collector struct {
	store  storage.StateStore
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store storage.StateStore) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectTenantMetrics()
	c.collectCorrelationMetrics()
}

func (c *Collector) collectTenantMetrics() {
	tenants, err := c.store.ListTenants()
	if err != nil {
		return
	}

	statusCounts := make(map[types.TenantStatus]int)
	driftCounts := make(map[types.DriftType]map[types.Severity]int)

	for _, tenant := range tenants {
		statusCounts[tenant.Status]++
		for _, item := range tenant.DriftDetails {
			if driftCounts[item.Type] == nil {
				driftCounts[item.Type] = make(map[types.Severity]int)
			}
			driftCounts[item.Type][item.Severity]++
		}
	}

	TenantsTotal.Reset()
	for status, count := range statusCounts {
		TenantsTotal.WithLabelValues(string(status)).Set(float64(count))
	}

	DriftItemsOpen.Reset()
	for driftType, bySeverity := range driftCounts {
		for severity, count := range bySeverity {
			DriftItemsOpen.WithLabelValues(string(driftType), string(severity)).Set(float64(count))
		}
	}
}

func (c *Collector) collectCorrelationMetrics() {
	pending, err := c.store.ListPendingCorrelations()
	if err != nil {
		return
	}
	CorrelationsPending.Set(float64(len(pending)))
}
