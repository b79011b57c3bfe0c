/*
Package events provides event ingestion and pub/sub notification
distribution.

Two flows live here. The Ingestor is the write path for inbound provider
events: it stamps missing ids and timestamps, appends to the durable
event store (idempotently; replayed deliveries are dropped), attaches the
event to its correlation when it carries a correlation id, and enqueues a
reconciliation trigger so the affected tenant is re-checked ahead of the
next sweep. High-priority sources, the CMS and commerce adapters, always
trigger; drift there is revenue-visible.

The Broker is the read path for outbound status notifications:
state_synced, drift_detected, heal_started, heal_completed, heal_failed.
Subscribers get a buffered channel; slow subscribers lose messages rather
than block the pipeline.

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	for n := range sub {
		fmt.Printf("[%s] %s: %s\n", n.Type, n.TenantID, n.Message)
	}

Notifications are operational signals, not an audit log; the durable
record of what happened is the event store and the tenant state history.
*/
package events
