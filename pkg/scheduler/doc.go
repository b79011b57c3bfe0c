/*
Package scheduler drives the reconciliation loop: a periodic sweep across
all active tenants plus immediate passes for event-triggered tenants,
fanned out over a fixed worker pool.

	                    ┌─────────────┐
	  sweep ticker ────▶│             │
	                    │  work chan  │────▶ worker ─▶ Reconcile
	  trigger queue ───▶│             │────▶ worker ─▶ Reconcile
	                    └─────────────┘────▶ worker ─▶ Reconcile

Both paths feed the same pool, and the reconciler's lease keeps passes
single-flight per tenant, so a trigger racing the sweep costs one skipped
pass, never a double one.

The sweep also carries the housekeeping nobody else owns: expiring
overdue correlations and enforcing event retention. Triggers arrive as
bare tenant ids; the scheduler resolves every active stack for the tenant
and queues each as its own pass.

Worker count and batch size are deployment tuning, not architecture.
Defaults: 5 minute sweep, 8 workers, 64 queued passes, 30 day event
retention.
*/
package scheduler
