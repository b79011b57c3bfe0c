/*
Package reconciler implements the per-tenant reconciliation pass that keeps
composed tenant stacks converged on their declared composition.

A tenant stack is assembled from external providers: a CMS filling the
content slot, a commerce backend filling the ecommerce slot, a static-site
builder, plus the integration configs wiring them together. None of those
providers are under our control. The reconciler's job is to continuously
answer one question per tenant: does what we observe out there still match
what the tenant declared, and if not, what do we do about it.

# Architecture

Each pass runs the same pipeline:

	┌────────────────────────────────────────────────────────────┐
	│                  Reconciliation Pass                       │
	│              (per tenant, lease-guarded)                   │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	        ┌─────────────────┐
	        │ Acquire lease   │──── held elsewhere ──▶ skip
	        └────────┬────────┘
	                 ▼
	        ┌─────────────────┐
	        │ Settle open     │──── window open ─────▶ wait for
	        │ correlation     │                        next tick
	        └────────┬────────┘
	                 ▼
	        ┌─────────────────┐
	        │ Synthesize      │  applied baseline
	        │ observed state  │  + event evidence
	        └────────┬────────┘  + live probes
	                 ▼
	        ┌─────────────────┐
	        │ Detect drift    │  desired vs observed
	        └────────┬────────┘
	                 ▼
	     ┌───────────┴───────────┐
	     ▼                       ▼
	┌──────────┐         ┌──────────────┐
	│ Converge │         │ Handle drift │
	│ (healthy)│         │ (heal/hold)  │
	└──────────┘         └──────────────┘

# Observed State Synthesis

There is no single system to query for "the truth". Observed state is
synthesized from three sources, in increasing order of authority:

 1. The last applied composition. A provider that registered during the
    previous convergence is assumed present until evidence says otherwise.
 2. The recent event window. Provider lifecycle events
    (provider.registered, provider.deregistered, provider.status) and
    integration.config events override the baseline. Events fold in
    ascending timestamp order, so the latest evidence wins.
 3. Live resource probes. Declared resources with an HTTP or TCP probe are
    checked at pass time; probe results are authoritative for resource
    health.

A declared provider slot with no baseline and no event evidence is
observed as missing, which the detector reports as critical provider
drift.

# Status Machine

The reconciler is the only writer of tenant status. Transitions:

	healthy ──────────▶ drift_detected
	drift_detected ───▶ reconciling | error | healthy
	reconciling ──────▶ healthy | drift_detected | error
	error ────────────▶ drift_detected   (acknowledgment only)

Error state is sticky: automation halts until a human calls Acknowledge,
which resets the heal attempt counters and returns the tenant to
drift_detected. Drift resolving on its own does not clear error state;
the operator asked to be the one who decides.

# In-flight Correlations

At most one heal command is in flight per tenant. While its consistency
window is open the pass returns early without running detection, so the
detector never reads a half-finished heal transaction as new drift. Once
the window closes the correlation settles into exactly one outcome:

  - completed with an ordered heal_started/heal_completed sequence: the
    heal worked, normal detection resumes
  - expired with events missing: recorded as medium integration drift and
    handed back to detection
  - anything else: counted as a failed heal

# Concurrency

Passes for different tenants run in parallel on the scheduler's worker
pool. Passes for the same tenant are serialized by a CAS lease in the
store; the losing caller skips rather than waits, because the winner is
already doing the same work. A panic inside one pass is recovered at the
pass boundary, marks the tenant error, and never takes down the batch.

# Usage

	rec := reconciler.New(store, tracker, orchestrator, prober, broker, hostname)

	// Scheduled or on-demand; same entry point
	if err := rec.Reconcile(ctx, "acme", "storefront"); err != nil {
		// pass aborted, state untouched, next tick retries
	}

	// Human override after escalation
	if err := rec.Acknowledge("acme", "storefront"); err != nil {
		// tenant was not in error state
	}
*/
package reconciler
