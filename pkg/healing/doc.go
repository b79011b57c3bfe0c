/*
Package healing decides whether detected drift may be corrected
automatically, and issues the corrective commands when policy allows.

The orchestrator sits between drift detection and the outside world. It
never acts on its own schedule; the reconciler hands it one drift item at
a time and it answers with a decision, or issues exactly one command.

# Policy Gates

A drift item is eligible for automated healing only when every gate
passes:

 1. The tenant's policy has auto_heal enabled.
 2. The drift type is not listed in require_approval.
 3. The fingerprint has attempts remaining in its budget.
 4. The backoff delay from the previous attempt has elapsed.
 5. No correlation for the same fingerprint is still pending.

Gate 3 failing is special: the decision comes back Exhausted, and the
reconciler escalates the tenant to error state for human review. The
other gates just hold the item until conditions change.

# Attempt Accounting

Attempts are counted per drift fingerprint (type:component), not per
tenant, so a flapping CMS does not burn the retry budget of an unrelated
integration. Each issued command bumps the counter and schedules the
earliest next retry:

	linear:       delay = attempt * base
	exponential:  delay = base * 2^(attempt-1)

Delays cap at one hour. Counters reset only on human acknowledgment.

# Command Issue

An eligible item produces one command with a fresh id, a correlation
expecting heal_started and heal_completed within the consistency window,
and an attempt record, in that order. If the executor fails synchronously
the correlation is failed immediately and the error wraps
ErrExecutionFailed; the attempt still counts, and the next pass retries
after backoff.

Executors must be idempotent per command id. The orchestrator guarantees
it never re-issues while a correlation for the same fingerprint is
pending, but a command that was delivered and then timed out may be
retried with a new id.

Two executors ship with the package: WebhookExecutor posts the command as
JSON to the adapter bridge, LogExecutor records it and succeeds, for
deployments without a bridge and for tests.
*/
package healing
