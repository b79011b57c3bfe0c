/*
Package queue carries reconcile triggers: tenant ids whose state should
be re-checked ahead of the next scheduled sweep.

Both implementations de-duplicate, so a tenant with a trigger already
outstanding is not enqueued twice no matter how many events arrive in a
burst. Memory is the in-process queue for single-node deployments and
tests. Redis backs multi-process deployments: every API node pushes
triggers, every scheduler node competes for them, and the outstanding set
makes de-duplication hold across processes.

Triggers are hints, not commands. A lost trigger costs at most one sweep
interval of staleness; the periodic sweep re-checks every tenant
regardless.
*/
package queue
