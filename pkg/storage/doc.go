/*
Package storage provides persistent state management using BoltDB.

Everything the reconciliation core remembers lives here: tenant state
records, the bounded event window, correlation records, heal attempt
counters, and reconciliation leases. The store is an embedded BoltDB
database, one file, no external process.

# Buckets

	tenants                active tenant state, key tenantID/stackID
	tenant_archive         offboarded tenants, never deleted
	events                 event records by event id
	events_by_tenant       time-ordered index, key tenantID/timestamp/eventID
	events_by_correlation  index, key correlationID/eventID
	correlations           correlation records by id
	heal_attempts          attempt counters, key tenantID/fingerprint
	leases                 reconciliation leases by tenant id

All values are JSON. The time component of the events_by_tenant key uses
a fixed-width timestamp format so lexicographic bucket order is
chronological order; cursor seeks over a tenant prefix return events
ascending by time without sorting.

# Idempotent Ingestion

AppendEvent checks the event id before writing inside the same
transaction. A replayed delivery returns ErrDuplicateEvent and changes
nothing, which upstream treats as a successful no-op. At-least-once
delivery from provider adapters therefore collapses to exactly-once in
the store.

# Leases

AcquireLease is a compare-and-swap inside a single update transaction: it
reads the current lease, fails with ErrLeaseHeld if it is live, and
writes the new lease otherwise. The owner label is informational; the
returned LeaseID is the release token, so two workers sharing a process
identity still contend. An expired lease is taken over; a crashed worker
blocks its tenant for at most the lease TTL.

# Archival

Tenant records are never deleted. ArchiveTenant moves the record into
tenant_archive with Archived set, keeping offboarded tenants queryable
for audit while removing them from every reconciliation path.

# Usage

	store, err := storage.NewBoltStore("/var/lib/stackwarden")
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.AppendEvent(event)
	if errors.Is(err, storage.ErrDuplicateEvent) {
		// replayed delivery, nothing to do
	}
*/
package storage
