/*
Package manager is the composition root: it wires the store, the event
pipeline, the reconciliation loop, and the HTTP surface into one
runnable daemon, and optionally replicates tenant declarations across a
Raft cluster.

# Single Node

The default deployment is one process:

	cfg, _ := config.LoadServer(path)
	mgr, _ := manager.NewManager(cfg)
	mgr.Start()
	defer mgr.Stop()

Declarations write straight to the local store; the scheduler, the
ingestion API, and the metrics collector all run in-process.

# Replicated Managers

With raft enabled, tenant declarations and archivals flow through a Raft
log instead of writing the store directly. StateFSM applies committed
entries on every node, so the tenant registry converges cluster-wide and
a follower taking over leadership already has it. Only the leader admits
changes; followers reject Declare and Archive with a not-leader error.

Only the registry is replicated. Events, correlations, heal attempts, and
leases stay node-local: they describe work in progress on this node, and
replaying them on a follower would double-issue heal commands.

The Raft log and stable stores are BoltDB files beside the state
database; snapshots capture the full tenant list and compact the log.
*/
package manager
