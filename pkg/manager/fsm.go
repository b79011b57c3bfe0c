package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/blackwell-systems/stackwarden/pkg/storage"
	"github.com/blackwell-systems/stackwarden/pkg/types"
	"github.com/hashicorp/raft"
)

// StateFSM implements the Raft finite state machine for replicated tenant
// state. Declarations and archivals flow through the Raft log so every
// manager node converges on the same tenant registry.
type StateFSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewStateFSM creates a new FSM instance
func NewStateFSM(store storage.Store) *StateFSM {
	return &StateFSM{
		store: store,
	}
}

// fsmCommand represents a state change operation in the Raft log
type fsmCommand struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// Apply applies a Raft log entry to the FSM
// This is called by Raft when a log entry is committed
func (f *StateFSM) Apply(log *raft.Log) interface{} {
	var cmd fsmCommand
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case "put_tenant":
		var state types.TenantState
		if err := json.Unmarshal(cmd.Data, &state); err != nil {
			return err
		}
		return f.store.UpdateTenant(&state)

	case "archive_tenant":
		var key struct {
			TenantID string `json:"tenant_id"`
			StackID  string `json:"stack_id"`
		}
		if err := json.Unmarshal(cmd.Data, &key); err != nil {
			return err
		}
		return f.store.ArchiveTenant(key.TenantID, key.StackID)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot creates a point-in-time snapshot of the FSM
// This is called periodically by Raft to compact the log
func (f *StateFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	tenants, err := f.store.ListTenants()
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %v", err)
	}

	return &stateSnapshot{Tenants: tenants}, nil
}

// Restore restores the FSM from a snapshot
// This is called when a node restarts or joins the cluster
func (f *StateFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot stateSnapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, tenant := range snapshot.Tenants {
		if err := f.store.CreateTenant(tenant); err != nil {
			return fmt.Errorf("failed to restore tenant: %v", err)
		}
	}
	return nil
}

// stateSnapshot represents a point-in-time snapshot of the tenant registry
type stateSnapshot struct {
	Tenants []*types.TenantState
}

// Persist writes the snapshot to the given SnapshotSink
func (s *stateSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
	}
	return err
}

// Release releases the snapshot resources
func (s *stateSnapshot) Release() {}
