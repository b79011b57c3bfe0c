package manager

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/blackwell-systems/stackwarden/pkg/storage"
	"github.com/blackwell-systems/stackwarden/pkg/types"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	bytes.Buffer
	cancelled bool
}

func (f *fakeSink) Close() error  { return nil }
func (f *fakeSink) Cancel() error { f.cancelled = true; return nil }
func (f *fakeSink) ID() string    { return "snap-test" }

func newTestFSM(t *testing.T) (*StateFSM, *storage.BoltStore) {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewStateFSM(store), store
}

func putTenantEntry(t *testing.T, tenant *types.TenantState) *raft.Log {
	t.Helper()

	data, err := json.Marshal(tenant)
	require.NoError(t, err)
	entry, err := json.Marshal(fsmCommand{Op: "put_tenant", Data: data})
	require.NoError(t, err)
	return &raft.Log{Data: entry}
}

func TestFSMApplyPutTenant(t *testing.T) {
	fsm, store := newTestFSM(t)

	tenant := &types.TenantState{
		TenantID: "acme",
		StackID:  "storefront",
		Status:   types.TenantStatusHealthy,
		Policy:   types.DefaultPolicy(),
	}
	require.Nil(t, fsm.Apply(putTenantEntry(t, tenant)))

	got, err := store.GetTenant("acme", "storefront")
	require.NoError(t, err)
	assert.Equal(t, types.TenantStatusHealthy, got.Status)
}

func TestFSMApplyArchiveTenant(t *testing.T) {
	fsm, store := newTestFSM(t)
	require.Nil(t, fsm.Apply(putTenantEntry(t, &types.TenantState{TenantID: "acme", StackID: "storefront"})))

	data, err := json.Marshal(map[string]string{"tenant_id": "acme", "stack_id": "storefront"})
	require.NoError(t, err)
	entry, err := json.Marshal(fsmCommand{Op: "archive_tenant", Data: data})
	require.NoError(t, err)

	require.Nil(t, fsm.Apply(&raft.Log{Data: entry}))

	_, err = store.GetTenant("acme", "storefront")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFSMApplyUnknownOp(t *testing.T) {
	fsm, _ := newTestFSM(t)

	entry, err := json.Marshal(fsmCommand{Op: "drop_everything"})
	require.NoError(t, err)

	res := fsm.Apply(&raft.Log{Data: entry})
	applyErr, ok := res.(error)
	require.True(t, ok)
	assert.Contains(t, applyErr.Error(), "unknown command")
}

func TestFSMSnapshotRestore(t *testing.T) {
	fsm, _ := newTestFSM(t)
	require.Nil(t, fsm.Apply(putTenantEntry(t, &types.TenantState{TenantID: "acme", StackID: "storefront"})))
	require.Nil(t, fsm.Apply(putTenantEntry(t, &types.TenantState{TenantID: "globex", StackID: "blog"})))

	snap, err := fsm.Snapshot()
	require.NoError(t, err)

	sink := &fakeSink{}
	require.NoError(t, snap.Persist(sink))
	assert.False(t, sink.cancelled)

	// Restore into an empty node
	restored, restoredStore := newTestFSM(t)
	require.NoError(t, restored.Restore(io.NopCloser(bytes.NewReader(sink.Bytes()))))

	tenants, err := restoredStore.ListTenants()
	require.NoError(t, err)
	assert.Len(t, tenants, 2)
}
