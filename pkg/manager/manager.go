package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/api"
	"github.com/blackwell-systems/stackwarden/pkg/config"
	"github.com/blackwell-systems/stackwarden/pkg/correlation"
	"github.com/blackwell-systems/stackwarden/pkg/events"
	"github.com/blackwell-systems/stackwarden/pkg/healing"
	"github.com/blackwell-systems/stackwarden/pkg/log"
	"github.com/blackwell-systems/stackwarden/pkg/metrics"
	"github.com/blackwell-systems/stackwarden/pkg/probe"
	"github.com/blackwell-systems/stackwarden/pkg/queue"
	"github.com/blackwell-systems/stackwarden/pkg/reconciler"
	"github.com/blackwell-systems/stackwarden/pkg/scheduler"
	"github.com/blackwell-systems/stackwarden/pkg/storage"
	"github.com/blackwell-systems/stackwarden/pkg/types"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"
)

// applyTimeout bounds one Raft log application
const applyTimeout = 10 * time.Second

// Manager is the composition root: it owns the store, the event pipeline,
// the reconciliation loop, and the HTTP surface, and optionally replicates
// tenant declarations across a Raft cluster
type Manager struct {
	cfg *config.Server

	store        storage.Store
	broker       *events.Broker
	tracker      *correlation.Tracker
	triggers     queue.Queue
	ingestor     *events.Ingestor
	orchestrator *healing.Orchestrator
	reconciler   *reconciler.Reconciler
	scheduler    *scheduler.Scheduler
	collector    *metrics.Collector
	httpServer   *http.Server

	raft *raft.Raft
	fsm  *StateFSM

	logger zerolog.Logger
}

// NewManager wires the full reconciliation core from configuration
func NewManager(cfg *config.Server) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %v", err)
	}

	broker := events.NewBroker()
	tracker := correlation.NewTracker(store)

	var triggers queue.Queue
	if cfg.Redis.Enabled {
		triggers, err = queue.NewRedis(cfg.Redis.Addr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect trigger queue: %v", err)
		}
	} else {
		triggers = queue.NewMemory(1024)
	}

	ingestor := events.NewIngestor(store, tracker, triggers)

	var executor healing.Executor = healing.LogExecutor{}
	if cfg.Healing.ExecutorURL != "" {
		executor = healing.NewWebhookExecutor(cfg.Healing.ExecutorURL)
	}
	orchestrator := healing.NewOrchestrator(store, tracker, executor)
	if cfg.Healing.WindowSeconds > 0 {
		orchestrator.WindowSeconds = cfg.Healing.WindowSeconds
	}

	owner := cfg.Raft.NodeID
	if owner == "" {
		owner, _ = os.Hostname()
	}
	rec := reconciler.New(store, tracker, orchestrator, probe.NewLiveProber(), broker, owner)

	schedCfg := scheduler.Config{
		Interval:       cfg.Scheduler.Interval.Std(),
		Workers:        cfg.Scheduler.Workers,
		BatchSize:      cfg.Scheduler.BatchSize,
		PassDeadline:   cfg.Scheduler.PassDeadline.Std(),
		EventRetention: cfg.Scheduler.EventRetention.Std(),
	}
	sched := scheduler.NewScheduler(store, rec, tracker, triggers, schedCfg)

	m := &Manager{
		cfg:          cfg,
		store:        store,
		broker:       broker,
		tracker:      tracker,
		triggers:     triggers,
		ingestor:     ingestor,
		orchestrator: orchestrator,
		reconciler:   rec,
		scheduler:    sched,
		collector:    metrics.NewCollector(store),
		fsm:          NewStateFSM(store),
		logger:       log.WithComponent("manager"),
	}

	// The manager is the declarer so manifests admitted over HTTP flow
	// through Raft when it is enabled
	apiServer := api.New(store, ingestor, rec, orchestrator, m)
	m.httpServer = &http.Server{
		Addr:    cfg.Listen,
		Handler: apiServer.Router(),
	}
	return m, nil
}

// Start brings up the broker, the collector, the scheduler, and the HTTP
// listener
func (m *Manager) Start() error {
	if m.cfg.Raft.Enabled && m.raft == nil {
		if err := m.Bootstrap(); err != nil {
			return err
		}
	}

	m.broker.Start()
	m.collector.Start()
	m.scheduler.Start()

	go func() {
		m.logger.Info().Str("addr", m.httpServer.Addr).Msg("http listener starting")
		if err := m.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error().Err(err).Msg("http listener failed")
		}
	}()
	return nil
}

// Stop shuts the manager down in reverse start order
func (m *Manager) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.httpServer.Shutdown(ctx); err != nil {
		m.logger.Error().Err(err).Msg("http shutdown failed")
	}

	m.scheduler.Stop()
	m.collector.Stop()
	m.broker.Stop()

	if err := m.triggers.Close(); err != nil {
		m.logger.Error().Err(err).Msg("trigger queue close failed")
	}

	if m.raft != nil {
		if err := m.raft.Shutdown().Error(); err != nil {
			m.logger.Error().Err(err).Msg("raft shutdown failed")
		}
	}
	return m.store.Close()
}

// Bootstrap initializes a new single-node Raft cluster
func (m *Manager) Bootstrap() error {
	r, transport, err := m.newRaft()
	if err != nil {
		return err
	}
	m.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{
				ID:      raft.ServerID(m.cfg.Raft.NodeID),
				Address: transport.LocalAddr(),
			},
		},
	}
	if err := m.raft.BootstrapCluster(configuration).Error(); err != nil {
		return fmt.Errorf("failed to bootstrap cluster: %v", err)
	}
	return nil
}

// Join starts Raft without bootstrapping; an existing leader adds this
// node as a voter
func (m *Manager) Join() error {
	r, _, err := m.newRaft()
	if err != nil {
		return err
	}
	m.raft = r
	return nil
}

// AddVoter adds a peer to the cluster. Leader only.
func (m *Manager) AddVoter(nodeID, addr string) error {
	if m.raft == nil {
		return fmt.Errorf("raft is not running")
	}
	return m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(addr), 0, applyTimeout).Error()
}

// IsLeader reports whether this node currently leads the cluster
func (m *Manager) IsLeader() bool {
	return m.raft != nil && m.raft.State() == raft.Leader
}

func (m *Manager) newRaft() (*raft.Raft, *raft.NetworkTransport, error) {
	rc := raft.DefaultConfig()
	rc.LocalID = raft.ServerID(m.cfg.Raft.NodeID)

	// LAN deployment, trade WAN safety margin for faster failover
	rc.HeartbeatTimeout = 500 * time.Millisecond
	rc.ElectionTimeout = 500 * time.Millisecond
	rc.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", m.cfg.Raft.BindAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve bind address: %v", err)
	}

	transport, err := raft.NewTCPTransport(m.cfg.Raft.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create transport: %v", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create snapshot store: %v", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log store: %v", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stable store: %v", err)
	}

	r, err := raft.NewRaft(rc, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create raft: %v", err)
	}
	return r, transport, nil
}

// Declare registers or updates a tenant stack from its manifest. The
// declared composition becomes the reconciliation target on the next pass.
func (m *Manager) Declare(manifest *config.TenantManifest) (*types.TenantState, error) {
	now := time.Now().UTC()
	desired := manifest.Spec.Composition()

	state, err := m.store.GetTenant(manifest.Metadata.Tenant, manifest.Metadata.Stack)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to load tenant: %w", err)
		}
		state = &types.TenantState{
			TenantID:  manifest.Metadata.Tenant,
			StackID:   manifest.Metadata.Stack,
			Status:    types.TenantStatusHealthy,
			Policy:    types.DefaultPolicy(),
			CreatedAt: now,
		}
	}

	if state.DesiredHash != "" && state.DesiredHash != desired.Hash() {
		state.PreviousVersions = append(state.PreviousVersions, state.DesiredHash)
	}
	state.Desired = desired
	state.DesiredHash = desired.Hash()
	state.Resources = desired.Resources
	if manifest.Spec.Policy != nil {
		state.Policy = manifest.Spec.Policy.Policy()
	}
	state.StateVersion++
	state.UpdatedAt = now

	if err := m.putTenant(state); err != nil {
		return nil, err
	}
	return state, nil
}

// Archive offboards a tenant stack; its record moves to the archive
// bucket and stops being reconciled
func (m *Manager) Archive(tenantID, stackID string) error {
	if m.raft != nil {
		data, err := json.Marshal(map[string]string{
			"tenant_id": tenantID,
			"stack_id":  stackID,
		})
		if err != nil {
			return err
		}
		return m.apply("archive_tenant", data)
	}
	return m.store.ArchiveTenant(tenantID, stackID)
}

// Store exposes the persistence layer to the CLI
func (m *Manager) Store() storage.Store {
	return m.store
}

// Reconciler exposes the reconciliation loop for on-demand passes
func (m *Manager) Reconciler() *reconciler.Reconciler {
	return m.reconciler
}

// Broker exposes the notification broker for subscribers
func (m *Manager) Broker() *events.Broker {
	return m.broker
}

func (m *Manager) putTenant(state *types.TenantState) error {
	if m.raft != nil {
		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		return m.apply("put_tenant", data)
	}
	return m.store.UpdateTenant(state)
}

func (m *Manager) apply(op string, data json.RawMessage) error {
	if !m.IsLeader() {
		return fmt.Errorf("not the cluster leader")
	}
	payload, err := json.Marshal(fsmCommand{Op: op, Data: data})
	if err != nil {
		return err
	}
	future := m.raft.Apply(payload, applyTimeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to apply raft log: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if applyErr, ok := resp.(error); ok {
			return applyErr
		}
	}
	return nil
}
