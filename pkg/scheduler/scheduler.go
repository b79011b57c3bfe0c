package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/correlation"
	"github.com/blackwell-systems/stackwarden/pkg/log"
	"github.com/blackwell-systems/stackwarden/pkg/queue"
	"github.com/blackwell-systems/stackwarden/pkg/reconciler"
	"github.com/blackwell-systems/stackwarden/pkg/storage"
	"github.com/rs/zerolog"
)

// Config tunes the scheduling loop. Pool and batch sizes are
// configuration, not architecture.
type Config struct {
	// Interval between full sweeps across all tenants
	Interval time.Duration

	// Workers is the size of the fixed reconciliation worker pool
	Workers int

	// BatchSize bounds how many tenants are queued per sweep iteration
	BatchSize int

	// PassDeadline bounds one tenant reconciliation pass; zero means
	// match the sweep interval
	PassDeadline time.Duration

	// EventRetention is the event store window; older events are swept
	EventRetention time.Duration
}

// DefaultConfig returns the scheduling defaults
func DefaultConfig() Config {
	return Config{
		Interval:       5 * time.Minute,
		Workers:        8,
		BatchSize:      64,
		EventRetention: 30 * 24 * time.Hour,
	}
}

type job struct {
	tenantID string
	stackID  string
}

// Scheduler drives reconciliation: a periodic sweep across all active
// tenants plus immediate passes for event-triggered tenants, fanned out
// over a fixed worker pool. Per-tenant serialization is the reconciler
// lease's job; the scheduler only provides parallelism.
type Scheduler struct {
	store      storage.Store
	reconciler *reconciler.Reconciler
	tracker    *correlation.Tracker
	triggers   queue.Queue
	cfg        Config

	work   chan job
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler
func NewScheduler(store storage.Store, rec *reconciler.Reconciler, tracker *correlation.Tracker, triggers queue.Queue, cfg Config) *Scheduler {
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.PassDeadline <= 0 {
		cfg.PassDeadline = cfg.Interval
	}
	if cfg.EventRetention <= 0 {
		cfg.EventRetention = defaults.EventRetention
	}

	return &Scheduler{
		store:      store,
		reconciler: rec,
		tracker:    tracker,
		triggers:   triggers,
		cfg:        cfg,
		work:       make(chan job, cfg.BatchSize),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the worker pool, the sweep loop, and the trigger loop
func (s *Scheduler) Start() {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.wg.Add(2)
	go s.sweepLoop()
	go s.triggerLoop()
}

// Stop stops the scheduler and waits for in-flight passes to finish
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// Trigger requests an immediate reconciliation pass for a tenant,
// out-of-band from the timer
func (s *Scheduler) Trigger(ctx context.Context, tenantID string) error {
	return s.triggers.Enqueue(ctx, tenantID)
}

// worker executes reconciliation passes under the per-pass deadline
func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case j := <-s.work:
			s.runPass(j)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) runPass(j job) {
	logger := log.WithTenantID(j.tenantID)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PassDeadline)
	defer cancel()

	// Failures are isolated per tenant: log and move on, the next tick
	// retries
	if err := s.reconciler.Reconcile(ctx, j.tenantID, j.stackID); err != nil {
		logger.Error().Err(err).Str("stack_id", j.stackID).Msg("reconciliation pass failed")
	}
}

// sweepLoop runs the periodic full sweep
func (s *Scheduler) sweepLoop() {
	defer s.wg.Done()

	logger := log.WithComponent("scheduler")
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// First sweep immediately on start
	s.sweep(logger)

	for {
		select {
		case <-ticker.C:
			s.sweep(logger)
		case <-s.stopCh:
			return
		}
	}
}

// sweep expires overdue correlations, enforces event retention, and
// queues every active tenant for a pass
func (s *Scheduler) sweep(logger zerolog.Logger) {
	now := time.Now().UTC()

	expired, err := s.tracker.SweepExpired(now)
	if err != nil {
		logger.Error().Err(err).Msg("correlation sweep failed")
	} else if len(expired) > 0 {
		logger.Info().Int("count", len(expired)).Msg("expired correlations")
	}

	deleted, err := s.store.SweepEvents(now.Add(-s.cfg.EventRetention))
	if err != nil {
		logger.Error().Err(err).Msg("event retention sweep failed")
	} else if deleted > 0 {
		logger.Debug().Int("count", deleted).Msg("swept events past retention")
	}

	tenants, err := s.store.ListTenants()
	if err != nil {
		logger.Error().Err(err).Msg("failed to list tenants for sweep")
		return
	}

	for _, tenant := range tenants {
		if tenant.Archived {
			continue
		}
		select {
		case s.work <- job{tenantID: tenant.TenantID, stackID: tenant.StackID}:
		case <-s.stopCh:
			return
		}
	}
}

// triggerLoop feeds event-triggered passes into the same worker pool as
// the sweep; the lease keeps both paths single-flight per tenant
func (s *Scheduler) triggerLoop() {
	defer s.wg.Done()

	if s.triggers == nil {
		return
	}

	logger := log.WithComponent("scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-s.stopCh
		cancel()
	}()

	for {
		tenantID, err := s.triggers.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
				return
			}
			logger.Error().Err(err).Msg("trigger dequeue failed")
			continue
		}

		stacks, err := s.stacksFor(tenantID)
		if err != nil {
			logger.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to resolve tenant stacks")
			continue
		}

		for _, j := range stacks {
			select {
			case s.work <- j:
			case <-s.stopCh:
				return
			}
		}
	}
}

func (s *Scheduler) stacksFor(tenantID string) ([]job, error) {
	tenants, err := s.store.ListTenants()
	if err != nil {
		return nil, err
	}
	var jobs []job
	for _, tenant := range tenants {
		if tenant.TenantID == tenantID && !tenant.Archived {
			jobs = append(jobs, job{tenantID: tenant.TenantID, stackID: tenant.StackID})
		}
	}
	return jobs, nil
}
