package queue

import (
	"context"
	"sync"
)

// Memory is the in-process trigger queue used by single-node deployments
// and tests
type Memory struct {
	mu          sync.Mutex
	outstanding map[string]bool
	ch          chan string
	done        chan struct{}
	closed      bool
}

// NewMemory creates an in-memory trigger queue
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 256
	}
	return &Memory{
		outstanding: make(map[string]bool),
		ch:          make(chan string, capacity),
		done:        make(chan struct{}),
	}
}

// Enqueue adds a trigger unless one is already outstanding for the tenant
func (m *Memory) Enqueue(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.outstanding[tenantID] {
		m.mu.Unlock()
		return nil
	}
	m.outstanding[tenantID] = true
	m.mu.Unlock()

	// The item channel is never closed, so this send cannot panic even
	// when Close lands between the marker write and the send
	select {
	case m.ch <- tenantID:
		return nil
	case <-m.done:
		m.clearOutstanding(tenantID)
		return ErrClosed
	case <-ctx.Done():
		m.clearOutstanding(tenantID)
		return ctx.Err()
	}
}

// Dequeue blocks until a trigger arrives or the context ends
func (m *Memory) Dequeue(ctx context.Context) (string, error) {
	select {
	case <-m.done:
		return "", ErrClosed
	default:
	}

	select {
	case tenantID := <-m.ch:
		m.clearOutstanding(tenantID)
		return tenantID, nil
	case <-m.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Memory) clearOutstanding(tenantID string) {
	m.mu.Lock()
	delete(m.outstanding, tenantID)
	m.mu.Unlock()
}

// Close shuts the queue; outstanding triggers are dropped
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}
