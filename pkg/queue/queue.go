package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned when dequeuing from a closed queue
var ErrClosed = errors.New("queue closed")

// Queue carries reconcile triggers: tenant ids whose state should be
// re-checked ahead of the next scheduled sweep. Implementations
// de-duplicate, so a tenant with a trigger already outstanding is not
// enqueued twice.
type Queue interface {
	// Enqueue requests an immediate reconciliation pass for a tenant
	Enqueue(ctx context.Context, tenantID string) error

	// Dequeue blocks until a trigger is available or the context ends
	Dequeue(ctx context.Context) (string, error)

	Close() error
}
