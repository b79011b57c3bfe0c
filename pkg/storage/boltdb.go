package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/types"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketTenants        = []byte("tenants")
	bucketTenantArchive  = []byte("tenant_archive")
	bucketEvents         = []byte("events")
	bucketEventsByTenant = []byte("events_by_tenant")
	bucketEventsByCorr   = []byte("events_by_correlation")
	bucketCorrelations   = []byte("correlations")
	bucketHealAttempts   = []byte("heal_attempts")
	bucketLeases         = []byte("leases")
)

// tsFormat is a fixed-width UTC timestamp layout so index keys sort
// lexicographically in time order
const tsFormat = "2006-01-02T15:04:05.000000000"

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "stackwarden.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketTenants,
			bucketTenantArchive,
			bucketEvents,
			bucketEventsByTenant,
			bucketEventsByCorr,
			bucketCorrelations,
			bucketHealAttempts,
			bucketLeases,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func tenantKey(tenantID, stackID string) []byte {
	return []byte(tenantID + "/" + stackID)
}

// Tenant operations

func (s *BoltStore) CreateTenant(state *types.TenantState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTenants)
		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		return b.Put(tenantKey(state.TenantID, state.StackID), data)
	})
}

func (s *BoltStore) GetTenant(tenantID, stackID string) (*types.TenantState, error) {
	var state types.TenantState
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTenants)
		data := b.Get(tenantKey(tenantID, stackID))
		if data == nil {
			return fmt.Errorf("tenant %s/%s: %w", tenantID, stackID, ErrNotFound)
		}
		return json.Unmarshal(data, &state)
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *BoltStore) ListTenants() ([]*types.TenantState, error) {
	var tenants []*types.TenantState
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTenants)
		return b.ForEach(func(k, v []byte) error {
			var state types.TenantState
			if err := json.Unmarshal(v, &state); err != nil {
				return err
			}
			tenants = append(tenants, &state)
			return nil
		})
	})
	return tenants, err
}

func (s *BoltStore) UpdateTenant(state *types.TenantState) error {
	return s.CreateTenant(state) // Same as create (upsert)
}

// ArchiveTenant moves a tenant record into the archive bucket. Records are
// never silently deleted; offboarded tenants stay queryable for audit.
func (s *BoltStore) ArchiveTenant(tenantID, stackID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTenants)
		key := tenantKey(tenantID, stackID)
		data := b.Get(key)
		if data == nil {
			return fmt.Errorf("tenant %s/%s: %w", tenantID, stackID, ErrNotFound)
		}

		var state types.TenantState
		if err := json.Unmarshal(data, &state); err != nil {
			return err
		}
		state.Archived = true
		state.UpdatedAt = time.Now().UTC()

		archived, err := json.Marshal(&state)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketTenantArchive).Put(key, archived); err != nil {
			return err
		}
		return b.Delete(key)
	})
}

// Event operations

func eventTenantIndexKey(tenantID string, ts time.Time, eventID string) []byte {
	return []byte(tenantID + "/" + ts.UTC().Format(tsFormat) + "/" + eventID)
}

func (s *BoltStore) AppendEvent(event *types.EventRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		key := []byte(event.EventID)
		if b.Get(key) != nil {
			return fmt.Errorf("event %s: %w", event.EventID, ErrDuplicateEvent)
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if err := b.Put(key, data); err != nil {
			return err
		}

		idx := tx.Bucket(bucketEventsByTenant)
		if err := idx.Put(eventTenantIndexKey(event.TenantID, event.Timestamp, event.EventID), key); err != nil {
			return err
		}

		if event.CorrelationID != "" {
			cidx := tx.Bucket(bucketEventsByCorr)
			ckey := []byte(event.CorrelationID + "/" + event.Timestamp.UTC().Format(tsFormat) + "/" + event.EventID)
			if err := cidx.Put(ckey, key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) RecentEvents(tenantID string, since time.Time) ([]*types.EventRecord, error) {
	var events []*types.EventRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketEventsByTenant)
		b := tx.Bucket(bucketEvents)

		prefix := []byte(tenantID + "/")
		start := eventTenantIndexKey(tenantID, since, "")
		c := idx.Cursor()
		for k, id := c.Seek(start); k != nil && bytes.HasPrefix(k, prefix); k, id = c.Next() {
			data := b.Get(id)
			if data == nil {
				continue
			}
			var event types.EventRecord
			if err := json.Unmarshal(data, &event); err != nil {
				return err
			}
			events = append(events, &event)
		}
		return nil
	})
	return events, err
}

func (s *BoltStore) EventsByCorrelation(correlationID string) ([]*types.EventRecord, error) {
	var events []*types.EventRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		idx := tx.Bucket(bucketEventsByCorr)
		b := tx.Bucket(bucketEvents)

		prefix := []byte(correlationID + "/")
		c := idx.Cursor()
		for k, id := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, id = c.Next() {
			data := b.Get(id)
			if data == nil {
				continue
			}
			var event types.EventRecord
			if err := json.Unmarshal(data, &event); err != nil {
				return err
			}
			events = append(events, &event)
		}
		return nil
	})
	return events, err
}

// SweepEvents enforces the retention window. The event store is a bounded
// window, not permanent history; the audit trail lives in tenant and
// correlation records.
func (s *BoltStore) SweepEvents(cutoff time.Time) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		idx := tx.Bucket(bucketEventsByTenant)
		cidx := tx.Bucket(bucketEventsByCorr)

		var stale []*types.EventRecord
		if err := b.ForEach(func(k, v []byte) error {
			var event types.EventRecord
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			if event.Timestamp.Before(cutoff) {
				stale = append(stale, &event)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, event := range stale {
			if err := b.Delete([]byte(event.EventID)); err != nil {
				return err
			}
			if err := idx.Delete(eventTenantIndexKey(event.TenantID, event.Timestamp, event.EventID)); err != nil {
				return err
			}
			if event.CorrelationID != "" {
				ckey := []byte(event.CorrelationID + "/" + event.Timestamp.UTC().Format(tsFormat) + "/" + event.EventID)
				if err := cidx.Delete(ckey); err != nil {
					return err
				}
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// Correlation operations

func (s *BoltStore) CreateCorrelation(rec *types.CorrelationRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCorrelations)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.CorrelationID), data)
	})
}

func (s *BoltStore) GetCorrelation(id string) (*types.CorrelationRecord, error) {
	var rec types.CorrelationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCorrelations)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("correlation %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *BoltStore) UpdateCorrelation(rec *types.CorrelationRecord) error {
	return s.CreateCorrelation(rec)
}

func (s *BoltStore) ListPendingCorrelations() ([]*types.CorrelationRecord, error) {
	var pending []*types.CorrelationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCorrelations)
		return b.ForEach(func(k, v []byte) error {
			var rec types.CorrelationRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.Status == types.CorrelationPending {
				pending = append(pending, &rec)
			}
			return nil
		})
	})
	return pending, err
}

func (s *BoltStore) ListCorrelationsByTenant(tenantID string) ([]*types.CorrelationRecord, error) {
	var recs []*types.CorrelationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCorrelations)
		return b.ForEach(func(k, v []byte) error {
			var rec types.CorrelationRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.TenantID == tenantID {
				recs = append(recs, &rec)
			}
			return nil
		})
	})
	return recs, err
}

// Heal attempt operations

func attemptKey(tenantID, fingerprint string) []byte {
	return []byte(tenantID + "/" + fingerprint)
}

func (s *BoltStore) GetHealAttempt(tenantID, fingerprint string) (*types.HealAttempt, error) {
	var attempt types.HealAttempt
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHealAttempts)
		data := b.Get(attemptKey(tenantID, fingerprint))
		if data == nil {
			return fmt.Errorf("heal attempt %s/%s: %w", tenantID, fingerprint, ErrNotFound)
		}
		return json.Unmarshal(data, &attempt)
	})
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (s *BoltStore) PutHealAttempt(attempt *types.HealAttempt) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHealAttempts)
		data, err := json.Marshal(attempt)
		if err != nil {
			return err
		}
		return b.Put(attemptKey(attempt.TenantID, attempt.Fingerprint), data)
	})
}

// ResetHealAttempts clears all attempt counters for a tenant. Called when
// a human acknowledges an error state.
func (s *BoltStore) ResetHealAttempts(tenantID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHealAttempts)
		prefix := []byte(tenantID + "/")
		c := b.Cursor()

		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			key := make([]byte, len(k))
			copy(key, k)
			keys = append(keys, key)
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Lease operations

// AcquireLease claims the per-tenant reconciliation slot using a
// compare-and-swap inside a single write transaction. Any live lease
// blocks acquisition, including one carrying the same owner label, so two
// workers of one process cannot reconcile the same tenant concurrently.
// An expired lease is taken over, which recovers from crashed workers.
func (s *BoltStore) AcquireLease(tenantID, owner string, ttl time.Duration) (*types.Lease, error) {
	var lease types.Lease
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		now := time.Now().UTC()

		if data := b.Get([]byte(tenantID)); data != nil {
			var current types.Lease
			if err := json.Unmarshal(data, &current); err != nil {
				return err
			}
			if current.Live(now) {
				return fmt.Errorf("tenant %s leased by %s: %w", tenantID, current.Owner, ErrLeaseHeld)
			}
		}

		lease = types.Lease{
			LeaseID:    uuid.New().String(),
			TenantID:   tenantID,
			Owner:      owner,
			AcquiredAt: now,
			ExpiresAt:  now.Add(ttl),
		}
		data, err := json.Marshal(&lease)
		if err != nil {
			return err
		}
		return b.Put([]byte(tenantID), data)
	})
	if err != nil {
		return nil, err
	}
	return &lease, nil
}

// ReleaseLease drops the lease whose release token is leaseID. Releasing
// a lease someone else took over after expiry is a no-op.
func (s *BoltStore) ReleaseLease(tenantID, leaseID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		data := b.Get([]byte(tenantID))
		if data == nil {
			return nil
		}
		var current types.Lease
		if err := json.Unmarshal(data, &current); err != nil {
			return err
		}
		if current.LeaseID != leaseID {
			return nil
		}
		return b.Delete([]byte(tenantID))
	})
}

func (s *BoltStore) GetLease(tenantID string) (*types.Lease, error) {
	var lease types.Lease
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		data := b.Get([]byte(tenantID))
		if data == nil {
			return fmt.Errorf("lease %s: %w", tenantID, ErrNotFound)
		}
		return json.Unmarshal(data, &lease)
	})
	if err != nil {
		return nil, err
	}
	return &lease, nil
}
