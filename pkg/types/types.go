package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// TenantStatus represents the reconciliation state of a tenant stack
type TenantStatus string

const (
	TenantStatusHealthy       TenantStatus = "healthy"
	TenantStatusDriftDetected TenantStatus = "drift_detected"
	TenantStatusReconciling   TenantStatus = "reconciling"
	TenantStatusError         TenantStatus = "error"
)

// validTransitions enumerates the tenant status state machine.
// The reconciler is the only writer of tenant status; everything else
// requests transitions through it.
var validTransitions = map[TenantStatus][]TenantStatus{
	TenantStatusHealthy:       {TenantStatusDriftDetected},
	TenantStatusDriftDetected: {TenantStatusReconciling, TenantStatusError, TenantStatusHealthy},
	TenantStatusReconciling:   {TenantStatusHealthy, TenantStatusDriftDetected, TenantStatusError},
	TenantStatusError:         {TenantStatusDriftDetected},
}

// CanTransition reports whether moving from one tenant status to another
// is allowed by the state machine. A self-transition is always allowed.
func CanTransition(from, to TenantStatus) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TenantState is the durable record for one (tenant, stack) pair: the
// declared composition, what was last applied, what is currently observed,
// and the open drift against it
type TenantState struct {
	TenantID string
	StackID  string

	// Content hashes of the declared vs. last-successfully-applied composition
	DesiredHash string
	AppliedHash string

	StateVersion     int
	PreviousVersions []string

	// Logical resource name -> external resource handle
	Resources map[string]ResourceRef

	Status       TenantStatus
	DriftDetails []DriftItem
	Policy       ReconciliationPolicy

	// OpenCorrelationID is set while Status == reconciling; exactly one
	// in-flight correlation may be attached to a tenant at a time
	OpenCorrelationID string

	// Desired is the declared composition; Applied is what the last
	// successful reconciliation actually converged on. Observed state is
	// synthesized from Applied plus the recent event window.
	Desired *Composition
	Applied *Composition

	LastApplied  time.Time
	LastVerified time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Archived     bool
}

// Key returns the storage key for a tenant state record
func (t *TenantState) Key() string {
	return t.TenantID + "/" + t.StackID
}

// ResourceRef is an external handle to a provisioned resource, plus the
// endpoint its health probe targets
type ResourceRef struct {
	Handle    string
	ProbeType ProbeType
	Endpoint  string
}

// ProbeType selects how a resource's health is checked
type ProbeType string

const (
	ProbeHTTP ProbeType = "http"
	ProbeTCP  ProbeType = "tcp"
	ProbeNone ProbeType = "none"
)

// Composition describes a tenant stack: which provider fills each logical
// slot, which resources are declared, and the integration configs wiring
// them together
type Composition struct {
	// Logical slot (e.g. "cms", "ecommerce", "ssg") -> provider name
	Providers map[string]string

	Resources map[string]ResourceRef

	// Integration name -> structural config
	Integrations map[string]map[string]string
}

// Hash returns a content hash of the composition. JSON encoding sorts map
// keys, so equal compositions hash equally.
func (c *Composition) Hash() string {
	if c == nil {
		return ""
	}
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DriftType classifies a detected divergence
type DriftType string

const (
	DriftProvider    DriftType = "provider"
	DriftResource    DriftType = "resource"
	DriftIntegration DriftType = "integration"
)

// Severity orders drift impact: low < medium < high < critical
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the numeric ordering of a severity. Unknown severities
// rank below low.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// DriftItem is one detected mismatch between declared and observed state
type DriftItem struct {
	Type       DriftType
	Component  string
	Expected   string
	Observed   string
	Severity   Severity
	DetectedAt time.Time
}

// BackoffStrategy selects how heal retry delays grow
type BackoffStrategy string

const (
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// ReconciliationPolicy is the per-tenant automation contract
type ReconciliationPolicy struct {
	AutoHeal        bool
	MaxHealAttempts int
	Backoff         BackoffStrategy
	BaseDelay       time.Duration

	// Drift types that always need a human before healing
	RequireApproval []DriftType
}

// RequiresApproval reports whether the policy gates a drift type behind
// human approval
func (p ReconciliationPolicy) RequiresApproval(dt DriftType) bool {
	for _, t := range p.RequireApproval {
		if t == dt {
			return true
		}
	}
	return false
}

// DefaultPolicy returns the policy applied to tenants that declare none
func DefaultPolicy() ReconciliationPolicy {
	return ReconciliationPolicy{
		AutoHeal:        true,
		MaxHealAttempts: 3,
		Backoff:         BackoffExponential,
		BaseDelay:       30 * time.Second,
	}
}

// EventRecord is one inbound signal: a content change, an order event, a
// build completion, or a resource-health probe result published by a
// provider adapter
type EventRecord struct {
	EventID   string
	TenantID  string
	Source    string
	EventType string
	SubjectID string
	Timestamp time.Time
	Payload   map[string]string

	// Set when the event is a consequence of a tracked command
	CorrelationID string
}

// Well-known event types produced by heal command executors and emitted
// as status notifications
const (
	EventHealStarted   = "heal_started"
	EventHealCompleted = "heal_completed"
	EventHealFailed    = "heal_failed"
	EventDriftDetected = "drift_detected"
	EventStateSynced   = "state_synced"
)

// CorrelationType distinguishes tracked commands from healing actions
type CorrelationType string

const (
	CorrelationCommand CorrelationType = "command"
	CorrelationHealing CorrelationType = "healing_action"
)

// CorrelationStatus is the lifecycle of a tracked command. It transitions
// exactly once out of pending; finalized records are immutable.
type CorrelationStatus string

const (
	CorrelationPending   CorrelationStatus = "pending"
	CorrelationCompleted CorrelationStatus = "completed"
	CorrelationExpired   CorrelationStatus = "expired"
	CorrelationFailed    CorrelationStatus = "failed"
)

// Final reports whether a correlation status is terminal
func (s CorrelationStatus) Final() bool {
	return s == CorrelationCompleted || s == CorrelationExpired || s == CorrelationFailed
}

// BufferedEvent is one entry in a correlation's consistency buffer
type BufferedEvent struct {
	EventID        string
	EventType      string
	Timestamp      time.Time
	ReceivedAt     time.Time
	SequenceNumber int
}

// CorrelationRecord tracks one issued command and the events it is
// expected to produce within its consistency window
type CorrelationRecord struct {
	CorrelationID string
	CommandID     string
	TenantID      string
	Type          CorrelationType

	// Drift fingerprint this correlation is healing, empty for plain commands
	Fingerprint string

	ExpectedEvents []string
	ReceivedEvents []string

	WindowSeconds int
	InitiatedAt   time.Time
	ExpiresAt     time.Time

	Status      CorrelationStatus
	EventBuffer []BufferedEvent
}

// Received reports whether an event type has already been observed
func (c *CorrelationRecord) Received(eventType string) bool {
	for _, e := range c.ReceivedEvents {
		if e == eventType {
			return true
		}
	}
	return false
}

// Complete reports whether every expected event type has arrived
func (c *CorrelationRecord) Complete() bool {
	for _, want := range c.ExpectedEvents {
		if !c.Received(want) {
			return false
		}
	}
	return true
}

// Expired reports whether the consistency window has passed
func (c *CorrelationRecord) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// MissingEvents returns the expected event types that never arrived,
// in declaration order
func (c *CorrelationRecord) MissingEvents() []string {
	var missing []string
	for _, want := range c.ExpectedEvents {
		if !c.Received(want) {
			missing = append(missing, want)
		}
	}
	return missing
}

// OrderedEvents returns the buffer sorted by (timestamp, event_id) so the
// reconciler always sees one deterministic order regardless of arrival
func (c *CorrelationRecord) OrderedEvents() []BufferedEvent {
	out := make([]BufferedEvent, len(c.EventBuffer))
	copy(out, c.EventBuffer)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].EventID < out[j].EventID
	})
	return out
}

// Command is an opaque corrective action delegated to an external executor.
// The core never interprets it beyond routing by (Type, Component).
type Command struct {
	CommandID string
	TenantID  string
	Type      DriftType
	Component string
	Action    string
	Payload   map[string]string
	IssuedAt  time.Time

	// CorrelationID links the command to the consistency window awaiting
	// its progress events
	CorrelationID string
}

// HealAttempt counts healing retries for one drift fingerprint
type HealAttempt struct {
	Fingerprint  string
	TenantID     string
	Attempts     int
	LastAttempt  time.Time
	NextEligible time.Time
}

// Lease is a time-bounded single-holder claim on a tenant's reconciliation
// slot. Concurrent passes for the same tenant are serialized through it.
// LeaseID is the release token: only the holder of this exact acquisition
// can release, so workers sharing an owner label cannot release each
// other's claims.
type Lease struct {
	LeaseID    string
	TenantID   string
	Owner      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Live reports whether the lease is still held
func (l *Lease) Live(now time.Time) bool {
	return now.Before(l.ExpiresAt)
}

// Notification is a status-transition event emitted on the broker for
// alerting and observability collaborators
type Notification struct {
	Type      string
	TenantID  string
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}
