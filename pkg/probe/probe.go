package probe

import (
	"context"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/types"
)

// Result represents the outcome of a resource health probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface all probe implementations satisfy
type Checker interface {
	// Check performs the probe and returns the result
	Check(ctx context.Context) Result

	// Type returns the probe type
	Type() types.ProbeType
}

// Prober resolves a resource reference to a live health result. The
// reconciler consumes this when synthesizing observed state; tests swap in
// a fake.
type Prober interface {
	Probe(ctx context.Context, ref types.ResourceRef) Result
}

// LiveProber probes real endpoints according to each resource's declared
// probe type
type LiveProber struct {
	// Timeout bounds each individual probe
	Timeout time.Duration
}

// NewLiveProber creates a prober with the default per-probe timeout
func NewLiveProber() *LiveProber {
	return &LiveProber{Timeout: 10 * time.Second}
}

// Probe dispatches to the checker matching the resource's probe type.
// Resources declaring no probe are reported healthy; they are verified
// through events, not probes.
func (p *LiveProber) Probe(ctx context.Context, ref types.ResourceRef) Result {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	switch ref.ProbeType {
	case types.ProbeHTTP:
		return NewHTTPChecker(ref.Endpoint).Check(ctx)
	case types.ProbeTCP:
		return NewTCPChecker(ref.Endpoint).Check(ctx)
	default:
		return Result{
			Healthy:   true,
			Message:   "no probe configured",
			CheckedAt: time.Now(),
		}
	}
}
