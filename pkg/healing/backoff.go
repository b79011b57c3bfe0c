package healing

import (
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/types"
)

// maxDelay caps retry delays so a long-failing fingerprint is still
// retried within a reconciliation horizon
const maxDelay = time.Hour

// Delay computes how long to wait before the next heal attempt for a
// fingerprint that has already failed `attempt` times
func Delay(policy types.ReconciliationPolicy, attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	base := policy.BaseDelay
	if base <= 0 {
		base = 30 * time.Second
	}

	var delay time.Duration
	switch policy.Backoff {
	case types.BackoffLinear:
		delay = time.Duration(attempt) * base
	case types.BackoffExponential:
		delay = base << uint(attempt-1)
	default:
		delay = base << uint(attempt-1)
	}

	if delay > maxDelay || delay < 0 {
		delay = maxDelay
	}
	return delay
}
