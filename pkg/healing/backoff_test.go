package healing

import (
	"testing"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestDelay(t *testing.T) {
	tests := []struct {
		name    string
		policy  types.ReconciliationPolicy
		attempt int
		want    time.Duration
	}{
		{
			name:    "no attempts yet",
			policy:  types.ReconciliationPolicy{Backoff: types.BackoffExponential, BaseDelay: 30 * time.Second},
			attempt: 0,
			want:    0,
		},
		{
			name:    "linear scales with attempt",
			policy:  types.ReconciliationPolicy{Backoff: types.BackoffLinear, BaseDelay: 10 * time.Second},
			attempt: 3,
			want:    30 * time.Second,
		},
		{
			name:    "exponential first attempt is base",
			policy:  types.ReconciliationPolicy{Backoff: types.BackoffExponential, BaseDelay: 30 * time.Second},
			attempt: 1,
			want:    30 * time.Second,
		},
		{
			name:    "exponential doubles per attempt",
			policy:  types.ReconciliationPolicy{Backoff: types.BackoffExponential, BaseDelay: 30 * time.Second},
			attempt: 4,
			want:    4 * time.Minute,
		},
		{
			name:    "exponential capped at one hour",
			policy:  types.ReconciliationPolicy{Backoff: types.BackoffExponential, BaseDelay: 30 * time.Second},
			attempt: 20,
			want:    time.Hour,
		},
		{
			name:    "overflow clamps to cap",
			policy:  types.ReconciliationPolicy{Backoff: types.BackoffExponential, BaseDelay: 30 * time.Second},
			attempt: 62,
			want:    time.Hour,
		},
		{
			name:    "zero base falls back to thirty seconds",
			policy:  types.ReconciliationPolicy{Backoff: types.BackoffLinear},
			attempt: 2,
			want:    time.Minute,
		},
		{
			name:    "unknown strategy treated as exponential",
			policy:  types.ReconciliationPolicy{Backoff: "fibonacci", BaseDelay: 15 * time.Second},
			attempt: 2,
			want:    30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Delay(tt.policy, tt.attempt))
		})
	}
}
