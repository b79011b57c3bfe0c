package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from TenantStatus
		to   TenantStatus
		want bool
	}{
		{TenantStatusHealthy, TenantStatusDriftDetected, true},
		{TenantStatusHealthy, TenantStatusReconciling, false},
		{TenantStatusHealthy, TenantStatusError, false},
		{TenantStatusDriftDetected, TenantStatusReconciling, true},
		{TenantStatusDriftDetected, TenantStatusHealthy, true},
		{TenantStatusDriftDetected, TenantStatusError, true},
		{TenantStatusReconciling, TenantStatusHealthy, true},
		{TenantStatusReconciling, TenantStatusDriftDetected, true},
		{TenantStatusReconciling, TenantStatusError, true},
		{TenantStatusError, TenantStatusDriftDetected, true},
		{TenantStatusError, TenantStatusHealthy, false},
		{TenantStatusError, TenantStatusReconciling, false},
		// Self-transitions always allowed
		{TenantStatusHealthy, TenantStatusHealthy, true},
		{TenantStatusError, TenantStatusError, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCompositionHash(t *testing.T) {
	a := &Composition{
		Providers: map[string]string{"cms": "contentful", "ecommerce": "shopify"},
	}
	b := &Composition{
		Providers: map[string]string{"ecommerce": "shopify", "cms": "contentful"},
	}
	assert.Equal(t, a.Hash(), b.Hash(), "map insertion order must not change the hash")

	b.Providers["cms"] = "sanity"
	assert.NotEqual(t, a.Hash(), b.Hash())

	var nilComp *Composition
	assert.Empty(t, nilComp.Hash())
}

func TestCorrelationRecordCompleteness(t *testing.T) {
	rec := &CorrelationRecord{
		ExpectedEvents: []string{EventHealStarted, EventHealCompleted},
		ReceivedEvents: []string{EventHealStarted},
	}
	assert.False(t, rec.Complete())
	assert.Equal(t, []string{EventHealCompleted}, rec.MissingEvents())

	rec.ReceivedEvents = append(rec.ReceivedEvents, EventHealCompleted)
	assert.True(t, rec.Complete())
	assert.Empty(t, rec.MissingEvents())
}

func TestOrderedEventsTimestampThenID(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &CorrelationRecord{
		EventBuffer: []BufferedEvent{
			{EventID: "evt-c", Timestamp: base.Add(time.Second)},
			{EventID: "evt-b", Timestamp: base},
			{EventID: "evt-a", Timestamp: base},
		},
	}

	ordered := rec.OrderedEvents()
	assert.Equal(t, "evt-a", ordered[0].EventID)
	assert.Equal(t, "evt-b", ordered[1].EventID)
	assert.Equal(t, "evt-c", ordered[2].EventID)

	// The buffer itself is left untouched
	assert.Equal(t, "evt-c", rec.EventBuffer[0].EventID)
}

func TestCorrelationStatusFinal(t *testing.T) {
	assert.False(t, CorrelationPending.Final())
	assert.True(t, CorrelationCompleted.Final())
	assert.True(t, CorrelationExpired.Final())
	assert.True(t, CorrelationFailed.Final())
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	assert.Equal(t, -1, Severity("bogus").Rank())
}

func TestLeaseLive(t *testing.T) {
	now := time.Now().UTC()
	lease := &Lease{ExpiresAt: now.Add(time.Minute)}
	assert.True(t, lease.Live(now))
	assert.False(t, lease.Live(now.Add(2*time.Minute)))
}
