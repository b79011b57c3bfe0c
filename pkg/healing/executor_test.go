package healing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCommand() *types.Command {
	return &types.Command{
		CommandID:     "cmd-1",
		TenantID:      "acme",
		Type:          types.DriftProvider,
		Component:     "cms",
		Action:        "provider.reregister",
		Payload:       map[string]string{"expected": "contentful", "observed": "missing"},
		CorrelationID: "corr-1",
		IssuedAt:      time.Now().UTC(),
	}
}

func TestWebhookExecutorDeliversEnvelope(t *testing.T) {
	var got commandEnvelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := NewWebhookExecutor(srv.URL).Execute(context.Background(), sampleCommand())
	require.NoError(t, err)

	assert.Equal(t, "cmd-1", got.CommandID)
	assert.Equal(t, "corr-1", got.CorrelationID)
	assert.Equal(t, "provider.reregister", got.Action)
	assert.Equal(t, "contentful", got.Payload["expected"])
}

func TestWebhookExecutorRejectedCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookExecutor(srv.URL).Execute(context.Background(), sampleCommand())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestWebhookExecutorUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	err := NewWebhookExecutor(srv.URL).Execute(context.Background(), sampleCommand())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery failed")
}

func TestLogExecutorAlwaysSucceeds(t *testing.T) {
	assert.NoError(t, LogExecutor{}.Execute(context.Background(), sampleCommand()))
}
