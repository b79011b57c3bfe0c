package healing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/log"
	"github.com/blackwell-systems/stackwarden/pkg/types"
)

// WebhookExecutor delivers heal commands to the provider adapter bridge
// as JSON over HTTP. The bridge fans commands out to the concrete
// provider APIs and reports progress back through the event endpoint,
// tagged with the command's correlation id.
type WebhookExecutor struct {
	endpoint string
	client   *http.Client
}

// NewWebhookExecutor creates an executor posting to the given endpoint
func NewWebhookExecutor(endpoint string) *WebhookExecutor {
	return &WebhookExecutor{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type commandEnvelope struct {
	CommandID     string            `json:"command_id"`
	TenantID      string            `json:"tenant_id"`
	Type          types.DriftType   `json:"type"`
	Component     string            `json:"component"`
	Action        string            `json:"action"`
	Payload       map[string]string `json:"payload,omitempty"`
	CorrelationID string            `json:"correlation_id"`
	IssuedAt      time.Time         `json:"issued_at"`
}

// Execute posts the command. A non-2xx response is a synchronous failure;
// the adapter's asynchronous progress arrives as correlated events.
func (e *WebhookExecutor) Execute(ctx context.Context, cmd *types.Command) error {
	body, err := json.Marshal(commandEnvelope{
		CommandID:     cmd.CommandID,
		TenantID:      cmd.TenantID,
		Type:          cmd.Type,
		Component:     cmd.Component,
		Action:        cmd.Action,
		Payload:       cmd.Payload,
		CorrelationID: cmd.CorrelationID,
		IssuedAt:      cmd.IssuedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("command delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("command rejected with status %d", resp.StatusCode)
	}
	return nil
}

// LogExecutor records commands without dispatching them. Used when no
// adapter bridge is configured, and in tests.
type LogExecutor struct{}

// Execute logs the command and succeeds
func (LogExecutor) Execute(_ context.Context, cmd *types.Command) error {
	logger := log.WithComponent("healing")
	logger.Info().
		Str("command_id", cmd.CommandID).
		Str("tenant_id", cmd.TenantID).
		Str("action", cmd.Action).
		Str("component", cmd.Component).
		Msg("heal command issued (dry run)")
	return nil
}
