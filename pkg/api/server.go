package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/blackwell-systems/stackwarden/pkg/config"
	"github.com/blackwell-systems/stackwarden/pkg/events"
	"github.com/blackwell-systems/stackwarden/pkg/healing"
	"github.com/blackwell-systems/stackwarden/pkg/log"
	"github.com/blackwell-systems/stackwarden/pkg/metrics"
	"github.com/blackwell-systems/stackwarden/pkg/reconciler"
	"github.com/blackwell-systems/stackwarden/pkg/storage"
	"github.com/blackwell-systems/stackwarden/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Declarer admits tenant manifests into the registry
type Declarer interface {
	Declare(manifest *config.TenantManifest) (*types.TenantState, error)
	Archive(tenantID, stackID string) error
}

// Server exposes the reconciliation core over HTTP: event ingestion for
// provider adapters, tenant and drift inspection for operators, and the
// acknowledgment endpoint that releases error-state tenants back to
// automation
type Server struct {
	store        storage.Store
	ingestor     *events.Ingestor
	reconciler   *reconciler.Reconciler
	orchestrator *healing.Orchestrator
	declarer     Declarer
	logger       zerolog.Logger
}

// New constructs the API server
func New(store storage.Store, ingestor *events.Ingestor, rec *reconciler.Reconciler, orch *healing.Orchestrator, declarer Declarer) *Server {
	return &Server{
		store:        store,
		ingestor:     ingestor,
		reconciler:   rec,
		orchestrator: orch,
		declarer:     declarer,
		logger:       log.WithComponent("api"),
	}
}

// Router builds the HTTP router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", metrics.Handler())

	r.Post("/v1/events", s.instrument("ingest_event", s.handleIngestEvent))
	r.Post("/v1/tenants", s.instrument("declare_tenant", s.handleDeclareTenant))
	r.Get("/v1/tenants", s.instrument("list_tenants", s.handleListTenants))
	r.Delete("/v1/tenants/{tenant}/stacks/{stack}", s.instrument("archive_tenant", s.handleArchiveTenant))
	r.Get("/v1/tenants/{tenant}/stacks/{stack}", s.instrument("get_tenant", s.handleGetTenant))
	r.Get("/v1/tenants/{tenant}/stacks/{stack}/drift", s.instrument("drift_status", s.handleDriftStatus))
	r.Post("/v1/tenants/{tenant}/stacks/{stack}/ack", s.instrument("acknowledge", s.handleAcknowledge))
	r.Post("/v1/tenants/{tenant}/stacks/{stack}/reconcile", s.instrument("reconcile", s.handleReconcile))
	return r
}

// statusRecorder captures the response code for request metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	}
}

type ingestRequest struct {
	EventID       string            `json:"event_id"`
	TenantID      string            `json:"tenant_id"`
	Source        string            `json:"source"`
	EventType     string            `json:"event_type"`
	SubjectID     string            `json:"subject_id"`
	Timestamp     *time.Time        `json:"timestamp"`
	Payload       map[string]string `json:"payload"`
	CorrelationID string            `json:"correlation_id"`
}

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.TenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	if req.EventType == "" {
		http.Error(w, "event_type is required", http.StatusBadRequest)
		return
	}

	event := &types.EventRecord{
		EventID:       req.EventID,
		TenantID:      req.TenantID,
		Source:        req.Source,
		EventType:     req.EventType,
		SubjectID:     req.SubjectID,
		Payload:       req.Payload,
		CorrelationID: req.CorrelationID,
	}
	if req.Timestamp != nil {
		event.Timestamp = *req.Timestamp
	}

	if err := s.ingestor.Publish(r.Context(), event); err != nil {
		s.logger.Error().Err(err).Str("tenant_id", req.TenantID).Msg("event ingestion failed")
		http.Error(w, "failed to ingest event", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"event_id": event.EventID})
}

// handleDeclareTenant admits a tenant stack manifest. The body is the
// YAML manifest itself, the same document `stackwarden apply` reads.
func (s *Server) handleDeclareTenant(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	manifest, err := config.ParseTenantManifest(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state, err := s.declarer.Declare(manifest)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant_id", manifest.Metadata.Tenant).Msg("declare failed")
		http.Error(w, "failed to declare tenant", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"tenant_id":     state.TenantID,
		"stack_id":      state.StackID,
		"state_version": state.StateVersion,
		"desired_hash":  state.DesiredHash,
	})
}

func (s *Server) handleArchiveTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	stackID := chi.URLParam(r, "stack")

	if err := s.declarer.Archive(tenantID, stackID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "tenant not found", http.StatusNotFound)
			return
		}
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("archive failed")
		http.Error(w, "failed to archive tenant", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

type tenantSummary struct {
	TenantID     string             `json:"tenant_id"`
	StackID      string             `json:"stack_id"`
	Status       types.TenantStatus `json:"status"`
	StateVersion int                `json:"state_version"`
	DriftCount   int                `json:"drift_count"`
	LastVerified time.Time          `json:"last_verified"`
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.store.ListTenants()
	if err != nil {
		http.Error(w, "failed to list tenants", http.StatusInternalServerError)
		return
	}

	summaries := make([]tenantSummary, 0, len(tenants))
	for _, t := range tenants {
		summaries = append(summaries, tenantSummary{
			TenantID:     t.TenantID,
			StackID:      t.StackID,
			Status:       t.Status,
			StateVersion: t.StateVersion,
			DriftCount:   len(t.DriftDetails),
			LastVerified: t.LastVerified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": summaries})
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.lookupTenant(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

type driftItemView struct {
	Type       types.DriftType `json:"type"`
	Component  string          `json:"component"`
	Expected   string          `json:"expected"`
	Observed   string          `json:"observed"`
	Severity   types.Severity  `json:"severity"`
	DetectedAt time.Time       `json:"detected_at"`

	AutoHealEligible bool   `json:"auto_heal_eligible"`
	HoldReason       string `json:"hold_reason,omitempty"`
}

type driftStatusResponse struct {
	TenantID          string             `json:"tenant_id"`
	StackID           string             `json:"stack_id"`
	Status            types.TenantStatus `json:"status"`
	HasDrift          bool               `json:"has_drift"`
	DriftItems        []driftItemView    `json:"drift_items"`
	OpenCorrelationID string             `json:"open_correlation_id,omitempty"`
}

func (s *Server) handleDriftStatus(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.lookupTenant(w, r)
	if !ok {
		return
	}

	now := time.Now().UTC()
	items := make([]driftItemView, 0, len(tenant.DriftDetails))
	for _, item := range tenant.DriftDetails {
		view := driftItemView{
			Type:       item.Type,
			Component:  item.Component,
			Expected:   item.Expected,
			Observed:   item.Observed,
			Severity:   item.Severity,
			DetectedAt: item.DetectedAt,
		}
		decision, err := s.orchestrator.Decide(tenant, item, now)
		if err != nil {
			http.Error(w, "failed to evaluate drift", http.StatusInternalServerError)
			return
		}
		view.AutoHealEligible = decision.Eligible
		if !decision.Eligible {
			view.HoldReason = decision.Reason
		}
		items = append(items, view)
	}

	writeJSON(w, http.StatusOK, driftStatusResponse{
		TenantID:          tenant.TenantID,
		StackID:           tenant.StackID,
		Status:            tenant.Status,
		HasDrift:          len(items) > 0,
		DriftItems:        items,
		OpenCorrelationID: tenant.OpenCorrelationID,
	})
}

// handleAcknowledge clears an error-state tenant back into the
// reconciliation loop after operator review
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	stackID := chi.URLParam(r, "stack")

	if err := s.reconciler.Acknowledge(tenantID, stackID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "tenant not found", http.StatusNotFound)
			return
		}
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("acknowledge failed")
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

// handleReconcile runs an on-demand pass for one tenant stack
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenant")
	stackID := chi.URLParam(r, "stack")

	if err := s.reconciler.Reconcile(r.Context(), tenantID, stackID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "tenant not found", http.StatusNotFound)
			return
		}
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("reconcile failed")
		http.Error(w, "reconciliation failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reconciled"})
}

func (s *Server) lookupTenant(w http.ResponseWriter, r *http.Request) (*types.TenantState, bool) {
	tenantID := chi.URLParam(r, "tenant")
	stackID := chi.URLParam(r, "stack")

	tenant, err := s.store.GetTenant(tenantID, stackID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "tenant not found", http.StatusNotFound)
			return nil, false
		}
		http.Error(w, "failed to load tenant", http.StatusInternalServerError)
		return nil, false
	}
	return tenant, true
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
