package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/voicetyped/lexintake/pkg/webhook"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Retrier re-arms failed webhook attempt chains.
type Retrier interface {
	Retry(ctx context.Context, id string) (*webhook.Attempt, error)
	RetryTeam(ctx context.Context, teamID string) ([]webhook.Attempt, error)
}

// Handler provides operator REST endpoints for webhook audit and replay.
type Handler struct {
	store   webhook.Store
	retrier Retrier
}

// NewHandler creates a new webhook API handler.
func NewHandler(store webhook.Store, retrier Retrier) *Handler {
	return &Handler{store: store, retrier: retrier}
}

// RegisterRoutes registers all webhook API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/admin/teams/{teamId}/webhook-attempts", h.ListByTeam)
	mux.HandleFunc("POST /api/v1/admin/teams/{teamId}/webhook-attempts/retry", h.RetryTeam)
	mux.HandleFunc("GET /api/v1/admin/webhook-attempts/{id}", h.Get)
	mux.HandleFunc("POST /api/v1/admin/webhook-attempts/{id}/retry", h.Retry)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func toAttemptResponse(a *webhook.Attempt, includePayload bool) AttemptResponse {
	resp := AttemptResponse{
		ID:           a.ID,
		TeamID:       a.TeamID,
		SessionID:    a.SessionID,
		EventType:    a.EventType,
		URL:          a.URL,
		Status:       string(a.Status),
		ResponseCode: a.ResponseCode,
		ResponseBody: a.ResponseBody,
		Error:        a.Error,
		RetryCount:   a.RetryCount,
		DurationMs:   a.DurationMs,
		CreatedAt:    a.CreatedAt.Format(time.RFC3339),
		ModifiedAt:   a.ModifiedAt.Format(time.RFC3339),
	}
	if a.NextRetryAt.Valid {
		resp.NextRetryAt = a.NextRetryAt.Time.UTC().Format(time.RFC3339)
	}
	if includePayload {
		resp.Payload = a.Payload
	}
	return resp
}

func pageParams(r *http.Request) (int, int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListByTeam handles GET /api/v1/admin/teams/{teamId}/webhook-attempts
func (h *Handler) ListByTeam(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("teamId")
	status := webhook.Status(r.URL.Query().Get("status"))
	switch status {
	case "", webhook.StatusPending, webhook.StatusSuccess, webhook.StatusFailed, webhook.StatusRetry:
	default:
		writeError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	limit, offset := pageParams(r)
	attempts, err := h.store.ListByTeam(r.Context(), teamID, status, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list webhook attempts")
		return
	}

	resp := make([]AttemptResponse, 0, len(attempts))
	for i := range attempts {
		resp = append(resp, toAttemptResponse(&attempts[i], false))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/admin/webhook-attempts/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, webhook.ErrAttemptNotFound) {
		writeError(w, http.StatusNotFound, "webhook attempt not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load webhook attempt")
		return
	}
	writeJSON(w, http.StatusOK, toAttemptResponse(a, true))
}

// Retry handles POST /api/v1/admin/webhook-attempts/{id}/retry
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	a, err := h.retrier.Retry(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, webhook.ErrAttemptNotFound):
		writeError(w, http.StatusNotFound, "webhook attempt not found")
	case errors.Is(err, webhook.ErrNotRetryable):
		writeError(w, http.StatusConflict, "webhook attempt is not failed or awaiting retry")
	case errors.Is(err, webhook.ErrWebhookDisabled):
		writeError(w, http.StatusConflict, "team webhook is disabled")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to retry webhook attempt")
	default:
		writeJSON(w, http.StatusOK, toAttemptResponse(a, false))
	}
}

// RetryTeam handles POST /api/v1/admin/teams/{teamId}/webhook-attempts/retry
func (h *Handler) RetryTeam(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("teamId")
	attempts, err := h.retrier.RetryTeam(r.Context(), teamID)

	resp := RetryTeamResponse{
		TeamID:   teamID,
		Retried:  len(attempts),
		Attempts: make([]AttemptResponse, 0, len(attempts)),
	}
	for i := range attempts {
		resp.Attempts = append(resp.Attempts, toAttemptResponse(&attempts[i], false))
	}

	switch {
	case errors.Is(err, webhook.ErrWebhookDisabled):
		resp.Error = "team webhook is disabled"
		writeJSON(w, http.StatusConflict, resp)
	case err != nil:
		resp.Error = "failed to retry webhook attempts"
		writeJSON(w, http.StatusInternalServerError, resp)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}
