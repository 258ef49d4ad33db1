// Package handler exposes the intake dialogue over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voicetyped/lexintake/pkg/intake"
)

// TurnPath is the route of the turn endpoint.
const TurnPath = "/api/v1/intake/matter"

const (
	maxBodyBytes = 64 << 10
	apology      = "Sorry, something went wrong on our side. Please try again in a moment."
)

// TurnProcessor runs one dialogue turn.
type TurnProcessor interface {
	ProcessTurn(ctx context.Context, req intake.TurnRequest) (*intake.TurnResponse, error)
}

// IntakeHandler serves the matter intake turn endpoint.
type IntakeHandler struct {
	turns TurnProcessor
}

// NewIntakeHandler creates the turn endpoint handler.
func NewIntakeHandler(turns TurnProcessor) *IntakeHandler {
	return &IntakeHandler{turns: turns}
}

// RegisterRoutes mounts the turn endpoint. Every method is routed here so
// that non-POST requests get a JSON 405.
func (h *IntakeHandler) RegisterRoutes(r chi.Router) {
	r.HandleFunc(TurnPath, h.Turn)
}

// Turn handles POST /api/v1/intake/matter
func (h *IntakeHandler) Turn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Use POST for intake turns.")
		return
	}

	var body TurnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be a JSON object.")
		return
	}
	if body.TeamID == "" {
		body.TeamID = r.URL.Query().Get("teamId")
	}

	resp, err := h.process(r.Context(), intake.TurnRequest{
		TeamID:    body.TeamID,
		SessionID: body.SessionID,
		Service:   body.Service,
		Input:     body.Description,
		Answers:   body.Answers,
		Step:      body.Step,
	})
	switch {
	case errors.Is(err, intake.ErrMissingTeam):
		writeError(w, http.StatusBadRequest, "missing_team_id", "teamId is required.")
	case errors.Is(err, intake.ErrUnknownTeam):
		writeError(w, http.StatusNotFound, "team_not_found", "No intake is configured for this team.")
	case err != nil:
		slog.ErrorContext(r.Context(), "intake turn failed",
			slog.String("team_id", body.TeamID),
			slog.String("session_id", body.SessionID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", apology)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// process converts a panic inside the dialogue into an error so the client
// still gets the apology body.
func (h *IntakeHandler) process(ctx context.Context, req intake.TurnRequest) (resp *intake.TurnResponse, err error) {
	defer func() {
		if p := recover(); p != nil {
			resp, err = nil, fmt.Errorf("panic in intake turn: %v", p)
		}
	}()
	return h.turns.ProcessTurn(ctx, req)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}
