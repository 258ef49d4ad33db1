// Package intake implements the matter intake dialogue: an ordered set of
// slots filled turn by turn from free-form replies, with webhook
// notifications when the matter is complete and when it is submitted.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/voicetyped/lexintake/pkg/events"
	"github.com/voicetyped/lexintake/pkg/teams"
	"github.com/voicetyped/lexintake/pkg/webhook"
)

// Step is the stage a turn response puts the client in.
type Step string

const (
	StepServiceSelection     Step = "service-selection"
	StepInfoRequest          Step = "info-request"
	StepAwaitingConfirmation Step = "awaiting-confirmation"
	StepIntakeComplete       Step = "intake-complete"
)

// StepSubmitIntake is the request marker confirming a completed intake.
const StepSubmitIntake = "submit-intake"

const (
	serviceSelectionMessage = "Which type of legal matter can we help you with?"
	confirmationMessage     = "Here's a summary of your matter. Please review it and confirm when everything looks right."
	completeMessage         = "Thank you! Your matter has been submitted and our team will be in touch shortly."
	nothingMissingMessage   = "We have everything we need. Please review the summary and confirm."
)

var (
	ErrMissingTeam = errors.New("team id is required")
	ErrUnknownTeam = errors.New("unknown team")
)

// SessionStore persists sessions. Load returns nil, nil when the session
// does not exist or has expired.
type SessionStore interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
}

// TeamDirectory resolves team configuration.
type TeamDirectory interface {
	Team(ctx context.Context, id string) (*teams.Team, error)
}

// Notifier sends webhook events without blocking the turn.
type Notifier interface {
	Dispatch(ctx context.Context, teamID string, eventType events.EventType, payload any, cfg webhook.Config)
}

// QualityScorer rates a completed intake. The score is opaque to the dialogue.
type QualityScorer interface {
	Score(service string, answers map[SlotID]string) float64
}

// TurnRequest is one inbound conversational turn.
type TurnRequest struct {
	TeamID    string
	SessionID string
	Service   string
	Input     string
	// Answers are client-echoed prior answers keyed by slot id.
	Answers map[string]string
	Step    string
}

// TurnResponse is what the client renders after a turn.
type TurnResponse struct {
	Step      Step              `json:"step"`
	SessionID string            `json:"sessionId"`
	Message   string            `json:"message"`
	Slot      SlotID            `json:"slot,omitempty"`
	Services  []string          `json:"services,omitempty"`
	Answers   map[SlotID]Answer `json:"answers,omitempty"`
	Canvas    *MatterCanvas     `json:"matterCanvas,omitempty"`
	Rejection Reason            `json:"rejection,omitempty"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithExtractor enables the extraction assistant.
func WithExtractor(e SlotExtractor) Option {
	return func(m *Manager) { m.extractor = e }
}

// WithQualityScorer attaches a score to matter_creation payloads.
func WithQualityScorer(q QualityScorer) Option {
	return func(m *Manager) { m.scorer = q }
}

// WithRegistry replaces the default slot registry.
func WithRegistry(r *Registry) Option {
	return func(m *Manager) { m.reg = r }
}

// Manager drives intake turns.
type Manager struct {
	reg       *Registry
	sessions  SessionStore
	teams     TeamDirectory
	notifier  Notifier
	extractor SlotExtractor
	scorer    QualityScorer
	now       func() time.Time
}

// NewManager creates a dialogue manager.
func NewManager(sessions SessionStore, directory TeamDirectory, notifier Notifier, opts ...Option) *Manager {
	m := &Manager{
		reg:      DefaultRegistry(),
		sessions: sessions,
		teams:    directory,
		notifier: notifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the slot registry in use.
func (m *Manager) Registry() *Registry { return m.reg }

// ProcessTurn runs one turn. The stored session changes only when the
// whole turn succeeds; validation rejections are not errors.
func (m *Manager) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	teamID := strings.TrimSpace(req.TeamID)
	if teamID == "" {
		return nil, ErrMissingTeam
	}

	team, err := m.teams.Team(ctx, teamID)
	if errors.Is(err, teams.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTeam, teamID)
	}
	if err != nil {
		return nil, fmt.Errorf("load team %q: %w", teamID, err)
	}

	stored, err := m.loadSession(ctx, teamID, strings.TrimSpace(req.SessionID))
	if err != nil {
		return nil, err
	}

	service := strings.TrimSpace(req.Service)
	if service == "" {
		service = stored.Service
	}
	if service == "" {
		return &TurnResponse{
			Step:      StepServiceSelection,
			SessionID: stored.ID,
			Message:   serviceSelectionMessage,
			Services:  team.Services,
		}, nil
	}

	s := stored.Clone()
	s.Service = service
	input := Normalize(req.Input)

	if req.Step == StepSubmitIntake && s.Complete(m.reg) {
		return m.submit(ctx, team, s)
	}

	if input != "" && IsMissingIntent(input) {
		return m.missingResponse(stored, service), nil
	}

	m.mergeEchoedAnswers(s, req.Answers)

	var verdict Verdict
	target, hasTarget := m.targetSlot(s)
	if input != "" && hasTarget {
		verdict = ValidateAnswer(m.reg, target, input, s.Answers, service, s.LastPrompt)
		if verdict.Accepted {
			s.Answers[target.ID] = Answer{Question: m.shownQuestion(s, target), Answer: input}
		} else {
			slog.DebugContext(ctx, "intake answer rejected",
				slog.String("session_id", s.ID),
				slog.String("slot", string(target.ID)),
				slog.String("reason", string(verdict.Reason)))
		}
	}

	if input != "" && m.extractor != nil {
		m.extract(ctx, s, input)
	}

	if unfilled := m.reg.Unfilled(s.Answers); len(unfilled) > 0 {
		next := unfilled[0]
		prompt := next.Render(service)
		s.LastPromptedSlot = next.ID
		s.LastPrompt = prompt

		if err := m.save(ctx, s); err != nil {
			return nil, err
		}

		resp := &TurnResponse{
			Step:      StepInfoRequest,
			SessionID: s.ID,
			Message:   prompt,
			Slot:      next.ID,
			Answers:   s.Answers,
		}
		if hasTarget && input != "" && !verdict.Accepted && target.ID == next.ID {
			resp.Rejection = verdict.Reason
			if hint := verdict.Hint(); hint != "" {
				resp.Message = hint + " " + prompt
			}
		}
		return resp, nil
	}

	return m.complete(ctx, team, s)
}

func (m *Manager) loadSession(ctx context.Context, teamID, id string) (*Session, error) {
	if id != "" {
		s, err := m.sessions.Load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load session: %w", err)
		}
		if s != nil && s.TeamID == teamID {
			if s.Answers == nil {
				s.Answers = make(map[SlotID]Answer)
			}
			return s, nil
		}
		if s != nil {
			slog.WarnContext(ctx, "session belongs to another team, starting a new one",
				slog.String("session_id", id),
				slog.String("team_id", teamID))
			id = ""
		}
	}
	if id == "" {
		id = xid.New().String()
	}
	return NewSession(id, teamID, m.now()), nil
}

// targetSlot is the slot the raw input may answer directly: the last prompted
// slot, or the first unfilled one for a session that was never prompted.
func (m *Manager) targetSlot(s *Session) (Slot, bool) {
	if s.LastPromptedSlot != "" {
		slot, ok := m.reg.Get(s.LastPromptedSlot)
		if !ok || s.Filled(slot.ID) {
			return Slot{}, false
		}
		return slot, true
	}
	unfilled := m.reg.Unfilled(s.Answers)
	if len(unfilled) == 0 {
		return Slot{}, false
	}
	return unfilled[0], true
}

func (m *Manager) shownQuestion(s *Session, slot Slot) string {
	if s.LastPromptedSlot == slot.ID && s.LastPrompt != "" {
		return s.LastPrompt
	}
	return slot.Render(s.Service)
}

func (m *Manager) mergeEchoedAnswers(s *Session, echoed map[string]string) {
	for _, slot := range m.reg.Slots() {
		raw, ok := echoed[string(slot.ID)]
		if !ok || s.Filled(slot.ID) {
			continue
		}
		if v := ValidateAnswer(m.reg, slot, raw, s.Answers, s.Service, s.LastPrompt); v.Accepted {
			s.Answers[slot.ID] = Answer{Question: slot.Render(s.Service), Answer: Normalize(raw)}
		}
	}
}

func (m *Manager) extract(ctx context.Context, s *Session, input string) {
	if len(m.extractableUnfilled(s)) == 0 {
		return
	}

	fields, err := m.extractor.Extract(ctx, ExtractionRequest{
		Service:    s.Service,
		LastPrompt: s.LastPrompt,
		Input:      input,
		Filled:     s.FilledSlots(m.reg),
	})
	if err != nil {
		slog.WarnContext(ctx, "slot extraction failed",
			slog.String("session_id", s.ID),
			slog.String("error", err.Error()))
		return
	}

	for _, slot := range m.extractableUnfilled(s) {
		value, ok := fields[slot.ID]
		if !ok {
			continue
		}
		if v := ValidateAnswer(m.reg, slot, value, s.Answers, s.Service, s.LastPrompt); v.Accepted {
			s.Answers[slot.ID] = Answer{Question: slot.Render(s.Service), Answer: Normalize(value)}
			slog.DebugContext(ctx, "slot filled by extraction",
				slog.String("session_id", s.ID),
				slog.String("slot", string(slot.ID)))
		}
	}
}

func (m *Manager) extractableUnfilled(s *Session) []Slot {
	var out []Slot
	for _, slot := range m.reg.Unfilled(s.Answers) {
		if slot.Extractable {
			out = append(out, slot)
		}
	}
	return out
}

func (m *Manager) missingResponse(s *Session, service string) *TurnResponse {
	unfilled := m.reg.Unfilled(s.Answers)
	if len(unfilled) == 0 {
		return &TurnResponse{
			Step:      StepAwaitingConfirmation,
			SessionID: s.ID,
			Message:   nothingMissingMessage,
			Answers:   s.Answers,
			Canvas:    BuildCanvas(m.reg, withService(s, service)),
		}
	}
	next := unfilled[0]
	return &TurnResponse{
		Step:      StepInfoRequest,
		SessionID: s.ID,
		Message:   next.Render(service),
		Slot:      next.ID,
		Answers:   s.Answers,
	}
}

func withService(s *Session, service string) *Session {
	if s.Service == service {
		return s
	}
	c := s.Clone()
	c.Service = service
	return c
}

func (m *Manager) complete(ctx context.Context, team *teams.Team, s *Session) (*TurnResponse, error) {
	first := !s.CreationNotified
	s.CreationNotified = true
	s.LastPromptedSlot = ""
	s.LastPrompt = ""
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}

	canvas := BuildCanvas(m.reg, s)
	if first {
		data := matterData(s, canvas)
		if m.scorer != nil {
			score := m.scorer.Score(s.Service, s.values())
			data.QualityScore = &score
		}
		m.notify(ctx, team, s, events.MatterCreation, data)
		slog.InfoContext(ctx, "matter intake completed",
			slog.String("session_id", s.ID),
			slog.String("team_id", team.ID),
			slog.String("service", s.Service))
	}

	return &TurnResponse{
		Step:      StepAwaitingConfirmation,
		SessionID: s.ID,
		Message:   confirmationMessage,
		Answers:   s.Answers,
		Canvas:    canvas,
	}, nil
}

func (m *Manager) submit(ctx context.Context, team *teams.Team, s *Session) (*TurnResponse, error) {
	first := !s.Submitted
	s.Submitted = true
	s.CreationNotified = true
	if err := m.save(ctx, s); err != nil {
		return nil, err
	}

	canvas := BuildCanvas(m.reg, s)
	if first {
		m.notify(ctx, team, s, events.MatterDetails, matterDetailsData(s, canvas, m.now()))
		slog.InfoContext(ctx, "matter intake submitted",
			slog.String("session_id", s.ID),
			slog.String("team_id", team.ID))
	}

	return &TurnResponse{
		Step:      StepIntakeComplete,
		SessionID: s.ID,
		Message:   completeMessage,
		Answers:   s.Answers,
		Canvas:    canvas,
	}, nil
}

func (m *Manager) notify(ctx context.Context, team *teams.Team, s *Session, et events.EventType, data any) {
	if m.notifier == nil {
		return
	}
	m.notifier.Dispatch(ctx, team.ID, et, events.NewEnvelope(et, team.ID, s.ID, data), team.Webhook)
}

func (m *Manager) save(ctx context.Context, s *Session) error {
	s.UpdatedAt = m.now()
	if err := m.sessions.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
