package intake

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voicetyped/lexintake/pkg/events"
	"github.com/voicetyped/lexintake/pkg/teams"
	"github.com/voicetyped/lexintake/pkg/webhook"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type memSessions struct {
	mu      sync.Mutex
	data    map[string]*Session
	saves   int
	saveErr error
}

func newMemSessions() *memSessions {
	return &memSessions{data: make(map[string]*Session)}
}

func (m *memSessions) Load(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *memSessions) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.data[s.ID] = s.Clone()
	return nil
}

type staticTeams map[string]*teams.Team

func (st staticTeams) Team(_ context.Context, id string) (*teams.Team, error) {
	t, ok := st[id]
	if !ok {
		return nil, teams.ErrNotFound
	}
	return t, nil
}

type dispatched struct {
	teamID  string
	event   events.EventType
	payload any
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []dispatched
}

func (r *recordingNotifier) Dispatch(_ context.Context, teamID string, et events.EventType, payload any, _ webhook.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, dispatched{teamID: teamID, event: et, payload: payload})
}

func (r *recordingNotifier) count(et events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.event == et {
			n++
		}
	}
	return n
}

type fakeExtractor struct {
	fields map[SlotID]string
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(context.Context, ExtractionRequest) (map[SlotID]string, error) {
	f.calls++
	return f.fields, f.err
}

type fixedScorer float64

func (f fixedScorer) Score(string, map[SlotID]string) float64 { return float64(f) }

type harness struct {
	m        *Manager
	sessions *memSessions
	notifier *recordingNotifier
}

func newHarness(opts ...Option) *harness {
	h := &harness{sessions: newMemSessions(), notifier: &recordingNotifier{}}
	directory := staticTeams{
		"acme": {
			ID:       "acme",
			Name:     "Acme Legal",
			Services: []string{"Family Law", "Employment Law"},
			Webhook:  webhook.Config{Enabled: true, URL: "https://hooks.example.com/intake", Secret: "wh_f1be34ea3bff.c2VjcmV0"},
		},
		"other": {ID: "other", Services: []string{"Tax"}},
	}
	h.m = NewManager(h.sessions, directory, h.notifier, opts...)
	h.m.now = func() time.Time { return fixedNow }
	return h
}

func (h *harness) turn(t *testing.T, req TurnRequest) *TurnResponse {
	t.Helper()
	if req.TeamID == "" {
		req.TeamID = "acme"
	}
	resp, err := h.m.ProcessTurn(t.Context(), req)
	if err != nil {
		t.Fatalf("ProcessTurn(%q): %v", req.Input, err)
	}
	return resp
}

// start opens a Family Law session and returns its id after the first prompt.
func (h *harness) start(t *testing.T) string {
	t.Helper()
	resp := h.turn(t, TurnRequest{Service: "Family Law"})
	if resp.Step != StepInfoRequest || resp.Slot != SlotName {
		t.Fatalf("first prompt = %s/%s, want info-request/name", resp.Step, resp.Slot)
	}
	return resp.SessionID
}

func (h *harness) answer(t *testing.T, sessionID string, inputs ...string) *TurnResponse {
	t.Helper()
	var resp *TurnResponse
	for _, in := range inputs {
		resp = h.turn(t, TurnRequest{SessionID: sessionID, Service: "Family Law", Input: in})
	}
	return resp
}

var aliceInputs = []string{
	"Alice Example",
	"alice@example.com",
	"555-123-4567",
	"Bob Example",
	"Divorce and custody dispute.",
}

func TestFullIntakeReachesConfirmation(t *testing.T) {
	h := newHarness()

	first := h.turn(t, TurnRequest{})
	if first.Step != StepServiceSelection {
		t.Fatalf("step = %s, want service-selection", first.Step)
	}
	if len(first.Services) != 2 || first.Services[0] != "Family Law" {
		t.Errorf("services = %v", first.Services)
	}

	id := h.start(t)
	wantSlots := []SlotID{SlotEmail, SlotPhone, SlotOpposingParty, SlotDescription}
	for i, in := range aliceInputs[:4] {
		resp := h.answer(t, id, in)
		if resp.Step != StepInfoRequest || resp.Slot != wantSlots[i] {
			t.Fatalf("after %q: %s/%s, want info-request/%s", in, resp.Step, resp.Slot, wantSlots[i])
		}
	}
	resp := h.answer(t, id, aliceInputs[4])

	if resp.Step != StepAwaitingConfirmation {
		t.Fatalf("step = %s, want awaiting-confirmation", resp.Step)
	}
	if resp.Canvas == nil {
		t.Fatal("missing matter canvas")
	}
	for _, v := range append([]string{"Family Law"}, aliceInputs...) {
		if !strings.Contains(resp.Canvas.MatterSummary, v) {
			t.Errorf("summary missing %q", v)
		}
	}

	if n := h.notifier.count(events.MatterCreation); n != 1 {
		t.Fatalf("matter_creation dispatched %d times, want 1", n)
	}
	env, ok := h.notifier.calls[0].payload.(events.Envelope)
	if !ok {
		t.Fatalf("payload type %T", h.notifier.calls[0].payload)
	}
	data, ok := env.Data.(events.MatterData)
	if !ok {
		t.Fatalf("data type %T", env.Data)
	}
	if data.Email != "alice@example.com" || data.OpposingParty != "Bob Example" || env.SessionID != id || env.TeamID != "acme" {
		t.Errorf("unexpected payload: %+v", env)
	}
	if data.Answers["name"].Question != "What's your full name?" {
		t.Errorf("name question = %q", data.Answers["name"].Question)
	}
}

func TestMissingIntentAsksOnlyForNextSlot(t *testing.T) {
	h := newHarness()
	id := h.start(t)
	h.answer(t, id, "Alice Example", "alice@example.com")
	saves := h.sessions.saves

	resp := h.answer(t, id, "what is missing?")
	if resp.Step != StepInfoRequest || resp.Slot != SlotPhone {
		t.Fatalf("got %s/%s, want info-request/phone", resp.Step, resp.Slot)
	}
	if resp.Message != "What's a good phone number for us to reach you?" {
		t.Errorf("message = %q", resp.Message)
	}
	if h.sessions.saves != saves {
		t.Error("missing-intent turn must not write the session")
	}
	if h.sessions.data[id].Filled(SlotPhone) {
		t.Error("missing-intent text stored as an answer")
	}
}

func TestSlotsArePromptedInOrder(t *testing.T) {
	ext := &fakeExtractor{fields: map[SlotID]string{SlotPhone: "555-123-4567", SlotOpposingParty: "Bob Example"}}
	h := newHarness(WithExtractor(ext))
	id := h.start(t)

	resp := h.answer(t, id, "Alice Example, call me on 555-123-4567 about Bob Example")
	if resp.Slot != SlotEmail {
		t.Fatalf("next slot = %s, want email", resp.Slot)
	}
	s := h.sessions.data[id]
	if !s.Filled(SlotPhone) || !s.Filled(SlotOpposingParty) {
		t.Errorf("extracted slots not stored: %v", s.Answers)
	}

	ext.fields = nil
	resp = h.answer(t, id, "alice@example.com")
	if resp.Slot != SlotDescription {
		t.Errorf("next slot = %s, want description", resp.Slot)
	}
}

func TestAnswersAreNotOverwritten(t *testing.T) {
	h := newHarness()
	id := h.start(t)
	h.answer(t, id, "Alice Example")

	resp := h.turn(t, TurnRequest{
		SessionID: id,
		Service:   "Family Law",
		Input:     "Carol Example",
		Answers:   map[string]string{"name": "Mallory Example"},
	})
	if resp.Slot != SlotEmail || resp.Rejection != ReasonInvalidEmail {
		t.Errorf("got slot %s rejection %q, want email/invalid_email", resp.Slot, resp.Rejection)
	}
	if !strings.HasPrefix(resp.Message, "That doesn't look like a valid email address.") {
		t.Errorf("message = %q", resp.Message)
	}
	if got := h.sessions.data[id].Value(SlotName); got != "Alice Example" {
		t.Errorf("name = %q, want Alice Example", got)
	}
}

func TestCompletionIsIdempotent(t *testing.T) {
	h := newHarness()
	id := h.start(t)
	h.answer(t, id, aliceInputs...)

	for range 3 {
		resp := h.answer(t, id, "")
		if resp.Step != StepAwaitingConfirmation {
			t.Fatalf("step = %s", resp.Step)
		}
	}
	resp := h.answer(t, id, "Divorce and custody dispute.")
	if resp.Step != StepAwaitingConfirmation {
		t.Fatalf("step = %s", resp.Step)
	}
	if n := h.notifier.count(events.MatterCreation); n != 1 {
		t.Errorf("matter_creation dispatched %d times, want 1", n)
	}
}

func TestSubmitSendsMatterDetailsOnce(t *testing.T) {
	h := newHarness(WithQualityScorer(fixedScorer(0.8)))
	id := h.start(t)
	h.answer(t, id, aliceInputs...)

	for range 2 {
		resp := h.turn(t, TurnRequest{SessionID: id, Step: StepSubmitIntake})
		if resp.Step != StepIntakeComplete {
			t.Fatalf("step = %s, want intake-complete", resp.Step)
		}
	}
	if n := h.notifier.count(events.MatterDetails); n != 1 {
		t.Errorf("matter_details dispatched %d times, want 1", n)
	}

	env := h.notifier.calls[0].payload.(events.Envelope)
	if score := env.Data.(events.MatterData).QualityScore; score == nil || *score != 0.8 {
		t.Errorf("quality score = %v", score)
	}
	details := h.notifier.calls[1].payload.(events.Envelope).Data.(events.MatterDetailsData)
	if details.SubmittedAt != "2026-03-14T09:30:00Z" {
		t.Errorf("submittedAt = %q", details.SubmittedAt)
	}
}

func TestSubmitBeforeCompleteKeepsAsking(t *testing.T) {
	h := newHarness()
	id := h.start(t)
	resp := h.turn(t, TurnRequest{SessionID: id, Service: "Family Law", Step: StepSubmitIntake})
	if resp.Step != StepInfoRequest || resp.Slot != SlotName {
		t.Errorf("got %s/%s", resp.Step, resp.Slot)
	}
	if len(h.notifier.calls) != 0 {
		t.Error("no webhook expected for an incomplete intake")
	}
}

func TestServiceSelectionDoesNotPersist(t *testing.T) {
	h := newHarness()
	resp := h.turn(t, TurnRequest{Input: "hello"})
	if resp.Step != StepServiceSelection || resp.SessionID == "" {
		t.Fatalf("got %+v", resp)
	}
	if h.sessions.saves != 0 {
		t.Errorf("saves = %d, want 0", h.sessions.saves)
	}
}

func TestTeamErrors(t *testing.T) {
	h := newHarness()
	if _, err := h.m.ProcessTurn(t.Context(), TurnRequest{TeamID: " "}); !errors.Is(err, ErrMissingTeam) {
		t.Errorf("err = %v, want ErrMissingTeam", err)
	}
	if _, err := h.m.ProcessTurn(t.Context(), TurnRequest{TeamID: "nobody"}); !errors.Is(err, ErrUnknownTeam) {
		t.Errorf("err = %v, want ErrUnknownTeam", err)
	}
}

func TestExtractionNeverFillsDescription(t *testing.T) {
	ext := &fakeExtractor{fields: map[SlotID]string{SlotDescription: "Something the model made up"}}
	h := newHarness(WithExtractor(ext))
	id := h.start(t)
	h.answer(t, id, "Alice Example")

	if ext.calls == 0 {
		t.Fatal("extractor was not consulted")
	}
	if h.sessions.data[id].Filled(SlotDescription) {
		t.Error("description filled by extraction")
	}
}

func TestExtractionFailureDegrades(t *testing.T) {
	h := newHarness(WithExtractor(&fakeExtractor{err: errors.New("model unavailable")}))
	id := h.start(t)
	resp := h.answer(t, id, "Alice Example")
	if resp.Slot != SlotEmail {
		t.Errorf("next slot = %s, want email", resp.Slot)
	}
}

func TestEchoedAnswersAreMerged(t *testing.T) {
	h := newHarness()
	resp := h.turn(t, TurnRequest{
		Service: "Family Law",
		Answers: map[string]string{
			"name":  "Alice Example",
			"email": "What's the best email address to reach you?",
			"phone": "555-123-4567",
		},
	})
	if resp.Slot != SlotEmail {
		t.Fatalf("next slot = %s, want email", resp.Slot)
	}
	s := h.sessions.data[resp.SessionID]
	if !s.Filled(SlotName) || !s.Filled(SlotPhone) || s.Filled(SlotEmail) {
		t.Errorf("answers = %v", s.Answers)
	}
}

func TestSaveFailureSendsNoWebhook(t *testing.T) {
	h := newHarness()
	id := h.start(t)
	h.answer(t, id, aliceInputs[:4]...)

	h.sessions.saveErr = errors.New("disk full")
	_, err := h.m.ProcessTurn(t.Context(), TurnRequest{TeamID: "acme", SessionID: id, Service: "Family Law", Input: aliceInputs[4]})
	if err == nil {
		t.Fatal("expected save error")
	}
	if len(h.notifier.calls) != 0 {
		t.Error("webhook dispatched although the session was not saved")
	}
	if h.sessions.data[id].Filled(SlotDescription) {
		t.Error("stored session changed by a failed turn")
	}
}

func TestSessionOfAnotherTeamIsNotReused(t *testing.T) {
	h := newHarness()
	id := h.start(t)
	h.answer(t, id, "Alice Example")

	resp := h.turn(t, TurnRequest{TeamID: "other", SessionID: id, Service: "Tax"})
	if resp.SessionID == id {
		t.Fatal("session id reused across teams")
	}
	if resp.Slot != SlotName {
		t.Errorf("slot = %s, want name", resp.Slot)
	}
	if got := h.sessions.data[id].TeamID; got != "acme" {
		t.Errorf("original session team = %q", got)
	}
}

func TestDescriptionRejectsServiceName(t *testing.T) {
	h := newHarness()
	id := h.start(t)
	resp := h.answer(t, id, append(aliceInputs[:4:4], "I need help with Family Law")...)
	if resp.Slot != SlotDescription || resp.Rejection != ReasonContainsService {
		t.Errorf("got %s rejection %q", resp.Slot, resp.Rejection)
	}
}

func TestResubmittedAnswerLeavesStateUnchanged(t *testing.T) {
	settled := func(h *harness, id string) Session {
		s := *h.sessions.data[id].Clone()
		s.ID = ""
		return s
	}

	for i, in := range aliceInputs {
		t.Run(string(DefaultRegistry().Slots()[i].ID), func(t *testing.T) {
			once := newHarness()
			onceID := once.start(t)
			once.answer(t, onceID, aliceInputs[:i+1]...)

			twice := newHarness()
			twiceID := twice.start(t)
			twice.answer(t, twiceID, aliceInputs[:i+1]...)
			resp := twice.answer(t, twiceID, in)
			again := twice.answer(t, twiceID, in)

			if got, want := settled(twice, twiceID), settled(once, onceID); !reflect.DeepEqual(got, want) {
				t.Errorf("state after resubmitting %q:\n got %+v\nwant %+v", in, got, want)
			}
			if resp.Step != again.Step || resp.Slot != again.Slot || resp.Rejection != again.Rejection {
				t.Errorf("replays differ: %s/%s/%q then %s/%s/%q",
					resp.Step, resp.Slot, resp.Rejection, again.Step, again.Slot, again.Rejection)
			}
			for _, et := range []events.EventType{events.MatterCreation, events.MatterDetails} {
				if got, want := twice.notifier.count(et), once.notifier.count(et); got != want {
					t.Errorf("%s dispatched %d times, want %d", et, got, want)
				}
			}
		})
	}
}

func TestNoOpposingPartyIsExplained(t *testing.T) {
	h := newHarness()
	id := h.start(t)
	h.answer(t, id, aliceInputs[:3]...)

	resp := h.answer(t, id, "None")
	if resp.Slot != SlotOpposingParty || resp.Rejection != ReasonNoOpposingParty {
		t.Fatalf("got %s rejection %q, want opposing_party/no_opposing_party", resp.Slot, resp.Rejection)
	}
	if !strings.HasPrefix(resp.Message, `If there is no other party, reply "no opposing party".`) {
		t.Errorf("message = %q", resp.Message)
	}

	resp = h.answer(t, id, "no opposing party")
	if resp.Slot != SlotDescription {
		t.Errorf("next slot = %s, want description", resp.Slot)
	}
}

func TestDescriptionMayMentionWhatIsGoingOn(t *testing.T) {
	h := newHarness()
	id := h.start(t)
	resp := h.answer(t, id, append(aliceInputs[:4:4], "I don't know what's going on, my ex took the kids.")...)
	if resp.Step != StepAwaitingConfirmation {
		t.Fatalf("step = %s rejection %q, want awaiting-confirmation", resp.Step, resp.Rejection)
	}
	if got := h.sessions.data[id].Value(SlotDescription); got != "I don't know what's going on, my ex took the kids." {
		t.Errorf("description = %q", got)
	}
}

func TestPlaceholderRejectionCarriesHint(t *testing.T) {
	h := newHarness()
	id := h.start(t)
	resp := h.answer(t, id, "What's your full name?")
	if resp.Slot != SlotName || resp.Rejection != ReasonPlaceholder {
		t.Fatalf("got %s rejection %q, want name/placeholder", resp.Slot, resp.Rejection)
	}
	if resp.Message != Reject(ReasonPlaceholder).Hint()+" What's your full name?" {
		t.Errorf("message = %q", resp.Message)
	}
}
