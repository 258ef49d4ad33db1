package intake

import (
	"maps"
	"time"

	"github.com/voicetyped/lexintake/pkg/events"
)

// Answer is a captured slot value keyed with the question that was shown.
type Answer = events.Answer

// Session is the persisted state of one intake conversation.
type Session struct {
	ID               string            `json:"id"`
	TeamID           string            `json:"teamId"`
	Service          string            `json:"service,omitempty"`
	Answers          map[SlotID]Answer `json:"answers"`
	LastPromptedSlot SlotID            `json:"lastPromptedSlot,omitempty"`
	LastPrompt       string            `json:"lastPrompt,omitempty"`
	CreationNotified bool              `json:"creationNotified,omitempty"`
	Submitted        bool              `json:"submitted,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// NewSession creates an empty session for a team.
func NewSession(id, teamID string, now time.Time) *Session {
	return &Session{
		ID:        id,
		TeamID:    teamID,
		Answers:   make(map[SlotID]Answer),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so a turn can be validated before anything is
// committed to the stored session.
func (s *Session) Clone() *Session {
	c := *s
	c.Answers = make(map[SlotID]Answer, len(s.Answers))
	maps.Copy(c.Answers, s.Answers)
	return &c
}

// Filled reports whether slot id holds an answer.
func (s *Session) Filled(id SlotID) bool {
	return answered(s.Answers, id)
}

// Value returns the stored answer text of a slot.
func (s *Session) Value(id SlotID) string {
	return s.Answers[id].Answer
}

// FilledSlots lists the answered slot ids in registry order.
func (s *Session) FilledSlots(reg *Registry) []SlotID {
	var out []SlotID
	for _, slot := range reg.Slots() {
		if s.Filled(slot.ID) {
			out = append(out, slot.ID)
		}
	}
	return out
}

// Complete reports whether every slot of reg is answered.
func (s *Session) Complete(reg *Registry) bool {
	return len(reg.Unfilled(s.Answers)) == 0
}

func (s *Session) values() map[SlotID]string {
	out := make(map[SlotID]string, len(s.Answers))
	for k, v := range s.Answers {
		out[k] = v.Answer
	}
	return out
}
