package intake

import (
	"maps"
	"strings"
	"time"

	"github.com/voicetyped/lexintake/pkg/events"
)

// MatterCanvas is the rendered summary returned once the intake is complete.
type MatterCanvas struct {
	Service       string            `json:"service"`
	MatterSummary string            `json:"matterSummary"`
	Answers       map[SlotID]Answer `json:"answers"`
}

// BuildCanvas renders the contact summary and matter description of s.
func BuildCanvas(reg *Registry, s *Session) *MatterCanvas {
	var b strings.Builder
	b.WriteString("## Matter Summary\n\n")
	b.WriteString("**Service:** " + s.Service + "\n\n")

	b.WriteString("### Contact Information\n")
	for _, id := range []SlotID{SlotName, SlotEmail, SlotPhone} {
		slot, ok := reg.Get(id)
		if !ok {
			continue
		}
		b.WriteString("- **" + slot.Label + ":** " + s.Value(id) + "\n")
	}

	b.WriteString("\n### Opposing Party\n")
	b.WriteString(s.Value(SlotOpposingParty) + "\n")

	b.WriteString("\n### Matter Description\n")
	b.WriteString(s.Value(SlotDescription) + "\n")

	return &MatterCanvas{
		Service:       s.Service,
		MatterSummary: b.String(),
		Answers:       maps.Clone(s.Answers),
	}
}

func matterData(s *Session, canvas *MatterCanvas) events.MatterData {
	answers := make(map[string]events.Answer, len(s.Answers))
	for k, v := range s.Answers {
		answers[string(k)] = v
	}
	return events.MatterData{
		Service:       s.Service,
		Name:          s.Value(SlotName),
		Email:         s.Value(SlotEmail),
		Phone:         s.Value(SlotPhone),
		OpposingParty: s.Value(SlotOpposingParty),
		Description:   s.Value(SlotDescription),
		MatterSummary: canvas.MatterSummary,
		Answers:       answers,
	}
}

func matterDetailsData(s *Session, canvas *MatterCanvas, now time.Time) events.MatterDetailsData {
	return events.MatterDetailsData{
		MatterData:  matterData(s, canvas),
		SubmittedAt: now.UTC().Format(time.RFC3339),
	}
}
