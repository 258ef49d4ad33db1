package intake

import (
	"fmt"
	"strings"
)

// SlotID identifies one required intake field.
type SlotID string

const (
	SlotName          SlotID = "name"
	SlotEmail         SlotID = "email"
	SlotPhone         SlotID = "phone"
	SlotOpposingParty SlotID = "opposing_party"
	SlotDescription   SlotID = "description"
)

// Prompt is the question asked for a slot: either a Literal or a Templated
// function of the selected service.
type Prompt interface {
	render(service string) string
}

// Literal is a fixed prompt.
type Literal string

func (l Literal) render(string) string { return string(l) }

// Templated builds the prompt from the selected service name.
type Templated func(service string) string

func (t Templated) render(service string) string { return t(service) }

// RenderPrompt resolves p for the given service.
func RenderPrompt(p Prompt, service string) string {
	service = strings.TrimSpace(service)
	if service == "" {
		service = "legal"
	}
	return p.render(service)
}

// CheckContext is what a slot-specific check may look at besides the value.
type CheckContext struct {
	Service string
	Answers map[SlotID]Answer
}

// Slot is one required field of the intake.
type Slot struct {
	ID       SlotID
	Position int
	Label    string
	Prompt   Prompt
	Check    func(value string, c CheckContext) Verdict
	// Extractable slots may be filled by the extraction assistant.
	Extractable bool
}

// Render returns the slot's prompt for the given service.
func (s Slot) Render(service string) string {
	return RenderPrompt(s.Prompt, service)
}

// Registry is the ordered, immutable set of slots an intake must fill.
type Registry struct {
	slots []Slot
	byID  map[SlotID]int
}

// NewRegistry builds a registry from slots in prompting order.
func NewRegistry(slots ...Slot) (*Registry, error) {
	r := &Registry{byID: make(map[SlotID]int, len(slots))}
	for i, s := range slots {
		if s.ID == "" || s.Prompt == nil {
			return nil, fmt.Errorf("slot %d: id and prompt are required", i)
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate slot %q", s.ID)
		}
		s.Position = i
		r.byID[s.ID] = i
		r.slots = append(r.slots, s)
	}
	return r, nil
}

// DefaultRegistry returns the matter intake slots: name, email, phone,
// opposing party and description.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Slot{
			ID:          SlotName,
			Label:       "Name",
			Prompt:      Literal("What's your full name?"),
			Check:       checkName,
			Extractable: true,
		},
		Slot{
			ID:          SlotEmail,
			Label:       "Email",
			Prompt:      Literal("What's the best email address to reach you?"),
			Check:       checkEmail,
			Extractable: true,
		},
		Slot{
			ID:          SlotPhone,
			Label:       "Phone",
			Prompt:      Literal("What's a good phone number for us to reach you?"),
			Check:       checkPhone,
			Extractable: true,
		},
		Slot{
			ID:    SlotOpposingParty,
			Label: "Opposing Party",
			Prompt: Templated(func(service string) string {
				return fmt.Sprintf("Who is the opposing party in your %s matter?", service)
			}),
			Check:       checkOpposingParty,
			Extractable: true,
		},
		Slot{
			ID:    SlotDescription,
			Label: "Description",
			Prompt: Templated(func(service string) string {
				return fmt.Sprintf("Please briefly describe your %s situation.", service)
			}),
			Check: checkDescription,
		},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Slots returns the slots in prompting order.
func (r *Registry) Slots() []Slot {
	out := make([]Slot, len(r.slots))
	copy(out, r.slots)
	return out
}

// Get returns the slot with the given id.
func (r *Registry) Get(id SlotID) (Slot, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Slot{}, false
	}
	return r.slots[i], true
}

// Unfilled returns, in order, the slots without an answer.
func (r *Registry) Unfilled(answers map[SlotID]Answer) []Slot {
	var out []Slot
	for _, s := range r.slots {
		if !answered(answers, s.ID) {
			out = append(out, s)
		}
	}
	return out
}

// Prompts returns every slot prompt rendered for service.
func (r *Registry) Prompts(service string) []string {
	out := make([]string, 0, len(r.slots))
	for _, s := range r.slots {
		out = append(out, s.Render(service))
	}
	return out
}

func answered(answers map[SlotID]Answer, id SlotID) bool {
	a, ok := answers[id]
	return ok && strings.TrimSpace(a.Answer) != ""
}
