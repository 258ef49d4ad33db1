package intake

import (
	"strings"
	"testing"
)

func TestDefaultRegistryOrder(t *testing.T) {
	reg := DefaultRegistry()
	want := []SlotID{SlotName, SlotEmail, SlotPhone, SlotOpposingParty, SlotDescription}
	slots := reg.Slots()
	if len(slots) != len(want) {
		t.Fatalf("registry has %d slots, want %d", len(slots), len(want))
	}
	for i, s := range slots {
		if s.ID != want[i] || s.Position != i {
			t.Errorf("slot %d = %q (position %d), want %q", i, s.ID, s.Position, want[i])
		}
	}
	desc, _ := reg.Get(SlotDescription)
	if desc.Extractable {
		t.Error("description must never be extractable")
	}
}

func TestRenderPrompt(t *testing.T) {
	tests := []struct {
		name    string
		prompt  Prompt
		service string
		want    string
	}{
		{name: "literal ignores service", prompt: Literal("What's your full name?"), service: "Family Law", want: "What's your full name?"},
		{
			name:    "templated uses service",
			prompt:  Templated(func(s string) string { return "About your " + s + " matter" }),
			service: "Family Law",
			want:    "About your Family Law matter",
		},
		{
			name:    "templated falls back without service",
			prompt:  Templated(func(s string) string { return "About your " + s + " matter" }),
			service: "  ",
			want:    "About your legal matter",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderPrompt(tt.prompt, tt.service); got != tt.want {
				t.Errorf("RenderPrompt = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRegistryRejectsBadSlots(t *testing.T) {
	if _, err := NewRegistry(Slot{ID: "a", Prompt: Literal("a")}, Slot{ID: "a", Prompt: Literal("b")}); err == nil {
		t.Error("duplicate slot ids should be rejected")
	}
	if _, err := NewRegistry(Slot{ID: "a"}); err == nil {
		t.Error("slot without prompt should be rejected")
	}
}

func TestBuildCanvas(t *testing.T) {
	reg := DefaultRegistry()
	s := NewSession("s1", "acme", fixedNow)
	s.Service = "Family Law"
	values := map[SlotID]string{
		SlotName:          "Alice Example",
		SlotEmail:         "alice@example.com",
		SlotPhone:         "555-123-4567",
		SlotOpposingParty: "Bob Example",
		SlotDescription:   "Divorce and custody dispute.",
	}
	for id, v := range values {
		s.Answers[id] = Answer{Question: "q", Answer: v}
	}

	canvas := BuildCanvas(reg, s)
	if canvas.Service != "Family Law" {
		t.Errorf("service = %q", canvas.Service)
	}
	for _, v := range values {
		if !strings.Contains(canvas.MatterSummary, v) {
			t.Errorf("summary missing %q:\n%s", v, canvas.MatterSummary)
		}
	}
	if len(canvas.Answers) != 5 {
		t.Errorf("canvas answers = %d, want 5", len(canvas.Answers))
	}

	s.Answers[SlotName] = Answer{Answer: "changed"}
	if canvas.Answers[SlotName].Answer != "Alice Example" {
		t.Error("canvas answers should not alias the session")
	}
}
