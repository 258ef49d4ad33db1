package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voicetyped/lexintake/pkg/llm"
)

const extractionSystemPrompt = `You extract contact details from a single message sent to a law firm intake assistant.
Return ONLY a JSON object with these optional string keys:
  "name"            the person's full name
  "email"           their email address
  "phone"           their phone number
  "opposing_party"  the person or organization on the other side of their legal matter
Rules:
- Include a key only when its value is stated explicitly in the message.
- Never guess, never invent, never copy the question text.
- Do not describe the legal matter.
- If nothing can be extracted return {}.`

// ExtractionRequest is the context given to the extraction assistant.
type ExtractionRequest struct {
	Service    string
	LastPrompt string
	Input      string
	Filled     []SlotID
}

// SlotExtractor opportunistically fills slots from free text.
type SlotExtractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (map[SlotID]string, error)
}

// Extractor asks a language model for slot values under a strict JSON contract.
type Extractor struct {
	client  llm.Client
	reg     *Registry
	timeout time.Duration
}

// NewExtractor creates an extraction assistant over client.
func NewExtractor(client llm.Client, reg *Registry, timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Extractor{client: client, reg: reg, timeout: timeout}
}

// Extract returns the extractable slot values the model found. The
// description slot is never returned.
func (e *Extractor) Extract(ctx context.Context, req ExtractionRequest) (map[SlotID]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.client.Complete(ctx, extractionSystemPrompt, e.userPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}
	fields, err := parseExtraction(raw)
	if err != nil {
		return nil, err
	}

	out := make(map[SlotID]string, len(fields))
	for k, v := range fields {
		slot, ok := e.reg.Get(SlotID(k))
		if !ok || !slot.Extractable {
			continue
		}
		out[slot.ID] = v
	}
	return out, nil
}

func (e *Extractor) userPrompt(req ExtractionRequest) string {
	var b strings.Builder
	if req.Service != "" {
		fmt.Fprintf(&b, "Legal service: %s\n", req.Service)
	}
	if req.LastPrompt != "" {
		fmt.Fprintf(&b, "Question the user was answering: %s\n", req.LastPrompt)
	}
	if len(req.Filled) > 0 {
		names := make([]string, len(req.Filled))
		for i, id := range req.Filled {
			names[i] = string(id)
		}
		fmt.Fprintf(&b, "Already collected (do not return): %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(&b, "Message: %s", req.Input)
	return b.String()
}

var errNoJSONObject = errors.New("extraction response contains no JSON object")

// parseExtraction reads the first JSON object of a model reply, tolerating
// code fences and chatter around it. Non-string and empty values are dropped.
func parseExtraction(raw string) (map[string]string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, errNoJSONObject
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw[start:end+1]), &fields); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}

	out := make(map[string]string, len(fields))
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if s = Normalize(s); s != "" {
			out[strings.ToLower(strings.TrimSpace(k))] = s
		}
	}
	return out, nil
}
