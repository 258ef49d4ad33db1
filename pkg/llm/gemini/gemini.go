// Package gemini registers the "gemini" llm backend on top of google.golang.org/genai.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/voicetyped/lexintake/pkg/llm"
)

const defaultModel = "gemini-2.0-flash"

func init() {
	llm.Backends.Register("gemini", New)
}

// Client calls the Gemini API with JSON response mode.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a Gemini API client.
func New(cfg map[string]string) (llm.Client, error) {
	key := cfg[llm.KeyAPIKey]
	if key == "" {
		return nil, llm.ErrMissingAPIKey
	}
	cc := &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	}
	if base := cfg[llm.KeyBaseURL]; base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := cfg[llm.KeyModel]
	if model == "" {
		model = defaultModel
	}
	return &Client{client: client, model: model}, nil
}

// Complete runs one generate-content call and returns the concatenated text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(user), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("gemini generate content: empty response")
	}
	return text, nil
}
