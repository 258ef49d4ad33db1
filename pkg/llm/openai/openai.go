// Package openai registers the "openai" llm backend on top of go-openai.
package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/voicetyped/lexintake/pkg/llm"
)

func init() {
	llm.Backends.Register("openai", New)
}

// Client is a chat-completions client constrained to JSON object output.
type Client struct {
	client *goopenai.Client
	model  string
}

// New creates an OpenAI-compatible client. base_url points it at any
// compatible endpoint.
func New(cfg map[string]string) (llm.Client, error) {
	key := cfg[llm.KeyAPIKey]
	if key == "" {
		return nil, llm.ErrMissingAPIKey
	}
	conf := goopenai.DefaultConfig(key)
	if base := cfg[llm.KeyBaseURL]; base != "" {
		conf.BaseURL = base
	}
	model := cfg[llm.KeyModel]
	if model == "" {
		model = goopenai.GPT4oMini
	}
	return &Client{client: goopenai.NewClientWithConfig(conf), model: model}, nil
}

// Complete sends one system+user exchange and returns the first choice.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}
