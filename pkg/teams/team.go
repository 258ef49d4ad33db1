// Package teams holds per-team intake configuration: offered services and
// webhook settings.
package teams

import (
	"errors"
	"fmt"

	"github.com/voicetyped/lexintake/pkg/events"
	"github.com/voicetyped/lexintake/pkg/webhook"
)

// ErrNotFound is returned for unknown team ids.
var ErrNotFound = errors.New("team not found")

// Team is one law firm's intake configuration.
type Team struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Services []string       `yaml:"services"`
	Webhook  webhook.Config `yaml:"webhook"`
}

// Validate checks a team definition.
func (t *Team) Validate() error {
	if t.ID == "" {
		return errors.New("team id is required")
	}
	for et := range t.Webhook.Events {
		if !et.Valid() {
			return fmt.Errorf("team %q: unknown webhook event %q (known: %v)", t.ID, et, events.All)
		}
	}
	if t.Webhook.Enabled && t.Webhook.URL == "" {
		return fmt.Errorf("team %q: webhook enabled without url", t.ID)
	}
	if (t.Webhook.MaxRetries != nil && *t.Webhook.MaxRetries < 0) || t.Webhook.RetryDelay < 0 {
		return fmt.Errorf("team %q: retry settings must not be negative", t.ID)
	}
	return nil
}
