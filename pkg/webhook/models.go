package webhook

import (
	"database/sql"
	"time"

	"github.com/pitabwire/frame/data"

	"github.com/voicetyped/lexintake/pkg/events"
)

// Status is the lifecycle state of an attempt chain.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusRetry   Status = "retry"
)

// Retryable reports whether an operator retry may re-arm a chain in this state.
func (s Status) Retryable() bool {
	return s == StatusFailed || s == StatusRetry
}

// Config is a team's webhook settings.
type Config struct {
	Enabled bool   `yaml:"enabled"     json:"enabled"`
	URL     string `yaml:"url"         json:"url"`
	Secret  string `yaml:"secret"      json:"-"`
	// Events enables individual event types. An empty map enables all of them.
	Events map[events.EventType]bool `yaml:"events" json:"events,omitempty"`
	// MaxRetries overrides the service default when set; 0 disables
	// automatic retries.
	MaxRetries *int `yaml:"max_retries" json:"max_retries,omitempty"`
	// RetryDelay is the base backoff in seconds.
	RetryDelay int `yaml:"retry_delay" json:"retry_delay"`
}

// EventEnabled reports whether deliveries for et should be sent.
func (c Config) EventEnabled(et events.EventType) bool {
	if len(c.Events) == 0 {
		return true
	}
	return c.Events[et]
}

// RetryPolicy returns the chain's retry parameters, falling back to the
// supplied defaults when the team leaves them unset.
func (c Config) RetryPolicy(def RetryPolicy) RetryPolicy {
	p := def
	if c.MaxRetries != nil {
		p.MaxRetries = max(*c.MaxRetries, 0)
	}
	if c.RetryDelay > 0 {
		p.BaseDelay = time.Duration(c.RetryDelay) * time.Second
	}
	return p
}

// RetryPolicy bounds automatic redelivery of a chain.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Attempt is one logical delivery of an event to a team's endpoint,
// mutated by every try until it succeeds or exhausts its retries.
type Attempt struct {
	data.BaseModel

	TeamID       string       `gorm:"type:varchar(100);not null;index:idx_wa_team"   json:"team_id"`
	SessionID    string       `gorm:"type:varchar(50)"                               json:"session_id,omitempty"`
	EventType    string       `gorm:"type:varchar(50);not null"                      json:"event_type"`
	URL          string       `gorm:"type:varchar(2048);not null"                    json:"url"`
	Payload      string       `gorm:"type:text;not null"                             json:"payload"`
	Status       Status       `gorm:"type:varchar(20);not null;index:idx_wa_status"  json:"status"`
	ResponseCode int          `gorm:"default:0"                                      json:"response_code"`
	ResponseBody string       `gorm:"type:text"                                      json:"response_body,omitempty"`
	Error        string       `gorm:"type:text"                                      json:"error,omitempty"`
	RetryCount   int          `gorm:"default:0"                                      json:"retry_count"`
	NextRetryAt  sql.NullTime `gorm:"index:idx_wa_next_retry"                        json:"next_retry_at,omitempty"`
	DurationMs   int64        `gorm:"default:0"                                      json:"duration_ms"`
}

func (Attempt) TableName() string { return "webhook_attempts" }
