package config

import (
	"os"
	"time"

	"github.com/pitabwire/frame/config"

	"github.com/voicetyped/lexintake/pkg/llm"
)

// IntakeConfig holds configuration for the intake service.
type IntakeConfig struct {
	config.ConfigurationDefault

	// Teams
	TeamsDir     string        `envDefault:"./teams" env:"TEAMS_DIR"`
	TeamCacheTTL time.Duration `envDefault:"5m"      env:"TEAM_CACHE_TTL"`

	// Sessions
	SessionDBPath       string        `envDefault:"./data/sessions.db" env:"SESSION_DB_PATH"`
	SessionTTL          time.Duration `envDefault:"24h"                env:"SESSION_TTL"`
	SessionReapInterval time.Duration `envDefault:"10m"                env:"SESSION_REAP_INTERVAL"`

	// Extraction
	LLMBackend           string `envDefault:"openai"           env:"LLM_BACKEND"`
	OpenAIAPIKey         string `envDefault:""                 env:"OPENAI_API_KEY"`
	OpenAIModel          string `envDefault:"gpt-4o-mini"      env:"OPENAI_MODEL"`
	OpenAIBaseURL        string `envDefault:""                 env:"OPENAI_BASE_URL"`
	GeminiAPIKey         string `envDefault:""                 env:"GEMINI_API_KEY"`
	GeminiModel          string `envDefault:"gemini-2.0-flash" env:"GEMINI_MODEL"`
	ExtractionTimeoutSec int    `envDefault:"10"               env:"EXTRACTION_TIMEOUT_SEC"`

	// Webhooks
	WebhookTimeoutSec            int           `envDefault:"30"    env:"WEBHOOK_TIMEOUT_SEC"`
	WebhookDefaultMaxRetries     int           `envDefault:"3"     env:"WEBHOOK_DEFAULT_MAX_RETRIES"`
	WebhookDefaultRetryDelaySec  int           `envDefault:"60"    env:"WEBHOOK_DEFAULT_RETRY_DELAY_SEC"`
	WebhookRetrySchedulerEnabled bool          `envDefault:"true"  env:"WEBHOOK_RETRY_SCHEDULER_ENABLED"`
	WebhookRetryPollInterval     time.Duration `envDefault:"30s"   env:"WEBHOOK_RETRY_POLL_INTERVAL"`
	WebhookAllowPrivateIPs       bool          `envDefault:"false" env:"WEBHOOK_ALLOW_PRIVATE_IPS"`
	CBFailThreshold              int           `envDefault:"5"     env:"CB_FAILURE_THRESHOLD"`
	CBResetTimeoutSec            int           `envDefault:"60"    env:"CB_RESET_TIMEOUT_SEC"`

	// HTTP
	CORSAllowedOrigins string `envDefault:"*" env:"CORS_ALLOWED_ORIGINS"`
}

// LLMSettings returns the options for the configured extraction backend.
func (c *IntakeConfig) LLMSettings() map[string]string {
	switch c.LLMBackend {
	case "gemini":
		return map[string]string{llm.KeyAPIKey: c.GeminiAPIKey, llm.KeyModel: c.GeminiModel}
	default:
		return map[string]string{llm.KeyAPIKey: c.OpenAIAPIKey, llm.KeyModel: c.OpenAIModel, llm.KeyBaseURL: c.OpenAIBaseURL}
	}
}

// ExtractionEnabled reports whether a backend is selected and has a key.
func (c *IntakeConfig) ExtractionEnabled() bool {
	return c.LLMBackend != "" && c.LLMBackend != "none" && c.LLMSettings()[llm.KeyAPIKey] != ""
}

// CLIConfig holds the defaults of the operator CLI.
type CLIConfig struct {
	ServerURL string
	Token     string
}

// CLIFromEnv reads INTAKE_SERVER_URL and INTAKE_ADMIN_TOKEN.
func CLIFromEnv() CLIConfig {
	c := CLIConfig{
		ServerURL: os.Getenv("INTAKE_SERVER_URL"),
		Token:     os.Getenv("INTAKE_ADMIN_TOKEN"),
	}
	if c.ServerURL == "" {
		c.ServerURL = "http://localhost:8080"
	}
	return c
}
