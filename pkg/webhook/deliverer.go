package webhook

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"
	"github.com/rs/xid"

	"github.com/voicetyped/lexintake/pkg/events"
	"github.com/voicetyped/lexintake/pkg/urlvalidation"
)

const (
	maxBreakers     = 10000
	maxResponseBody = 4096
	maxBackoffShift = 20
)

var (
	ErrNotRetryable    = errors.New("webhook attempt is not in a retryable state")
	ErrWebhookDisabled = errors.New("team webhook is disabled")
)

// ConfigSource resolves the current webhook settings of a team.
type ConfigSource interface {
	WebhookConfig(ctx context.Context, teamID string) (Config, error)
}

// DelivererConfig holds delivery-related settings.
type DelivererConfig struct {
	TimeoutSec           int
	DefaultMaxRetries    int
	DefaultRetryDelaySec int
	CBFailThreshold      int
	CBResetTimeoutSec    int
}

func (c DelivererConfig) defaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: c.DefaultMaxRetries,
		BaseDelay:  time.Duration(c.DefaultRetryDelaySec) * time.Second,
	}
}

// Deliverer sends signed webhook events to team endpoints, records every
// attempt chain and drives the retry state machine.
type Deliverer struct {
	store        Store
	teams        ConfigSource
	httpClient   *http.Client
	config       DelivererConfig
	pool         workerpool.WorkerPool
	validateOpts []urlvalidation.Option
	now          func() time.Time

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewDeliverer creates a new webhook deliverer.
func NewDeliverer(store Store, teams ConfigSource, cfg DelivererConfig, pool workerpool.WorkerPool, validateOpts ...urlvalidation.Option) *Deliverer {
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = 30
	}
	return &Deliverer{
		store: store,
		teams: teams,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config:       cfg,
		pool:         pool,
		validateOpts: validateOpts,
		now:          time.Now,
		breakers:     make(map[string]*CircuitBreaker),
	}
}

func (d *Deliverer) getOrCreateBreaker(url string) *CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	cb, ok := d.breakers[url]
	if ok {
		return cb
	}

	if len(d.breakers) >= maxBreakers {
		for k := range d.breakers {
			delete(d.breakers, k)
			break
		}
	}

	cb = NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:    d.config.CBFailThreshold,
		ResetTimeout:        time.Duration(d.config.CBResetTimeoutSec) * time.Second,
		HalfOpenMaxAttempts: 1,
	})
	d.breakers[url] = cb
	return cb
}

// Dispatch sends the event in the background. The caller's cancellation
// does not abort the delivery.
func (d *Deliverer) Dispatch(ctx context.Context, teamID string, eventType events.EventType, payload any, cfg Config) {
	ctx = context.WithoutCancel(ctx)
	job := func() {
		if _, err := d.Send(ctx, teamID, eventType, payload, cfg); err != nil {
			slog.ErrorContext(ctx, "webhook dispatch failed",
				slog.String("team_id", teamID),
				slog.String("event_type", string(eventType)),
				slog.String("error", err.Error()))
		}
	}

	if d.pool != nil {
		err := d.pool.Submit(ctx, job)
		if err == nil {
			return
		}
		slog.WarnContext(ctx, "webhook pool rejected job, delivering inline goroutine",
			slog.String("team_id", teamID),
			slog.String("error", err.Error()))
	}
	go job()
}

// Send records a pending attempt chain and makes the first delivery try.
// Disabled webhooks and events are skipped and return a nil attempt.
// Delivery failures are recorded on the chain, not returned; only failures
// to record the outcome are.
func (d *Deliverer) Send(ctx context.Context, teamID string, eventType events.EventType, payload any, cfg Config) (*Attempt, error) {
	if !cfg.Enabled || cfg.URL == "" || !cfg.EventEnabled(eventType) {
		slog.DebugContext(ctx, "webhook skipped",
			slog.String("team_id", teamID),
			slog.String("event_type", string(eventType)))
		return nil, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}

	a := &Attempt{
		TeamID:    teamID,
		EventType: string(eventType),
		URL:       cfg.URL,
		Payload:   string(body),
		Status:    StatusPending,
	}
	a.ID = xid.New().String()
	if env, ok := payload.(events.Envelope); ok {
		a.SessionID = env.SessionID
	}

	if err := d.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("record pending webhook attempt: %w", err)
	}

	if err := d.deliver(ctx, a, cfg); err != nil {
		return a, err
	}
	return a, nil
}

// ScheduleRetry arms the chain for another try after base*2^retryCount,
// or leaves it failed once its retries are exhausted.
func (d *Deliverer) ScheduleRetry(ctx context.Context, a *Attempt, policy RetryPolicy) error {
	if a.RetryCount >= policy.MaxRetries {
		slog.WarnContext(ctx, "webhook retries exhausted",
			slog.String("attempt_id", a.ID),
			slog.String("team_id", a.TeamID),
			slog.Int("retry_count", a.RetryCount))
		return nil
	}

	shift := min(a.RetryCount, maxBackoffShift)
	delay := policy.BaseDelay * time.Duration(1<<shift)
	a.NextRetryAt = sql.NullTime{Time: d.now().Add(delay), Valid: true}
	a.RetryCount++
	a.Status = StatusRetry
	return d.store.Update(ctx, a)
}

// Retry re-arms a failed or retry-scheduled chain and delivers it again
// with the team's current settings.
func (d *Deliverer) Retry(ctx context.Context, id string) (*Attempt, error) {
	a, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.Retryable() {
		return a, ErrNotRetryable
	}
	if err := d.redeliver(ctx, a); err != nil {
		return a, err
	}
	return a, nil
}

// RetryTeam re-arms and delivers every failed or retry-scheduled chain of a
// team and returns the chains it redelivered. Chains claimed concurrently by
// the scheduler or another operator are skipped.
func (d *Deliverer) RetryTeam(ctx context.Context, teamID string) ([]Attempt, error) {
	attempts, err := d.store.ListRetryable(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list retryable attempts: %w", err)
	}
	retried := make([]Attempt, 0, len(attempts))
	for i := range attempts {
		err := d.redeliver(ctx, &attempts[i])
		if errors.Is(err, ErrNotRetryable) {
			continue
		}
		if err != nil {
			return retried, err
		}
		retried = append(retried, attempts[i])
	}
	return retried, nil
}

// redeliver claims a chain and delivers it with the team's current
// settings. The delivery and its bookkeeping outlive ctx so a caller that
// gives up mid-request cannot leave the chain pending.
func (d *Deliverer) redeliver(ctx context.Context, a *Attempt) error {
	ctx = context.WithoutCancel(ctx)

	cfg, err := d.teams.WebhookConfig(ctx, a.TeamID)
	if err != nil {
		return fmt.Errorf("load webhook config for team %q: %w", a.TeamID, err)
	}
	if !cfg.Enabled {
		return ErrWebhookDisabled
	}

	claimed, err := d.store.Claim(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("claim webhook attempt: %w", err)
	}
	if !claimed {
		return ErrNotRetryable
	}

	if cfg.URL != "" {
		a.URL = cfg.URL
	}
	a.Status = StatusPending
	a.NextRetryAt = sql.NullTime{}
	return d.deliver(ctx, a, cfg)
}

// deliver makes one POST and records its outcome. The returned error is
// about recording, never about the delivery itself.
func (d *Deliverer) deliver(ctx context.Context, a *Attempt, cfg Config) error {
	ctx = context.WithoutCancel(ctx)
	policy := cfg.RetryPolicy(d.config.defaultPolicy())

	if err := urlvalidation.ValidateWebhookURLContext(ctx, a.URL, d.validateOpts...); err != nil {
		slog.ErrorContext(ctx, "webhook URL failed SSRF validation",
			slog.String("attempt_id", a.ID),
			slog.String("url", a.URL),
			slog.String("error", err.Error()))
		return d.fail(ctx, a, policy, err.Error())
	}

	cb := d.getOrCreateBreaker(a.URL)
	if !cb.AllowRequest() {
		return d.fail(ctx, a, policy, "circuit open")
	}

	ts := d.now()
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(d.config.TimeoutSec)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.URL, bytes.NewReader([]byte(a.Payload)))
	if err != nil {
		return d.fail(ctx, a, policy, fmt.Sprintf("create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(a.Payload, cfg.Secret, ts.Unix()))
	req.Header.Set(EventHeader, a.EventType)
	req.Header.Set(DeliveryHeader, a.ID)
	req.Header.Set(TimestampHeader, ts.UTC().Format(time.RFC3339))

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	a.DurationMs = time.Since(start).Milliseconds()

	if err != nil {
		cb.RecordFailure()
		a.ResponseCode = 0
		a.ResponseBody = ""
		return d.fail(ctx, a, policy, err.Error())
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	// Drain remainder for connection reuse.
	io.Copy(io.Discard, resp.Body)

	a.ResponseCode = resp.StatusCode
	a.ResponseBody = string(respBody)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		cb.RecordSuccess()
		a.Status = StatusSuccess
		a.Error = ""
		if err := d.store.Update(ctx, a); err != nil {
			return fmt.Errorf("record webhook success: %w", err)
		}
		return nil
	}

	cb.RecordFailure()
	return d.fail(ctx, a, policy, fmt.Sprintf("HTTP %d", resp.StatusCode))
}

func (d *Deliverer) fail(ctx context.Context, a *Attempt, policy RetryPolicy, errMsg string) error {
	slog.WarnContext(ctx, "webhook delivery failed",
		slog.String("attempt_id", a.ID),
		slog.String("team_id", a.TeamID),
		slog.String("event_type", a.EventType),
		slog.String("error", errMsg))

	a.Status = StatusFailed
	a.Error = errMsg
	if err := d.store.Update(ctx, a); err != nil {
		return fmt.Errorf("record webhook failure: %w", err)
	}
	if err := d.ScheduleRetry(ctx, a, policy); err != nil {
		return fmt.Errorf("schedule webhook retry: %w", err)
	}
	return nil
}
