package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pitabwire/frame/datastore/pool"
)

// ErrAttemptNotFound is returned when no attempt chain matches an id.
var ErrAttemptNotFound = errors.New("webhook attempt not found")

// Store persists attempt chains for delivery, audit and replay.
type Store interface {
	Create(ctx context.Context, a *Attempt) error
	Update(ctx context.Context, a *Attempt) error
	Get(ctx context.Context, id string) (*Attempt, error)
	ListByTeam(ctx context.Context, teamID string, status Status, limit, offset int) ([]Attempt, error)
	ListRetryable(ctx context.Context, teamID string) ([]Attempt, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]Attempt, error)
	// Claim moves a failed or retry-scheduled chain back to pending and
	// reports whether this caller won it.
	Claim(ctx context.Context, id string) (bool, error)
}

// Repository is the gorm-backed Store over the service datastore.
type Repository struct {
	pool pool.Pool
}

// NewRepository creates a new webhook attempt repository.
func NewRepository(pool pool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// Migrate creates or updates the webhook_attempts table.
func (r *Repository) Migrate(ctx context.Context) error {
	if err := r.db(ctx, false).AutoMigrate(&Attempt{}); err != nil {
		return fmt.Errorf("migrate webhook attempts: %w", err)
	}
	return nil
}

// Create persists a new attempt chain.
func (r *Repository) Create(ctx context.Context, a *Attempt) error {
	return r.db(ctx, false).Create(a).Error
}

// Update persists changes to an attempt chain.
func (r *Repository) Update(ctx context.Context, a *Attempt) error {
	return r.db(ctx, false).Save(a).Error
}

// Claim atomically re-arms a failed or retry-scheduled chain. Concurrent
// callers race on the conditional update; only one sees a changed row.
func (r *Repository) Claim(ctx context.Context, id string) (bool, error) {
	res := r.db(ctx, false).
		Model(&Attempt{}).
		Where("id = ? AND status IN ?", id, []Status{StatusFailed, StatusRetry}).
		Updates(map[string]any{
			"status":        StatusPending,
			"next_retry_at": nil,
			"modified_at":   time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Get returns an attempt chain by ID.
func (r *Repository) Get(ctx context.Context, id string) (*Attempt, error) {
	var a Attempt
	err := r.db(ctx, true).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListByTeam returns a team's attempt chains, newest first, optionally
// filtered by status.
func (r *Repository) ListByTeam(ctx context.Context, teamID string, status Status, limit, offset int) ([]Attempt, error) {
	var attempts []Attempt
	q := r.db(ctx, true).
		Where("team_id = ?", teamID).
		Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	err := q.Find(&attempts).Error
	return attempts, err
}

// ListRetryable returns a team's failed and retry-scheduled chains.
func (r *Repository) ListRetryable(ctx context.Context, teamID string) ([]Attempt, error) {
	var attempts []Attempt
	err := r.db(ctx, true).
		Where("team_id = ? AND status IN ?", teamID, []Status{StatusFailed, StatusRetry}).
		Order("created_at ASC").
		Find(&attempts).Error
	return attempts, err
}

// ListDue returns retry-scheduled chains whose next retry time has passed.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]Attempt, error) {
	var attempts []Attempt
	q := r.db(ctx, true).
		Where("status = ? AND next_retry_at <= ?", StatusRetry, now).
		Order("next_retry_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&attempts).Error
	return attempts, err
}
