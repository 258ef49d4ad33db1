package teams

import (
	"context"
	"sync"
	"time"

	"github.com/voicetyped/lexintake/pkg/webhook"
)

// Source resolves a team by id.
type Source interface {
	Team(ctx context.Context, id string) (*Team, error)
}

type cacheEntry struct {
	team      *Team
	expiresAt time.Time
}

// Cache is a read-through TTL cache in front of a Source. Concurrent misses
// for the same id may each hit the source; the last result wins.
type Cache struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates a cache holding entries for ttl.
func NewCache(src Source, ttl time.Duration) *Cache {
	return &Cache{
		src:     src,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Team returns the cached team or loads it from the source. Lookup failures
// are not cached.
func (c *Cache) Team(ctx context.Context, id string) (*Team, error) {
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if ok && now.Before(e.expiresAt) {
		return e.team, nil
	}

	t, err := c.src.Team(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[id] = cacheEntry{team: t, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	return t, nil
}

// WebhookConfig returns the team's webhook settings.
func (c *Cache) WebhookConfig(ctx context.Context, teamID string) (webhook.Config, error) {
	t, err := c.Team(ctx, teamID)
	if err != nil {
		return webhook.Config{}, err
	}
	return t.Webhook, nil
}

// Invalidate drops one team from the cache.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}
