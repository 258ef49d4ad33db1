package webhook

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRetrySchedulerFiresDueAttempts(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	store := newMemStore()
	d := newTestDeliverer(store, staticConfigs{"acme": testConfig(ts.URL)})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	due := &Attempt{TeamID: "acme", EventType: "matter_creation", URL: ts.URL, Payload: `{}`, Status: StatusRetry, RetryCount: 1}
	due.ID = "due"
	due.NextRetryAt = sql.NullTime{Time: now.Add(-time.Second), Valid: true}

	later := &Attempt{TeamID: "acme", EventType: "matter_creation", URL: ts.URL, Payload: `{}`, Status: StatusRetry, RetryCount: 1}
	later.ID = "later"
	later.NextRetryAt = sql.NullTime{Time: now.Add(time.Hour), Valid: true}

	terminal := &Attempt{TeamID: "acme", EventType: "matter_creation", URL: ts.URL, Payload: `{}`, Status: StatusFailed, RetryCount: 2}
	terminal.ID = "terminal"

	for _, a := range []*Attempt{due, later, terminal} {
		if err := store.Create(t.Context(), a); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	s := NewRetryScheduler(store, d, nil, time.Minute)
	if fired := s.RunOnce(t.Context()); fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}

	if got := store.status("due"); got != StatusSuccess {
		t.Errorf("due attempt status = %q, want success", got)
	}
	if got := store.status("later"); got != StatusRetry {
		t.Errorf("future attempt status = %q, want retry", got)
	}
	if got := store.status("terminal"); got != StatusFailed {
		t.Errorf("terminal attempt status = %q, want failed", got)
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1", hits.Load())
	}
}

func TestRetrySchedulerSkipsUnknownTeam(t *testing.T) {
	store := newMemStore()
	d := newTestDeliverer(store, staticConfigs{})

	a := &Attempt{TeamID: "gone", URL: "http://127.0.0.1:1", Payload: `{}`, Status: StatusRetry}
	a.ID = "orphan"
	a.NextRetryAt = sql.NullTime{Time: time.Now().Add(-time.Minute), Valid: true}
	if err := store.Create(t.Context(), a); err != nil {
		t.Fatalf("Create: %v", err)
	}

	s := NewRetryScheduler(store, d, nil, time.Minute)
	if fired := s.RunOnce(t.Context()); fired != 0 {
		t.Errorf("fired = %d, want 0", fired)
	}
	if got := store.status("orphan"); got != StatusRetry {
		t.Errorf("status = %q, want retry to be left untouched", got)
	}
}
