package teams

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader loads and optionally hot-reloads team definitions from YAML files,
// one team per file.
type Loader struct {
	dir string

	mu       sync.RWMutex
	teams    map[string]*Team
	onReload []func()
}

// NewLoader creates a new team loader for the given directory.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:   dir,
		teams: make(map[string]*Team),
	}
}

// OnReload registers fn to run after every successful reload.
func (l *Loader) OnReload(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = append(l.onReload, fn)
}

// LoadAll loads all .yaml and .yml files from the configured directory. The
// previous set stays active if any file fails to load.
func (l *Loader) LoadAll() (map[string]*Team, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read teams dir %q: %w", l.dir, err)
	}

	result := make(map[string]*Team)
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		team, err := loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", path, err)
		}
		if _, dup := result[team.ID]; dup {
			return nil, fmt.Errorf("load %q: duplicate team id %q", path, team.ID)
		}
		result[team.ID] = team
	}

	l.mu.Lock()
	l.teams = result
	hooks := append([]func(){}, l.onReload...)
	l.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return result, nil
}

// Team returns a loaded team by id.
func (l *Loader) Team(_ context.Context, id string) (*Team, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.teams[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *t
	return &c, nil
}

// IDs returns the ids of all loaded teams.
func (l *Loader) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.teams))
	for id := range l.teams {
		ids = append(ids, id)
	}
	return ids
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func loadFile(path string) (*Team, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var t Team
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if t.ID == "" {
		t.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// WatchAndReload watches the teams directory and reloads on change.
// This blocks until ctx is cancelled.
func (l *Loader) WatchAndReload(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isYAML(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if _, err := l.LoadAll(); err != nil {
					slog.ErrorContext(ctx, "team config reload failed, keeping previous set",
						slog.String("dir", l.dir),
						slog.String("error", err.Error()))
					continue
				}
				slog.InfoContext(ctx, "team config reloaded", slog.String("file", event.Name))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
