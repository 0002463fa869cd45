package wordlists

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/driftsec/fuzzfleet/pkg/errdefs"
	"github.com/driftsec/fuzzfleet/pkg/log"
)

// Registry maps wordlist names to resolved filesystem paths. Task creation
// only accepts registered names. Updates are append-only: a name, once
// registered, keeps its first path.
type Registry struct {
	mu    sync.RWMutex
	lists map[string]string
}

// NewRegistry returns a registry seeded with the stock wordlists
func NewRegistry() *Registry {
	return &Registry{
		lists: map[string]string{
			"common.txt":         "/opt/wordlists/common.txt",
			"directory-list.txt": "/opt/wordlists/directory-list.txt",
			"api-wordlist.txt":   "/opt/wordlists/api-wordlist.txt",
			"custom.txt":         "/opt/wordlists/custom.txt",
		},
	}
}

// NewEmptyRegistry returns a registry with no entries. Used by tests and by
// deployments that rely entirely on directory discovery.
func NewEmptyRegistry() *Registry {
	return &Registry{lists: make(map[string]string)}
}

// Add registers a wordlist name. Re-registering an existing name is a no-op.
func (r *Registry) Add(name, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lists[name]; ok {
		return
	}
	r.lists[name] = path
}

// Resolve returns the path for a registered wordlist name
func (r *Registry) Resolve(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	path, ok := r.lists[name]
	if !ok {
		return "", errdefs.Wrap(errdefs.ErrUnknownWordlist, "wordlist %s", name)
	}
	return path, nil
}

// List returns a copy of the registered name → path map
func (r *Registry) List() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.lists))
	for k, v := range r.lists {
		out[k] = v
	}
	return out
}

// Watch registers every *.txt file already in dir, then watches it and
// auto-registers files as they appear. Removals and renames are ignored:
// the registry is append-only. Blocks until ctx is cancelled.
func (r *Registry) Watch(ctx context.Context, dir string) error {
	logger := log.WithComponent("wordlists")

	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return fmt.Errorf("scan wordlist dir %s: %w", dir, err)
	}
	for _, path := range matches {
		r.Add(filepath.Base(path), path)
	}
	logger.Info().Str("dir", dir).Int("found", len(matches)).Msg("wordlist directory scanned")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasSuffix(event.Name, ".txt") {
				continue
			}
			name := filepath.Base(event.Name)
			r.Add(name, event.Name)
			logger.Info().Str("wordlist", name).Str("path", event.Name).Msg("wordlist registered")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("wordlist watcher error")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
