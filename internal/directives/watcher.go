// Package directives serves the system directive for coding cycles. The
// built-in directive ships in the binary; operators can override it by
// dropping a system_directive.txt into the directives directory, and the
// override hot reloads on save without a restart.
package directives

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gamesmith/internal/logging"
)

// DirectiveFile is the override file name inside the directives directory.
const DirectiveFile = "system_directive.txt"

// Source holds the current directive and optionally watches for overrides.
type Source struct {
	mu          sync.RWMutex
	override    string
	fallback    string
	dir         string
	watcher     *fsnotify.Watcher
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats SourceStats
}

// SourceStats tracks reload activity for debugging.
type SourceStats struct {
	Reloads  int
	Clears   int
	Errors   int
	LastLoad time.Time
}

// NewSource creates a directive source rooted at dir. fallback is the
// built-in directive served while no override file exists.
func NewSource(dir, fallback string) (*Source, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Source{
		fallback:    fallback,
		dir:         dir,
		watcher:     watcher,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond, // Debounce rapid saves
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Current returns the directive to use right now.
func (s *Source) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.override != "" {
		return s.override
	}
	return s.fallback
}

// HasOverride reports whether an override file is in effect.
func (s *Source) HasOverride() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.override != ""
}

// Stats returns a copy of the reload counters.
func (s *Source) Stats() SourceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Refresh loads the override file once. Used at startup and when hot reload
// is disabled.
func (s *Source) Refresh() {
	s.reload(filepath.Join(s.dir, DirectiveFile))
}

// Start begins watching the directives directory. Non-blocking; the watcher
// runs in its own goroutine until Stop or context cancellation.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		logging.DirectivesWarn("failed to create directives dir %s: %v (continuing anyway)", s.dir, err)
	}

	if err := s.watcher.Add(s.dir); err != nil {
		// Directory may appear later; the override just won't hot reload.
		logging.DirectivesWarn("initial watch failed on %s: %v", s.dir, err)
	} else {
		logging.Directives("watching %s", filepath.Join(s.dir, DirectiveFile))
	}

	s.Refresh()

	go s.run(ctx)

	return nil
}

// Stop stops the watcher and waits for cleanup.
func (s *Source) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh

	if err := s.watcher.Close(); err != nil {
		logging.DirectivesError("error closing watcher: %v", err)
	}
	logging.Directives("stopped")
}

// IsWatching reports whether the watcher loop is running.
func (s *Source) IsWatching() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Source) run(ctx context.Context) {
	defer close(s.doneCh)

	// Settles bursts of events from editors that save in multiple steps.
	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Directives("context cancelled")
			return

		case <-s.stopCh:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logging.DirectivesError("watch error: %v", err)
			s.mu.Lock()
			s.stats.Errors++
			s.mu.Unlock()

		case <-debounceTicker.C:
			s.processDebouncedEvents()
		}
	}
}

func (s *Source) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != DirectiveFile {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	logging.DirectivesDebug("%s event for %s", event.Op, event.Name)

	s.mu.Lock()
	s.debounceMap[event.Name] = time.Now()
	s.mu.Unlock()
}

func (s *Source) processDebouncedEvents() {
	s.mu.Lock()
	now := time.Now()
	toProcess := make([]string, 0)
	for path, eventTime := range s.debounceMap {
		if now.Sub(eventTime) >= s.debounceDur {
			toProcess = append(toProcess, path)
			delete(s.debounceMap, path)
		}
	}
	s.mu.Unlock()

	for _, path := range toProcess {
		s.reload(path)
	}
}

// reload reads the override file and swaps it in. A missing or empty file
// clears the override so the built-in directive applies again.
func (s *Source) reload(path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.clearOverride()
			return
		}
		logging.DirectivesError("failed to read %s: %v", path, err)
		s.mu.Lock()
		s.stats.Errors++
		s.mu.Unlock()
		return
	}

	text := strings.TrimSpace(string(content))
	if text == "" {
		logging.DirectivesWarn("%s is empty; using the built-in directive", path)
		s.clearOverride()
		return
	}

	s.mu.Lock()
	changed := s.override != text
	s.override = text
	s.stats.Reloads++
	s.stats.LastLoad = time.Now()
	s.mu.Unlock()

	if changed {
		logging.Directives("loaded directive override (%d bytes)", len(text))
	}
}

func (s *Source) clearOverride() {
	s.mu.Lock()
	hadOverride := s.override != ""
	s.override = ""
	if hadOverride {
		s.stats.Clears++
	}
	s.mu.Unlock()

	if hadOverride {
		logging.Directives("override removed; using the built-in directive")
	}
}
