// Package watch follows a labeler's results directory while a session runs
// and re-reads the session state whenever the experiment writes a progress
// or results file. Re-reads are debounced, so a burst of writes at a trial
// boundary produces one fresh summary, not five.
package watch

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"labrat/internal/logging"
	"labrat/internal/session"

	"github.com/fsnotify/fsnotify"
)

// Stats tracks watcher activity.
type Stats struct {
	FilesCreated  int
	FilesModified int
	FilesDeleted  int
	Reloads       int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
	LastEventType string
}

// ProgressWatcher watches one labeler's results directory and emits a fresh
// session summary once writes have settled.
type ProgressWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	labelerID   string
	resultsDir  string
	randDir     string
	labelerDir  string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	updates     chan session.Summary

	stats Stats
}

// NewProgressWatcher creates a watcher for the given labeler. The debounce
// window batches rapid saves; non-positive values fall back to 500ms.
func NewProgressWatcher(resultsDir, randomizationDir, labelerID string, debounce time.Duration) (*ProgressWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	pw := &ProgressWatcher{
		watcher:     watcher,
		labelerID:   labelerID,
		resultsDir:  resultsDir,
		randDir:     randomizationDir,
		labelerDir:  session.Dir(resultsDir, labelerID),
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		updates:     make(chan session.Summary, 1),
	}

	return pw, nil
}

// Updates delivers session summaries: one immediately after Start, then one
// whenever the watched files settle after a change. The channel closes when
// the watcher stops.
func (pw *ProgressWatcher) Updates() <-chan session.Summary {
	return pw.updates
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine
// until Stop is called or the context ends.
func (pw *ProgressWatcher) Start(ctx context.Context) error {
	pw.mu.Lock()
	if pw.running {
		pw.mu.Unlock()
		return nil // Already running
	}
	pw.running = true
	pw.mu.Unlock()

	// The experiment creates the labeler directory on first write; create it
	// up front so there is something to watch before the session begins.
	if err := os.MkdirAll(pw.labelerDir, 0755); err != nil {
		logging.Get(logging.CategoryWatch).Warn("Failed to create %s: %v (continuing anyway)", pw.labelerDir, err)
	}

	if err := pw.watcher.Add(pw.labelerDir); err != nil {
		logging.Get(logging.CategoryWatch).Warn("Initial watch failed for %s: %v", pw.labelerDir, err)
	} else {
		logging.Watch("Watching directory: %s", pw.labelerDir)
	}

	go pw.run(ctx)

	return nil
}

// Stop stops the watcher, waits for the event loop to exit, and closes the
// updates channel. Safe to call more than once.
func (pw *ProgressWatcher) Stop() {
	pw.mu.Lock()
	if !pw.running {
		pw.mu.Unlock()
		return
	}
	pw.running = false
	pw.mu.Unlock()

	close(pw.stopCh)
	<-pw.doneCh

	if err := pw.watcher.Close(); err != nil {
		logging.WatchError("Error closing watcher: %v", err)
	}
	close(pw.updates)
	logging.Watch("Watcher stopped for %s", pw.labelerID)
}

// run is the main event loop.
func (pw *ProgressWatcher) run(ctx context.Context) {
	defer close(pw.doneCh)

	// The consumer gets the current state before any event arrives.
	pw.reload()

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watch("Watcher context cancelled")
			return

		case <-pw.stopCh:
			logging.WatchDebug("Watcher stop signal received")
			return

		case event, ok := <-pw.watcher.Events:
			if !ok {
				logging.WatchDebug("Watcher event channel closed")
				return
			}
			pw.handleEvent(event)

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				logging.WatchDebug("Watcher error channel closed")
				return
			}
			logging.WatchError("Watcher error: %v", err)
			pw.mu.Lock()
			pw.stats.Errors++
			pw.mu.Unlock()

		case <-debounceTicker.C:
			pw.processDebouncedEvents()
		}
	}
}

// handleEvent records a single filesystem event for debounced processing.
func (pw *ProgressWatcher) handleEvent(event fsnotify.Event) {
	// Only the experiment's output files matter: progress and results CSVs
	// and the practice flag.
	if !strings.HasSuffix(event.Name, ".csv") && !strings.HasSuffix(event.Name, ".txt") {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return // Ignore chmod, etc.
	}

	logging.WatchDebug("%s event for %s", eventType, event.Name)

	pw.mu.Lock()
	pw.stats.LastEventTime = time.Now()
	pw.stats.LastEventPath = event.Name
	pw.stats.LastEventType = eventType

	switch eventType {
	case "create":
		pw.stats.FilesCreated++
	case "modify":
		pw.stats.FilesModified++
	case "delete", "rename":
		pw.stats.FilesDeleted++
	}

	pw.debounceMap[event.Name] = time.Now()
	pw.mu.Unlock()
}

// processDebouncedEvents re-reads the session state once the recorded
// events have settled past the debounce window.
func (pw *ProgressWatcher) processDebouncedEvents() {
	pw.mu.Lock()
	now := time.Now()
	settled := 0

	for path, eventTime := range pw.debounceMap {
		if now.Sub(eventTime) >= pw.debounceDur {
			settled++
			delete(pw.debounceMap, path)
		}
	}
	pw.mu.Unlock()

	// One reload covers all settled files; the summary reads the whole
	// directory anyway.
	if settled > 0 {
		pw.reload()
	}
}

// reload rebuilds the session summary and publishes it.
func (pw *ProgressWatcher) reload() {
	sum, err := session.BuildSummary(pw.resultsDir, pw.randDir, pw.labelerID)
	if err != nil {
		logging.WatchError("Reload failed for %s: %v", pw.labelerID, err)
		pw.mu.Lock()
		pw.stats.Errors++
		pw.mu.Unlock()
		return
	}

	pw.mu.Lock()
	pw.stats.Reloads++
	pw.mu.Unlock()

	pw.publish(*sum)
}

// publish delivers a summary, replacing an unconsumed one so a slow reader
// always sees the latest state.
func (pw *ProgressWatcher) publish(sum session.Summary) {
	for {
		select {
		case pw.updates <- sum:
			return
		default:
			select {
			case <-pw.updates:
			default:
			}
		}
	}
}

// GetStats returns the current watcher statistics.
func (pw *ProgressWatcher) GetStats() Stats {
	pw.mu.RLock()
	defer pw.mu.RUnlock()
	return pw.stats
}

// IsWatching returns true while the event loop is running.
func (pw *ProgressWatcher) IsWatching() bool {
	pw.mu.RLock()
	defer pw.mu.RUnlock()
	return pw.running
}
