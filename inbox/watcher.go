// Package inbox watches a directory for dropped bundle files and imports
// them into the store.
package inbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

const (
	// eventChannelBuffer is the size of the watch event channel.
	eventChannelBuffer = 100

	defaultDebounce = 500 * time.Millisecond
)

// Config configures the inbox watcher.
type Config struct {
	// Dir is the watched directory.
	Dir string
	// Patterns select files by their slash-separated path relative to Dir.
	Patterns []string
	// DebounceDelay is how long to collect changes before emitting events.
	DebounceDelay time.Duration
}

func (c Config) debounce() time.Duration {
	if c.DebounceDelay <= 0 {
		return defaultDebounce
	}
	return c.DebounceDelay
}

// Operation indicates the type of file change.
type Operation string

const (
	OpCreate Operation = "create"
	OpModify Operation = "modify"
)

// Event reports a matching file whose content is new.
type Event struct {
	// Path is relative to the inbox directory.
	Path string
	// AbsPath is the absolute file path.
	AbsPath   string
	Operation Operation
	Hash      string
}

// Watcher emits an Event for every matching file that appears or changes.
// Files whose content hash was already seen are skipped.
type Watcher struct {
	config  Config
	dir     string
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	hashMu sync.RWMutex
	hashes map[string]string

	events        chan Event
	droppedEvents atomic.Int64
}

// NewWatcher creates a watcher for config.Dir.
func NewWatcher(config Config, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	dir, err := filepath.Abs(config.Dir)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	if len(config.Patterns) == 0 {
		config.Patterns = []string{"*.json", "*.json.zst"}
	}

	return &Watcher{
		config:  config,
		dir:     dir,
		watcher: fsw,
		logger:  logger,
		pending: make(map[string]fsnotify.Op),
		hashes:  make(map[string]string),
		events:  make(chan Event, eventChannelBuffer),
	}, nil
}

// Dir returns the absolute inbox directory.
func (w *Watcher) Dir() string { return w.dir }

// Events returns the channel of watch events. It is closed when the
// watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins watching. The directory is created if missing.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}
	if err := w.addWatchesRecursive(w.dir); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Inbox watcher started",
		"dir", w.dir,
		"debounce", w.config.debounce(),
		"patterns", w.config.Patterns)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// Matches reports whether a path relative to the inbox is an inbox file.
// Anything under a hidden directory, and hidden files, never match.
func (w *Watcher) Matches(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	for _, p := range w.config.Patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Scan returns the absolute paths of matching files already in the inbox.
func (w *Watcher) Scan() ([]string, error) {
	fsys := os.DirFS(w.dir)
	seen := make(map[string]bool)
	var out []string
	for _, p := range w.config.Patterns {
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if seen[m] || !w.Matches(m) {
				continue
			}
			seen[m] = true
			out = append(out, filepath.Join(w.dir, filepath.FromSlash(m)))
		}
	}
	return out, nil
}

// SetHash records the content hash for a file.
func (w *Watcher) SetHash(rel, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[rel] = hash
}

// GetHash returns the recorded hash for a file.
func (w *Watcher) GetHash(rel string) (string, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	hash, ok := w.hashes[rel]
	return hash, ok
}

// ContentHash returns the hex SHA-256 of content.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory",
				"path", path,
				"error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}
		return nil
	})
}

// processEvents handles fsnotify events with debouncing.
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.config.debounce())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
	}
	if !w.Matches(rel) {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] |= event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("Inbox change detected",
		"path", rel,
		"op", event.Op.String())
}

func (w *Watcher) handleNewDirectory(path string) {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}
	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("Failed to watch new directory",
			"path", path,
			"error", err)
	} else {
		w.logger.Debug("Added watch for new directory", "path", path)
	}
}

// flushPending emits events for accumulated changes whose content is new.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path, op := range toProcess {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rel, _ := filepath.Rel(w.dir, path)

		content, err := os.ReadFile(path)
		if err != nil {
			// Removed or renamed away before the flush.
			w.hashMu.Lock()
			delete(w.hashes, rel)
			w.hashMu.Unlock()
			continue
		}

		hash := ContentHash(content)
		oldHash, hadHash := w.GetHash(rel)
		if hadHash && oldHash == hash {
			continue
		}
		w.SetHash(rel, hash)

		event := Event{Path: rel, AbsPath: path, Hash: hash, Operation: OpModify}
		if op.Has(fsnotify.Create) || !hadHash {
			event.Operation = OpCreate
		}
		w.sendEvent(event)
	}
}

func (w *Watcher) sendEvent(event Event) {
	select {
	case w.events <- event:
		w.logger.Debug("Sent inbox event",
			"path", event.Path,
			"op", event.Operation)
	default:
		dropped := w.droppedEvents.Add(1)
		w.logger.Warn("Event channel full, dropping event",
			"path", event.Path,
			"total_dropped", dropped)
	}
}

// DroppedEvents returns the number of events dropped due to channel overflow.
func (w *Watcher) DroppedEvents() int64 {
	return w.droppedEvents.Load()
}
