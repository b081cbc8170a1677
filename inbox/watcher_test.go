package inbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, patterns ...string) *Watcher {
	t.Helper()
	w, err := NewWatcher(Config{Dir: t.TempDir(), Patterns: patterns, DebounceDelay: 50 * time.Millisecond}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcherMatches(t *testing.T) {
	w := newTestWatcher(t, "*.json", "**/*.json.zst")

	tests := []struct {
		rel  string
		want bool
	}{
		{"bundle.json", true},
		{"nested/bundle.json", false},
		{"bundle.json.zst", true},
		{"nested/deeper/bundle.json.zst", true},
		{"bundle.txt", false},
		{".hidden.json", false},
		{".imported/bundle.json", false},
		{"nested/.failed/bundle.json.zst", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Matches(tt.rel))
		})
	}
}

func TestWatcherDefaultPatterns(t *testing.T) {
	w := newTestWatcher(t)
	assert.True(t, w.Matches("a.json"))
	assert.True(t, w.Matches("a.json.zst"))
	assert.False(t, w.Matches("a.yaml"))
}

func TestWatcherScan(t *testing.T) {
	w := newTestWatcher(t, "*.json", "**/*.json")
	for _, rel := range []string{"a.json", "sub/b.json", ".imported/c.json", "d.txt"} {
		path := filepath.Join(w.Dir(), rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))
	}

	got, err := w.Scan()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(w.Dir(), "a.json"),
		filepath.Join(w.Dir(), "sub", "b.json"),
	}, got)
}

func TestWatcherSkipsUnchangedContent(t *testing.T) {
	ctx := context.Background()
	w := newTestWatcher(t, "*.json")
	path := filepath.Join(w.Dir(), "a.json")

	next := func() (Event, bool) {
		select {
		case ev := <-w.events:
			return ev, true
		default:
			return Event{}, false
		}
	}

	require.NoError(t, os.WriteFile(path, []byte(`{"v":1}`), 0644))
	w.handleFSEvent(fsnotify.Event{Name: path, Op: fsnotify.Create})
	w.handleFSEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.flushPending(ctx)

	ev, ok := next()
	require.True(t, ok)
	assert.Equal(t, OpCreate, ev.Operation)
	assert.Equal(t, "a.json", ev.Path)
	assert.Equal(t, ContentHash([]byte(`{"v":1}`)), ev.Hash)
	_, ok = next()
	assert.False(t, ok, "create and write collapse into one event")

	w.handleFSEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.flushPending(ctx)
	_, ok = next()
	assert.False(t, ok, "same content is not reported twice")

	require.NoError(t, os.WriteFile(path, []byte(`{"v":2}`), 0644))
	w.handleFSEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.flushPending(ctx)
	ev, ok = next()
	require.True(t, ok)
	assert.Equal(t, OpModify, ev.Operation)

	require.NoError(t, os.Remove(path))
	w.handleFSEvent(fsnotify.Event{Name: path, Op: fsnotify.Remove})
	w.flushPending(ctx)
	_, ok = next()
	assert.False(t, ok)
	_, known := w.GetHash("a.json")
	assert.False(t, known, "removed files are forgotten")
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	w := newTestWatcher(t, "*.json")
	w.handleFSEvent(fsnotify.Event{Name: filepath.Join(w.Dir(), "notes.txt"), Op: fsnotify.Create})
	w.handleFSEvent(fsnotify.Event{Name: filepath.Join(w.Dir(), ".tmp-a.json"), Op: fsnotify.Create})
	assert.Empty(t, w.pending)
}

func TestWatcherDetectsFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := newTestWatcher(t, "*.json")
	require.NoError(t, w.Start(ctx))

	tmp := filepath.Join(t.TempDir(), "drop.json")
	require.NoError(t, os.WriteFile(tmp, []byte(`{}`), 0644))
	require.NoError(t, os.Rename(tmp, filepath.Join(w.Dir(), "drop.json")))

	select {
	case ev := <-w.Events():
		assert.Equal(t, "drop.json", ev.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no event for dropped file")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-w.Events():
			return !open
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "events channel closes after cancel")
}
