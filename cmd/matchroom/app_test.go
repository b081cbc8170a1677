package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/matchroom/config"
	"github.com/c360studio/matchroom/storage"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = backend
	cfg.Storage.DataDir = t.TempDir()
	return cfg
}

func createAndReopen(t *testing.T, cfg *config.Config) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app := NewApp(cfg, nil)
	store, err := app.Store(ctx)
	require.NoError(t, err)
	room, err := store.Rooms.Create(ctx, storage.Room{Name: "Office"})
	require.NoError(t, err)
	app.Shutdown()

	reopened := NewApp(cfg, nil)
	defer reopened.Shutdown()
	store, err = reopened.Store(ctx)
	require.NoError(t, err)
	got, err := store.Rooms.MustGet(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "Office", got.Name)
}

func TestAppEmbeddedNATS(t *testing.T) {
	cfg := testConfig(t, config.BackendNATS)

	app := NewApp(cfg, nil)
	_, err := app.Store(context.Background())
	require.NoError(t, err)
	if app.natsConn == nil {
		t.Error("NATS connection not initialized")
	}
	if app.embeddedServer == nil {
		t.Error("Embedded NATS server not started")
	}
	app.Shutdown()
	if app.natsConn != nil || app.embeddedServer != nil {
		t.Error("NATS not cleaned up after shutdown")
	}

	createAndReopen(t, cfg)
}

func TestAppSQLite(t *testing.T) {
	cfg := testConfig(t, config.BackendSQL)
	createAndReopen(t, cfg)

	_, err := os.Stat(cfg.SQLDSN())
	assert.NoError(t, err, "sqlite file lives in the data dir")
}

func TestAppStoreIsOpenedOnce(t *testing.T) {
	app := NewApp(testConfig(t, config.BackendMemory), nil)
	defer app.Shutdown()

	a, err := app.Store(context.Background())
	require.NoError(t, err)
	b, err := app.Store(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestAppUnreachableNATS(t *testing.T) {
	cfg := testConfig(t, config.BackendNATS)
	cfg.Storage.NATS.URL = "nats://127.0.0.1:1"
	cfg.Storage.NATS.Embedded = false

	app := NewApp(cfg, nil)
	defer app.Shutdown()
	_, err := app.Store(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NATS connection failed")
}

func TestWrapNATSError(t *testing.T) {
	err := wrapNATSError(errors.New("dial tcp: connection refused"), "nats://localhost:4222")
	assert.Contains(t, err.Error(), "NATS is not running at nats://localhost:4222")

	err = wrapNATSError(errors.New("authorization violation"), "nats://localhost:4222")
	assert.Equal(t, "NATS connection failed: authorization violation", err.Error())
}

// execute runs the binary's root command in-process.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, app := rootCmd()
	defer app.Shutdown()

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// isolate keeps user and project config files out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func TestRootVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "matchroom version 0.1.0 (build: dev)\n", out)
}

func TestRootPersistsWithSQL(t *testing.T) {
	isolate(t)
	dataDir := t.TempDir()
	flags := []string{"--backend", "sql", "--data-dir", dataDir, "--log-level", "error"}

	_, err := execute(t, append(flags, "room", "create", "Office")...)
	require.NoError(t, err)
	_, err = execute(t, append(flags, "player", "add", "Ann")...)
	require.NoError(t, err)

	out, err := execute(t, append(flags, "player", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Ann")
}

func TestRootRejectsUnknownBackend(t *testing.T) {
	isolate(t)
	_, err := execute(t, "--backend", "floppy", "room", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
}

func TestRootWritesMetrics(t *testing.T) {
	isolate(t)
	metricsFile := filepath.Join(t.TempDir(), "matchroom.prom")

	_, err := execute(t, "--backend", "memory", "--metrics-file", metricsFile, "room", "create", "Office")
	require.NoError(t, err)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "matchroom_store_operations_total"))
}

func TestConfigShowMasksSecrets(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(config.ProjectConfigFile, []byte(`
backup:
  s3:
    bucket: scores
    access_key_id: key
    secret_access_key: hunter2
`), 0644))

	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "bucket: scores")
	assert.NotContains(t, out, "hunter2")
}

func TestConfigInit(t *testing.T) {
	isolate(t)
	out, err := execute(t, "config", "init")
	require.NoError(t, err)

	path := strings.TrimSpace(out)
	_, err = os.Stat(path)
	require.NoError(t, err)
	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.BackendNATS, cfg.Storage.Backend)
}
