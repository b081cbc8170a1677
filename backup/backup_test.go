package backup_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/c360studio/matchroom/backup"
	"github.com/c360studio/matchroom/config"
	"github.com/c360studio/matchroom/export"
	"github.com/c360studio/matchroom/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSeededStore(t *testing.T) *storage.Store {
	t.Helper()
	s := storage.NewStore(storage.NewMemoryBackend())
	room, err := s.Rooms.Create(context.Background(), storage.Room{Name: "Office"})
	require.NoError(t, err)
	_, err = s.Players.Create(context.Background(), storage.Player{RoomID: room.ID, Name: "Ann"})
	require.NoError(t, err)
	return s
}

type brokenDestination struct{}

func (brokenDestination) Name() string { return "broken" }

func (brokenDestination) Put(context.Context, string, []byte) (string, error) {
	return "", errors.New("no space left on device")
}

func TestRunnerWritesDirectory(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t)
	dir := filepath.Join(t.TempDir(), "backups")

	runner := backup.NewRunner(s, export.NewExporter(s, nil), export.FormatJSONZstd, nil, backup.NewDirDestination(dir))
	res, err := runner.Run(ctx)
	require.NoError(t, err)
	require.Len(t, res.Locations, 1)
	assert.Equal(t, filepath.Join(dir, res.FileName), res.Locations[0])
	assert.Equal(t, ".zst", filepath.Ext(res.FileName))

	info, err := os.Stat(res.Locations[0])
	require.NoError(t, err)
	assert.Equal(t, int64(res.Size), info.Size())

	last, err := s.LastBackup(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(res.At.Truncate(time.Second)), "lastBackup %v, backup at %v", last, res.At)

	restored := storage.NewStore(storage.NewMemoryBackend())
	report, err := export.NewExporter(restored, nil).ImportFile(ctx, res.Locations[0])
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rooms)
	assert.Equal(t, 1, report.Players)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestRunnerPartialFailure(t *testing.T) {
	ctx := context.Background()
	s := newSeededStore(t)
	dir := t.TempDir()

	runner := backup.NewRunner(s, export.NewExporter(s, nil), export.FormatJSON, nil,
		brokenDestination{}, backup.NewDirDestination(dir))
	res, err := runner.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	require.NotNil(t, res)
	assert.Len(t, res.Locations, 1, "healthy destinations are still written")

	last, err := s.LastBackup(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero(), "a failed backup is not recorded")
}

func TestRunnerWithoutDestinations(t *testing.T) {
	s := newSeededStore(t)
	_, err := backup.NewRunner(s, export.NewExporter(s, nil), export.FormatJSON, nil).Run(context.Background())
	assert.Error(t, err)
}

type recordedRequest struct {
	method      string
	path        string
	contentType string
	body        []byte
}

func TestS3Destination(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        body,
		})
		mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dest, err := backup.NewS3Destination(context.Background(), backup.S3Options{
		Bucket:          "scores",
		Prefix:          "matchroom",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "s3:scores", dest.Name())

	data := []byte(`{"version":1,"rooms":[]}`)
	loc, err := dest.Put(context.Background(), "matchroom-backup-2024-03-01.json", data)
	require.NoError(t, err)
	assert.Equal(t, "s3://scores/matchroom/matchroom-backup-2024-03-01.json", loc)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodPut, requests[0].method)
	assert.Equal(t, "/scores/matchroom/matchroom-backup-2024-03-01.json", requests[0].path)
	assert.Equal(t, "application/json", requests[0].contentType)
	assert.True(t, bytes.Contains(requests[0].body, data))
}

func TestS3DestinationRequiresBucket(t *testing.T) {
	_, err := backup.NewS3Destination(context.Background(), backup.S3Options{})
	assert.Error(t, err)
}

func TestScheduler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t.Run("runs immediately without a previous backup", func(t *testing.T) {
		s := newSeededStore(t)
		dir := t.TempDir()
		runner := backup.NewRunner(s, export.NewExporter(s, nil), export.FormatJSON, nil, backup.NewDirDestination(dir))

		sched, err := backup.NewScheduler(runner, time.Hour, nil)
		require.NoError(t, err)
		require.NoError(t, sched.Start(ctx))
		defer sched.Stop()

		require.Eventually(t, func() bool {
			last, err := s.LastBackup(ctx)
			return err == nil && !last.IsZero()
		}, 5*time.Second, 20*time.Millisecond)

		matches, err := filepath.Glob(filepath.Join(dir, "matchroom-backup-*.json"))
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("waits when the last backup is recent", func(t *testing.T) {
		s := newSeededStore(t)
		require.NoError(t, s.MarkBackup(ctx, time.Now()))
		dir := t.TempDir()
		runner := backup.NewRunner(s, export.NewExporter(s, nil), export.FormatJSON, nil, backup.NewDirDestination(dir))

		sched, err := backup.NewScheduler(runner, time.Hour, nil)
		require.NoError(t, err)
		require.NoError(t, sched.Start(ctx))

		time.Sleep(200 * time.Millisecond)
		require.NoError(t, sched.Stop())

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("rejects a zero interval", func(t *testing.T) {
		_, err := backup.NewScheduler(nil, 0, nil)
		assert.Error(t, err)
	})
}

func TestNewRunnerFromConfig(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	ctx := context.Background()
	s := newSeededStore(t)

	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Backup.Format = "json"

	dests, err := backup.Destinations(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, dests, 1)
	assert.Equal(t, "dir:"+cfg.BackupDir(), dests[0].Name())

	cfg.Backup.S3.Bucket = "scores"
	cfg.Backup.S3.Region = "us-east-1"
	cfg.Backup.S3.AccessKeyID = "key"
	cfg.Backup.S3.SecretAccessKey = "secret"
	dests, err = backup.Destinations(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, dests, 2)
	assert.Equal(t, "s3:scores", dests[1].Name())

	cfg.Backup.S3 = config.S3Config{}
	runner, err := backup.NewRunnerFromConfig(ctx, cfg, s, nil)
	require.NoError(t, err)
	res, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, ".json", filepath.Ext(res.FileName))
	assert.Equal(t, filepath.Join(cfg.BackupDir(), res.FileName), res.Locations[0])

	cfg.Backup.Format = "xml"
	_, err = backup.NewRunnerFromConfig(ctx, cfg, s, nil)
	assert.Error(t, err)
}
