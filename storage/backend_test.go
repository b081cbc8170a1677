package storage

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startJetStream runs an embedded JetStream server for the duration of the test.
func startJetStream(t *testing.T) jetstream.JetStream {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server failed to start")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)
	return js
}

func newBackends(t *testing.T) map[string]Backend {
	t.Helper()
	ctx := context.Background()

	sqlBackend, err := OpenSQL(DriverSQLite, filepath.Join(t.TempDir(), "matchroom.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlBackend.Close() })

	kvBackend, err := NewKVBackend(ctx, startJetStream(t))
	require.NoError(t, err)

	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"sqlite": sqlBackend,
		"nats":   kvBackend,
	}
}

func TestBackendContract(t *testing.T) {
	for name, b := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("create then get", func(t *testing.T) {
				require.NoError(t, b.Create(ctx, CollectionRooms, "r1", []byte(`{"id":"r1","name":"Office"}`)))
				got, err := b.Get(ctx, CollectionRooms, "r1")
				require.NoError(t, err)
				assert.JSONEq(t, `{"id":"r1","name":"Office"}`, string(got))
			})

			t.Run("create rejects existing key", func(t *testing.T) {
				err := b.Create(ctx, CollectionRooms, "r1", []byte(`{"id":"r1","name":"Other"}`))
				assert.ErrorIs(t, err, ErrKeyExists)
			})

			t.Run("put overwrites", func(t *testing.T) {
				require.NoError(t, b.Put(ctx, CollectionRooms, "r1", []byte(`{"id":"r1","name":"Renamed"}`)))
				got, err := b.Get(ctx, CollectionRooms, "r1")
				require.NoError(t, err)
				assert.JSONEq(t, `{"id":"r1","name":"Renamed"}`, string(got))
			})

			t.Run("get missing key", func(t *testing.T) {
				_, err := b.Get(ctx, CollectionRooms, "missing")
				assert.ErrorIs(t, err, ErrKeyNotFound)
			})

			t.Run("collections are isolated", func(t *testing.T) {
				_, err := b.Get(ctx, CollectionPlayers, "r1")
				assert.ErrorIs(t, err, ErrKeyNotFound)
			})

			t.Run("list", func(t *testing.T) {
				require.NoError(t, b.Put(ctx, CollectionPlayers, "p1", []byte(`{"id":"p1","roomId":"r1","name":"Ann"}`)))
				require.NoError(t, b.Put(ctx, CollectionPlayers, "p2", []byte(`{"id":"p2","roomId":"r2","name":"Bob"}`)))
				values, err := b.List(ctx, CollectionPlayers)
				require.NoError(t, err)
				assert.Len(t, values, 2)

				empty, err := b.List(ctx, CollectionSettings)
				require.NoError(t, err)
				assert.Empty(t, empty)
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				require.NoError(t, b.Delete(ctx, CollectionPlayers, "p2"))
				require.NoError(t, b.Delete(ctx, CollectionPlayers, "p2"))
				_, err := b.Get(ctx, CollectionPlayers, "p2")
				assert.ErrorIs(t, err, ErrKeyNotFound)

				values, err := b.List(ctx, CollectionPlayers)
				require.NoError(t, err)
				assert.Len(t, values, 1)
			})

			t.Run("create after delete", func(t *testing.T) {
				require.NoError(t, b.Create(ctx, CollectionPlayers, "p2", []byte(`{"id":"p2","roomId":"r1","name":"Bo"}`)))
			})

			t.Run("free-form keys", func(t *testing.T) {
				const key = "room one:é"
				require.NoError(t, b.Create(ctx, CollectionRooms, key, []byte(`{"id":"x","name":"One"}`)))
				got, err := b.Get(ctx, CollectionRooms, key)
				require.NoError(t, err)
				assert.JSONEq(t, `{"id":"x","name":"One"}`, string(got))

				require.NoError(t, b.Put(ctx, CollectionRooms, key, []byte(`{"id":"x","name":"Uno"}`)))
				require.NoError(t, b.Delete(ctx, CollectionRooms, key))
				_, err = b.Get(ctx, CollectionRooms, key)
				assert.ErrorIs(t, err, ErrKeyNotFound)
			})

			t.Run("lookup by a name with spaces", func(t *testing.T) {
				_, err := b.Get(ctx, CollectionRooms, "Office League")
				assert.ErrorIs(t, err, ErrKeyNotFound)
				assert.NoError(t, b.Delete(ctx, CollectionRooms, "Office League"))
			})
		})
	}
}

func TestSQLBackendLookup(t *testing.T) {
	ctx := context.Background()
	b, err := OpenSQL(DriverSQLite, filepath.Join(t.TempDir(), "matchroom.db"))
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Put(ctx, CollectionMatches, "m1", []byte(`{"id":"m1","roomId":"r1","player1Id":"a","player2Id":"b","winnerId":"a"}`)))
	require.NoError(t, b.Put(ctx, CollectionMatches, "m2", []byte(`{"id":"m2","roomId":"r1","player1Id":"b","player2Id":"c","winnerId":"c"}`)))
	require.NoError(t, b.Put(ctx, CollectionMatches, "m3", []byte(`{"id":"m3","roomId":"r2","player1Id":"a","player2Id":"c","winnerId":"a"}`)))

	tests := []struct {
		field string
		value string
		want  int
	}{
		{FieldRoomID, "r1", 2},
		{FieldPlayer1ID, "a", 2},
		{FieldPlayer2ID, "c", 2},
		{FieldWinnerID, "c", 1},
		{FieldRoomID, "nope", 0},
	}
	for _, tt := range tests {
		t.Run(tt.field+"="+tt.value, func(t *testing.T) {
			got, err := b.Lookup(ctx, CollectionMatches, tt.field, tt.value)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	t.Run("overwrite moves index", func(t *testing.T) {
		require.NoError(t, b.Put(ctx, CollectionMatches, "m3", []byte(`{"id":"m3","roomId":"r1","player1Id":"a","player2Id":"c","winnerId":"a"}`)))
		got, err := b.Lookup(ctx, CollectionMatches, FieldRoomID, "r1")
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := b.Lookup(ctx, CollectionMatches, "notes", "x")
		assert.Error(t, err)
	})
}

func TestOpenSQLUnknownDriver(t *testing.T) {
	_, err := OpenSQL("oracle", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported sql driver")
}

func TestBucketName(t *testing.T) {
	assert.Equal(t, "MATCHROOM_ROOMS", BucketName(CollectionRooms))
	assert.Equal(t, "MATCHROOM_SETTINGS", BucketName(CollectionSettings))
}

func TestKVKeyAlphabet(t *testing.T) {
	valid := regexp.MustCompile(`^[-/_=.a-zA-Z0-9]+$`)
	for _, id := range []string{"r1", "Office League", "room one:é", "a/b", "*", ">"} {
		key := kvKey(id)
		assert.Regexp(t, valid, key, "id %q", id)
		assert.NotEqual(t, kvKey(id+"x"), key)
	}
}
