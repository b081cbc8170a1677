package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const defaultBatchLimit = 8

// Store is the record store: typed tables over a Backend plus the
// cross-collection operations (cascade delete, summaries, settings).
type Store struct {
	backend    Backend
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time
	newID      func() string
	batchLimit int

	Rooms    *Table[Room]
	Players  *Table[Player]
	Matches  *Table[Match]
	Settings *Table[Setting]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics instruments every backend call.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithBatchLimit bounds how many sub-operations a batch runs at once.
func WithBatchLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchLimit = n
		}
	}
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:    backend,
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		newID:      NewID,
		batchLimit: defaultBatchLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Rooms = &Table[Room]{s: s, coll: CollectionRooms}
	s.Players = &Table[Player]{s: s, coll: CollectionPlayers}
	s.Matches = &Table[Match]{s: s, coll: CollectionMatches}
	s.Settings = &Table[Setting]{s: s, coll: CollectionSettings}
	return s
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time { return s.now() }

func (s *Store) observe(c Collection, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.observe(c, op, start, err)
	return err
}

// Table gives typed access to one collection.
type Table[T Record[T]] struct {
	s    *Store
	coll Collection
}

// Collection returns the collection the table reads and writes.
func (t *Table[T]) Collection() Collection { return t.coll }

// Create assigns a fresh id and timestamps, validates and inserts rec.
func (t *Table[T]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	rec = rec.create(t.s.newID(), t.s.now())
	if err := rec.Validate(); err != nil {
		return zero, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return zero, fmt.Errorf("marshal %s: %w", singular(t.coll), err)
	}

	err = t.s.observe(t.coll, "create", func() error {
		return t.s.backend.Create(ctx, t.coll, rec.Key(), data)
	})
	if err != nil {
		return zero, storageErr("create", t.coll, rec.Key(), err)
	}

	t.s.logger.Debug("Record created", "collection", t.coll, "id", rec.Key())
	return rec, nil
}

// Get returns the record with the given id. A missing record is reported
// through found, not as an error.
func (t *Table[T]) Get(ctx context.Context, id string) (rec T, found bool, err error) {
	var data []byte
	err = t.s.observe(t.coll, "get", func() error {
		var gerr error
		data, gerr = t.s.backend.Get(ctx, t.coll, id)
		return gerr
	})
	if errors.Is(err, ErrKeyNotFound) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, storageErr("get", t.coll, id, err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, false, storageErr("decode", t.coll, id, err)
	}
	return rec, true, nil
}

// MustGet is Get with a NotFoundError for a missing record.
func (t *Table[T]) MustGet(ctx context.Context, id string) (T, error) {
	rec, found, err := t.Get(ctx, id)
	if err != nil {
		return rec, err
	}
	if !found {
		return rec, &NotFoundError{Collection: t.coll, ID: id}
	}
	return rec, nil
}

// All returns every record in the collection. Order is unspecified.
func (t *Table[T]) All(ctx context.Context) ([]T, error) {
	var raw [][]byte
	err := t.s.observe(t.coll, "list", func() error {
		var lerr error
		raw, lerr = t.s.backend.List(ctx, t.coll)
		return lerr
	})
	if err != nil {
		return nil, storageErr("list", t.coll, "", err)
	}
	return t.decodeAll(raw)
}

// ByIndex returns the records whose secondary index field equals value.
func (t *Table[T]) ByIndex(ctx context.Context, field, value string) ([]T, error) {
	var zero T
	if _, ok := zero.IndexValue(field); !ok {
		return nil, invalid(t.coll, field, "not an indexed field")
	}

	if ix, ok := t.s.backend.(Indexer); ok {
		var raw [][]byte
		err := t.s.observe(t.coll, "lookup", func() error {
			var lerr error
			raw, lerr = ix.Lookup(ctx, t.coll, field, value)
			return lerr
		})
		if err != nil {
			return nil, storageErr("lookup", t.coll, "", err)
		}
		return t.decodeAll(raw)
	}

	all, err := t.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0)
	for _, rec := range all {
		if v, _ := rec.IndexValue(field); v == value {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Update reads the record named by the patch, applies it, refreshes the
// update timestamp and writes the merged record back.
func (t *Table[T]) Update(ctx context.Context, p Patch[T]) (T, error) {
	var zero T
	cur, err := t.MustGet(ctx, p.Target())
	if err != nil {
		return zero, err
	}

	merged := p.Apply(cur).touch(t.s.now())
	if err := merged.Validate(); err != nil {
		return zero, err
	}
	if err := t.write(ctx, "update", merged); err != nil {
		return zero, err
	}

	t.s.logger.Debug("Record updated", "collection", t.coll, "id", merged.Key())
	return merged, nil
}

// Put writes rec as-is, overwriting any record with the same id.
func (t *Table[T]) Put(ctx context.Context, rec T) error {
	if rec.Key() == "" {
		return invalid(t.coll, "id", "must not be empty")
	}
	return t.write(ctx, "put", rec)
}

func (t *Table[T]) write(ctx context.Context, op string, rec T) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", singular(t.coll), err)
	}
	err = t.s.observe(t.coll, op, func() error {
		return t.s.backend.Put(ctx, t.coll, rec.Key(), data)
	})
	return storageErr(op, t.coll, rec.Key(), err)
}

// Delete removes the record. Deleting a missing id succeeds.
func (t *Table[T]) Delete(ctx context.Context, id string) error {
	err := t.s.observe(t.coll, "delete", func() error {
		return t.s.backend.Delete(ctx, t.coll, id)
	})
	if err != nil {
		return storageErr("delete", t.coll, id, err)
	}
	t.s.logger.Debug("Record deleted", "collection", t.coll, "id", id)
	return nil
}

func (t *Table[T]) decodeAll(raw [][]byte) ([]T, error) {
	out := make([]T, 0, len(raw))
	for _, data := range raw {
		var rec T
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, storageErr("decode", t.coll, "", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func keysOf[T Record[T]](recs []T) []string {
	keys := make([]string, len(recs))
	for i, r := range recs {
		keys[i] = r.Key()
	}
	return keys
}
