package storage

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// BatchItem is the outcome of one sub-operation of a batch.
type BatchItem struct {
	Collection Collection
	Key        string
	Err        error
}

// BatchResult collects per-item outcomes. A failed item never cancels or
// undoes its siblings; the caller decides what a partial failure means.
type BatchResult struct {
	Items []BatchItem
}

// Succeeded counts the items that completed without error.
func (r *BatchResult) Succeeded() int {
	n := 0
	for _, it := range r.Items {
		if it.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the items that failed.
func (r *BatchResult) Failed() []BatchItem {
	var out []BatchItem
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// Err joins every item error, or returns nil when all items succeeded.
func (r *BatchResult) Err() error {
	var errs []error
	for _, it := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s/%s: %w", it.Collection, it.Key, it.Err))
	}
	return errors.Join(errs...)
}

// Merge appends other's items.
func (r *BatchResult) Merge(other *BatchResult) {
	if other != nil {
		r.Items = append(r.Items, other.Items...)
	}
}

// RunBatch runs fn for every key with bounded concurrency and waits for all
// of them. Items keep the order of keys.
func (s *Store) RunBatch(ctx context.Context, c Collection, keys []string, fn func(ctx context.Context, key string) error) *BatchResult {
	items := make([]BatchItem, len(keys))

	var g errgroup.Group
	g.SetLimit(s.batchLimit)
	for i, key := range keys {
		g.Go(func() error {
			items[i] = BatchItem{Collection: c, Key: key, Err: fn(ctx, key)}
			return nil
		})
	}
	_ = g.Wait()

	return &BatchResult{Items: items}
}

// PutAll upserts recs as a batch.
func PutAll[T Record[T]](ctx context.Context, t *Table[T], recs []T) *BatchResult {
	byKey := make(map[string]T, len(recs))
	keys := make([]string, 0, len(recs))
	for _, rec := range recs {
		if _, dup := byKey[rec.Key()]; !dup {
			keys = append(keys, rec.Key())
		}
		byKey[rec.Key()] = rec
	}
	return t.s.RunBatch(ctx, t.coll, keys, func(ctx context.Context, key string) error {
		return t.Put(ctx, byKey[key])
	})
}

// DeleteAll deletes ids as a batch.
func DeleteAll[T Record[T]](ctx context.Context, t *Table[T], ids []string) *BatchResult {
	return t.s.RunBatch(ctx, t.coll, ids, t.Delete)
}
