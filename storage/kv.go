package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// BucketPrefix prefixes every JetStream KV bucket name.
const BucketPrefix = "MATCHROOM_"

// BucketName returns the KV bucket backing a collection.
func BucketName(c Collection) string {
	return BucketPrefix + strings.ToUpper(string(c))
}

// KVBackend stores each collection in its own NATS JetStream KV bucket.
// The JetStream connection is owned by the caller.
type KVBackend struct {
	buckets map[Collection]jetstream.KeyValue
}

var _ Backend = (*KVBackend)(nil)

// NewKVBackend opens the collection buckets, creating the ones that don't
// exist yet.
func NewKVBackend(ctx context.Context, js jetstream.JetStream) (*KVBackend, error) {
	buckets := make(map[Collection]jetstream.KeyValue, len(Collections))
	for _, c := range Collections {
		kv, err := getOrCreateBucket(ctx, js, BucketName(c))
		if err != nil {
			return nil, fmt.Errorf("create %s bucket: %w", c, err)
		}
		buckets[c] = kv
	}
	return &KVBackend{buckets: buckets}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, err
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Matchroom %s storage", strings.ToLower(strings.TrimPrefix(name, BucketPrefix))),
		History:     1,
		Storage:     jetstream.FileStorage,
	})
}

// kvKey maps a record id onto the KV key alphabet. Ids are free-form
// strings while KV keys are limited to [-/_=.a-zA-Z0-9].
func kvKey(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

func (b *KVBackend) bucket(c Collection) (jetstream.KeyValue, error) {
	kv, ok := b.buckets[c]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	return kv, nil
}

func (b *KVBackend) Create(ctx context.Context, c Collection, key string, value []byte) error {
	kv, err := b.bucket(c)
	if err != nil {
		return err
	}
	if _, err := kv.Create(ctx, kvKey(key), value); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return ErrKeyExists
		}
		return err
	}
	return nil
}

func (b *KVBackend) Put(ctx context.Context, c Collection, key string, value []byte) error {
	kv, err := b.bucket(c)
	if err != nil {
		return err
	}
	_, err = kv.Put(ctx, kvKey(key), value)
	return err
}

func (b *KVBackend) Get(ctx context.Context, c Collection, key string) ([]byte, error) {
	kv, err := b.bucket(c)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrKeyNotFound
	}
	entry, err := kv.Get(ctx, kvKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return entry.Value(), nil
}

func (b *KVBackend) Delete(ctx context.Context, c Collection, key string) error {
	kv, err := b.bucket(c)
	if err != nil {
		return err
	}
	if key == "" {
		return nil
	}
	if err := kv.Delete(ctx, kvKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return err
	}
	return nil
}

// List scans every key of the bucket. Entries deleted between the key scan
// and the read are skipped.
func (b *KVBackend) List(ctx context.Context, c Collection) ([][]byte, error) {
	kv, err := b.bucket(c)
	if err != nil {
		return nil, err
	}
	keys, err := kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s keys: %w", c, err)
	}

	values := make([][]byte, 0, len(keys))
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("get %s/%s: %w", c, key, err)
		}
		values = append(values, entry.Value())
	}
	return values, nil
}

func (b *KVBackend) Close() error { return nil }
