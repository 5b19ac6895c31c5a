package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/hupe1980/postings/blobstore"
)

// Client is the subset of the go-redis API used by Store. *redis.Client,
// *redis.ClusterClient and redis.UniversalClient satisfy it.
type Client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *goredis.ScanCmd
}

var _ Client = (*goredis.Client)(nil)

const scanCount = 100

// Store implements blobstore.ConditionalStore on Redis.
type Store struct {
	client Client
	prefix string
	ttl    time.Duration
}

var _ blobstore.ConditionalStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTTL expires blobs after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// NewStore creates a store writing keys below prefix.
func NewStore(client Client, prefix string, opts ...Option) *Store {
	s := &Store{client: client, prefix: prefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(name string) string { return s.prefix + name }

// Open fetches the value of the key.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	data, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, blobstore.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get %s: %w", name, err)
	}
	return blobstore.NewBytesBlob(data), nil
}

// Put sets the key.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	if err := s.client.Set(ctx, s.key(name), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", name, err)
	}
	return nil
}

// PutIfAbsent sets the key with SETNX.
func (s *Store) PutIfAbsent(ctx context.Context, name string, data []byte) error {
	ok, err := s.client.SetNX(ctx, s.key(name), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: setnx %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("redis: %s: %w", name, blobstore.ErrExists)
	}
	return nil
}

// Delete removes the key.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, s.key(name)).Err(); err != nil {
		return fmt.Errorf("redis: del %s: %w", name, err)
	}
	return nil
}

// List scans for keys below the prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(s.prefix+prefix) + "*"
	var names []string
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: scan %s: %w", match, err)
		}
		for _, k := range keys {
			names = append(names, strings.TrimPrefix(k, s.prefix))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
