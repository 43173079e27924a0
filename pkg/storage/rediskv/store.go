package rediskv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/minierp-console/pkg/storage"
)

type stateClient interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	Del(context.Context, ...string) error
	StateKey(key string) string
}

// Store persists console state under namespaced Redis keys.
type Store struct {
	client stateClient
	ttl    time.Duration
}

func New(client stateClient, ttl time.Duration) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Store{client: client, ttl: ttl}, nil
}

var _ storage.KV = (*Store)(nil)

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.client.StateKey(key))
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load state %q: %w", key, err)
	}
	return []byte(value), nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.client.StateKey(key), string(value), s.ttl); err != nil {
		return fmt.Errorf("save state %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.client.StateKey(key)); err != nil {
		return fmt.Errorf("delete state %q: %w", key, err)
	}
	return nil
}
