package cron

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = time.Hour

// Lock decides which instance runs a maintenance cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is shared by every replica; the SETNX winner runs the cycle.
// Each lock carries its own token so a replica never frees another's hold,
// and the TTL frees the key if the holder dies mid-cycle.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	token string
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl, token: uuid.NewString()}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	won, err := l.store.SetNX(ctx, l.key, l.token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	return won, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	if _, err := l.store.DelIfValue(ctx, l.key, l.token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}

// LocalLock keeps cycles of one process from overlapping. It is the lock for
// jobs whose effect is per process, and the fallback when Redis is absent.
type LocalLock struct {
	held atomic.Bool
}

func (l *LocalLock) Acquire(context.Context) (bool, error) {
	return l.held.CompareAndSwap(false, true), nil
}

func (l *LocalLock) Release(context.Context) error {
	l.held.Store(false)
	return nil
}
