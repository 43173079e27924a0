package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when no live value exists for a key.
var ErrNotFound = errors.New("state key not found")

// KV is the durable key/value surface used to persist console state.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type prefixed struct {
	prefix string
	next   KV
}

// WithPrefix namespaces every key written through next. Empty parts are skipped.
func WithPrefix(next KV, parts ...string) KV {
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}
	if len(clean) == 0 {
		return next
	}
	return &prefixed{prefix: strings.Join(clean, ":") + ":", next: next}
}

func (p *prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.next.Get(ctx, p.prefix+key)
}

func (p *prefixed) Put(ctx context.Context, key string, value []byte) error {
	return p.next.Put(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.next.Delete(ctx, p.prefix+key)
}
