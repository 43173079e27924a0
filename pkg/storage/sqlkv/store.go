package sqlkv

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/minierp-console/pkg/db"
	"github.com/angelmondragon/minierp-console/pkg/db/models"
	"github.com/angelmondragon/minierp-console/pkg/storage"
)

// Store persists console state in the client_state table.
type Store struct {
	conn *gorm.DB
	ttl  time.Duration
	now  func() time.Time
}

// Option configures optional store behavior.
type Option func(*Store)

// WithTTL sets the lifetime of written entries. Zero keeps entries forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(conn *gorm.DB, opts ...Option) (*Store, error) {
	if conn == nil {
		return nil, fmt.Errorf("db connection is required")
	}
	s := &Store{conn: conn, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

var _ storage.KV = (*Store)(nil)

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var row models.ClientState
	err := s.conn.WithContext(ctx).
		Where("state_key = ?", key).
		Take(&row).Error
	if db.IsRecordNotFound(err) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load state %q: %w", key, err)
	}
	if !row.Live(s.now()) {
		return nil, storage.ErrNotFound
	}
	return []byte(row.Value), nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	now := s.now().UTC()
	row := models.ClientState{
		StateKey:  key,
		Value:     string(value),
		UpdatedAt: now,
	}
	if s.ttl > 0 {
		expires := now.Add(s.ttl)
		row.ExpiresAt = &expires
	}
	err := s.conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "state_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save state %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.conn.WithContext(ctx).
		Where("state_key = ?", key).
		Delete(&models.ClientState{}).Error
	if err != nil {
		return fmt.Errorf("delete state %q: %w", key, err)
	}
	return nil
}

// PurgeExpired removes entries whose TTL has lapsed and returns how many went.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.conn.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now().UTC()).
		Delete(&models.ClientState{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge expired state: %w", res.Error)
	}
	return res.RowsAffected, nil
}
