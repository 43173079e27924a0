package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/angelmondragon/minierp-console/internal/gateway"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
	"github.com/angelmondragon/minierp-console/pkg/storage"
	"github.com/shopspring/decimal"
)

// Listener observes cart changes.
type Listener func(ctx context.Context, snap Snapshot)

type persisted struct {
	Lines []Line `json:"lines"`
}

// Store holds the cart of the active identity of one console profile. Each
// identity (and the guest) has its own persisted cart. Storage is the source
// of truth: every read and mutation reloads it, so replicas sharing one
// backend see each other's lines.
type Store struct {
	kv   storage.KV
	logg *logger.Logger

	mu        sync.Mutex
	owner     string
	lines     []Line
	loaded    bool
	listeners map[int]Listener
	nextID    int
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(logg *logger.Logger) Option {
	return func(s *Store) {
		s.logg = logg
	}
}

// NewStore starts on the guest cart.
func NewStore(kv storage.KV, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		owner:     GuestOwner,
		listeners: map[int]Listener{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Subscribe registers fn for every cart change and returns its cancel func.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Owner is the identity the cart is currently scoped to.
func (s *Store) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// SwitchOwner scopes the cart to username (blank for guest) and loads its
// persisted lines.
func (s *Store) SwitchOwner(ctx context.Context, username string) error {
	s.mu.Lock()
	owner := ownerFor(username)
	if s.loaded && owner == s.owner {
		s.mu.Unlock()
		return nil
	}
	s.owner = owner
	s.loaded = false
	s.lines = nil
	err := s.loadLocked(ctx)
	snap := s.snapshotLocked()
	listeners := s.listenersLocked()
	s.mu.Unlock()

	if err != nil {
		return err
	}
	notify(ctx, listeners, snap)
	return nil
}

// Add puts product in the cart, merging with an existing line. The ceiling
// is refreshed to the product's live stock.
func (s *Store) Add(ctx context.Context, product gateway.Product, qty int) (Snapshot, error) {
	if product.ID <= 0 {
		return Snapshot{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if product.QtyInStock <= 0 {
		return Snapshot{}, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is out of stock", displayName(product)).
			WithDetails(map[string]any{"product_id": product.ID, "stock": product.QtyInStock})
	}
	if qty < 1 {
		qty = 1
	}

	return s.mutate(ctx, func(lines []Line) ([]Line, error) {
		for i, line := range lines {
			if line.ProductID != product.ID {
				continue
			}
			line.Name = product.Name
			line.UnitPrice = product.Price
			line.StockCeiling = product.QtyInStock
			line.Quantity = clamp(line.Quantity+qty, line.StockCeiling)
			lines[i] = line
			return lines, nil
		}
		return append(lines, Line{
			ProductID:    product.ID,
			Name:         product.Name,
			UnitPrice:    product.Price,
			Quantity:     clamp(qty, product.QtyInStock),
			StockCeiling: product.QtyInStock,
		}), nil
	})
}

// SetQuantity sets a line from raw user input, clamped into [1, ceiling].
func (s *Store) SetQuantity(ctx context.Context, productID int64, raw string) (Snapshot, error) {
	return s.updateLine(ctx, productID, func(line Line) int {
		return parseQuantity(raw, line.StockCeiling)
	})
}

// Increment adds one unit, never past the ceiling.
func (s *Store) Increment(ctx context.Context, productID int64) (Snapshot, error) {
	return s.updateLine(ctx, productID, func(line Line) int {
		return clamp(line.Quantity+1, line.StockCeiling)
	})
}

// Decrement removes one unit, never below one.
func (s *Store) Decrement(ctx context.Context, productID int64) (Snapshot, error) {
	return s.updateLine(ctx, productID, func(line Line) int {
		return clamp(line.Quantity-1, line.StockCeiling)
	})
}

// Remove deletes a line. Removing an absent product is not an error.
func (s *Store) Remove(ctx context.Context, productID int64) (Snapshot, error) {
	return s.mutate(ctx, func(lines []Line) ([]Line, error) {
		out := lines[:0]
		for _, line := range lines {
			if line.ProductID != productID {
				out = append(out, line)
			}
		}
		return out, nil
	})
}

// Clear empties the cart of the current owner.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.mutate(ctx, func([]Line) ([]Line, error) {
		return nil, nil
	})
	return err
}

// Snapshot returns the lines and the freshly computed total.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx); err != nil {
		return Snapshot{}, err
	}
	return s.snapshotLocked(), nil
}

// Lines returns a copy of the cart lines.
func (s *Store) Lines(ctx context.Context) ([]Line, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Lines, nil
}

// Total is the exact sum of price x quantity.
func (s *Store) Total(ctx context.Context) (decimal.Decimal, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.Total, nil
}

func (s *Store) updateLine(ctx context.Context, productID int64, next func(Line) int) (Snapshot, error) {
	return s.mutate(ctx, func(lines []Line) ([]Line, error) {
		for i, line := range lines {
			if line.ProductID == productID {
				lines[i].Quantity = next(line)
				return lines, nil
			}
		}
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %d is not in the cart", productID)
	})
}

// mutate applies fn to a copy of the lines and only installs the result once
// it has been persisted.
func (s *Store) mutate(ctx context.Context, fn func([]Line) ([]Line, error)) (Snapshot, error) {
	s.mu.Lock()
	if err := s.loadLocked(ctx); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}

	working := make([]Line, len(s.lines))
	copy(working, s.lines)
	next, err := fn(working)
	if err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	if err := s.persistLocked(ctx, next); err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	s.lines = next
	snap := s.snapshotLocked()
	listeners := s.listenersLocked()
	s.mu.Unlock()

	notify(ctx, listeners, snap)
	return snap, nil
}

func (s *Store) loadLocked(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, stateKey(s.owner))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.lines = nil
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	default:
		var p persisted
		if err := json.Unmarshal(raw, &p); err != nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "cart_owner", s.owner), "discarding malformed cart snapshot")
			}
			p = persisted{}
		}
		s.lines = normalize(p.Lines)
	}
	s.loaded = true
	return nil
}

func (s *Store) persistLocked(ctx context.Context, lines []Line) error {
	key := stateKey(s.owner)
	if len(lines) == 0 {
		if err := s.kv.Delete(ctx, key); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
		}
		return nil
	}
	payload, err := json.Marshal(persisted{Lines: lines})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart")
	}
	if err := s.kv.Put(ctx, key, payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist cart")
	}
	return nil
}

func (s *Store) snapshotLocked() Snapshot {
	lines := make([]Line, len(s.lines))
	copy(lines, s.lines)
	count := 0
	for _, line := range lines {
		count += line.Quantity
	}
	return Snapshot{
		Owner:     s.owner,
		Lines:     lines,
		ItemCount: count,
		Total:     total(lines),
	}
}

func (s *Store) listenersLocked() []Listener {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.listeners[id])
	}
	return out
}

func notify(ctx context.Context, listeners []Listener, snap Snapshot) {
	for _, fn := range listeners {
		fn(ctx, snap)
	}
}

func displayName(p gateway.Product) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return "product"
}
