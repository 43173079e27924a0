package orders

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/angelmondragon/minierp-console/internal/cart"
	"github.com/angelmondragon/minierp-console/internal/gateway"
	"github.com/angelmondragon/minierp-console/internal/session"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
	"github.com/angelmondragon/minierp-console/pkg/metrics"
)

// Phase is the state of the placement flow.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseSubmitting Phase = "submitting"
	PhaseSuccess    Phase = "success"
	PhaseFailed     Phase = "failed"
)

// Submitter creates orders on the backend.
type Submitter interface {
	CreateOrder(ctx context.Context, token string, items []gateway.OrderLine) (*gateway.Order, error)
}

// Refresher reloads the order list after a placement.
type Refresher interface {
	List(ctx context.Context) ([]gateway.Order, error)
}

// SessionSource yields the current session.
type SessionSource interface {
	Current(ctx context.Context) (session.Session, error)
}

// CartSource is the part of the cart store the flow drives.
type CartSource interface {
	Lines(ctx context.Context) ([]cart.Line, error)
	Clear(ctx context.Context) error
}

// Placement is the outcome of a successful submission. Orders is nil when the
// post-placement refresh failed. CartCleared is false when the submitted lines
// are still in the cart and must not be placed again.
type Placement struct {
	Order       gateway.Order   `json:"order"`
	Orders      []gateway.Order `json:"orders"`
	CartCleared bool            `json:"cart_cleared"`
}

// Placer runs validate -> submit -> clear cart -> refresh for one profile and
// refuses to start while a submission is in flight.
type Placer struct {
	sessions  SessionSource
	cart      CartSource
	submitter Submitter
	refresher Refresher
	metrics   *metrics.OrderMetrics
	logg      *logger.Logger

	inFlight atomic.Bool
	mu       sync.Mutex
	phase    Phase
	lastErr  error
}

// PlacerOption configures a Placer.
type PlacerOption func(*Placer)

func WithPlacementMetrics(m *metrics.OrderMetrics) PlacerOption {
	return func(p *Placer) {
		p.metrics = m
	}
}

func WithPlacementLogger(logg *logger.Logger) PlacerOption {
	return func(p *Placer) {
		p.logg = logg
	}
}

func NewPlacer(sessions SessionSource, cartSource CartSource, submitter Submitter, refresher Refresher, opts ...PlacerOption) *Placer {
	p := &Placer{
		sessions:  sessions,
		cart:      cartSource,
		submitter: submitter,
		refresher: refresher,
		phase:     PhaseIdle,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Phase returns the current phase and the error of the last failure.
func (p *Placer) Phase() (Phase, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase, p.lastErr
}

// Place submits the cart as an order.
func (p *Placer) Place(ctx context.Context) (*Placement, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.metrics.IncPlacement("rejected")
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "an order is already being placed")
	}
	defer p.inFlight.Store(false)

	p.setPhase(PhaseValidating, nil)
	sess, err := p.sessions.Current(ctx)
	if err != nil {
		return nil, p.fail(ctx, "failed", err)
	}
	id, err := sess.RequireAuthenticated()
	if err != nil {
		return nil, p.fail(ctx, "failed", err)
	}

	lines, err := p.cart.Lines(ctx)
	if err != nil {
		return nil, p.fail(ctx, "failed", err)
	}
	if len(lines) == 0 {
		return nil, p.fail(ctx, "empty_cart", pkgerrors.New(pkgerrors.CodeValidation, "cart is empty"))
	}

	items := make([]gateway.OrderLine, 0, len(lines))
	for _, line := range lines {
		items = append(items, gateway.OrderLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	p.setPhase(PhaseSubmitting, nil)
	order, err := p.submitter.CreateOrder(ctx, id.Token, items)
	if err != nil {
		return nil, p.fail(ctx, "failed", err)
	}

	// The order exists from here on; later problems are reported, not returned.
	result := &Placement{Order: *order, CartCleared: true}
	if err := p.cart.Clear(ctx); err != nil {
		result.CartCleared = false
		p.warn(ctx, "order placed but cart could not be cleared", err)
	}
	if refreshed, err := p.refresher.List(ctx); err != nil {
		p.warn(ctx, "order placed but order list refresh failed", err)
	} else {
		result.Orders = refreshed
	}

	p.setPhase(PhaseSuccess, nil)
	p.metrics.IncPlacement("success")
	if p.logg != nil {
		p.logg.Info(p.logg.WithField(ctx, "order_id", order.ID), "order placed")
	}
	return result, nil
}

func (p *Placer) fail(ctx context.Context, outcome string, err error) error {
	p.setPhase(PhaseFailed, err)
	p.metrics.IncPlacement(outcome)
	if p.logg != nil {
		p.logg.Debug(p.logg.WithField(ctx, "outcome", outcome), "order placement failed")
	}
	return err
}

func (p *Placer) setPhase(phase Phase, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = phase
	p.lastErr = err
}

func (p *Placer) warn(ctx context.Context, msg string, err error) {
	if p.logg == nil {
		return
	}
	p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), msg)
}
