package orders

import (
	"context"
	"strconv"

	"github.com/angelmondragon/minierp-console/internal/gateway"
	"github.com/angelmondragon/minierp-console/internal/session"
	"github.com/angelmondragon/minierp-console/pkg/enums"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
	"github.com/angelmondragon/minierp-console/pkg/metrics"
)

// Backend is the order half of the gateway.
type Backend interface {
	ListOrders(ctx context.Context, token string) ([]gateway.Order, error)
	GetOrder(ctx context.Context, token string, id int64) (*gateway.Order, error)
	PayOrder(ctx context.Context, token string, id int64) (*gateway.Order, error)
	UpdateOrderStatus(ctx context.Context, token string, id int64, status enums.OrderStatus) (*gateway.Order, error)
}

// StatusChange is an admin status selection. From is the status the caller
// last saw and may be empty. A change that would be sent is always checked
// against the order's live status, and a stale From is rejected.
type StatusChange struct {
	OrderID int64
	From    enums.OrderStatus
	To      enums.OrderStatus
}

// StatusResult reports what a status change did. Order is nil for a no-op.
type StatusResult struct {
	Applied bool           `json:"applied"`
	Order   *gateway.Order `json:"order,omitempty"`
}

// Service exposes the order reads and admin actions of one profile.
type Service struct {
	sessions SessionSource
	backend  Backend
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithServiceMetrics(m *metrics.OrderMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithServiceLogger(logg *logger.Logger) ServiceOption {
	return func(s *Service) {
		s.logg = logg
	}
}

func NewService(sessions SessionSource, backend Backend, opts ...ServiceOption) *Service {
	s := &Service{sessions: sessions, backend: backend}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// List returns the orders visible to the session: every order for admins,
// otherwise only the caller's own orders.
func (s *Service) List(ctx context.Context) ([]gateway.Order, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.backend.ListOrders(ctx, id.Token)
	if err != nil {
		return nil, err
	}
	return Visible(all, id), nil
}

// Get returns one order with its items.
func (s *Service) Get(ctx context.Context, orderID int64) (*gateway.Order, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	return s.backend.GetOrder(ctx, id.Token, orderID)
}

// Pay settles a NEW order. Admins do not pay orders.
func (s *Service) Pay(ctx context.Context, orderID int64) (*gateway.Order, error) {
	id, err := s.identity(ctx)
	if err != nil {
		return nil, err
	}
	if id.Role == enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admins cannot pay orders")
	}
	return s.backend.PayOrder(ctx, id.Token, orderID)
}

// ChangeStatus applies an admin status selection through the transition guard.
func (s *Service) ChangeStatus(ctx context.Context, change StatusChange) (*StatusResult, error) {
	sess, err := s.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	id, err := sess.RequireRole(enums.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if !change.To.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", change.To)
	}

	// The caller's view settles no-ops and disallowed picks without a request.
	if change.From != "" {
		if err := s.guard(change.OrderID, change.From, change.To); err != nil {
			return nil, err
		}
		if change.From == change.To {
			return &StatusResult{Applied: false}, nil
		}
	}

	current, err := s.backend.GetOrder(ctx, id.Token, change.OrderID)
	if err != nil {
		return nil, err
	}
	from := current.Status
	if change.From != "" && change.From != from {
		s.metrics.IncTransition(string(change.From), string(change.To), "stale")
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "order %d is now %s, not %s; reload it and try again", change.OrderID, from, change.From).
			WithDetails(map[string]any{
				"order_id": change.OrderID,
				"current":  from,
				"expected": change.From,
			})
	}
	if err := s.guard(change.OrderID, from, change.To); err != nil {
		return nil, err
	}
	if from == change.To {
		return &StatusResult{Applied: false}, nil
	}

	order, err := s.backend.UpdateOrderStatus(ctx, id.Token, change.OrderID, change.To)
	if err != nil {
		s.metrics.IncTransition(string(from), string(change.To), "failed")
		return nil, err
	}
	s.metrics.IncTransition(string(from), string(change.To), "applied")
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{"order_id": change.OrderID, "from": from, "to": change.To})
		s.logg.Info(ctx, "order status changed")
	}
	return &StatusResult{Applied: true, Order: order}, nil
}

// guard records and rejects from -> to when it is off the allow-list. A
// same-status pick passes and is counted as a no-op.
func (s *Service) guard(orderID int64, from, to enums.OrderStatus) error {
	if from == to {
		s.metrics.IncTransition(string(from), string(to), "noop")
		return nil
	}
	if !CanTransition(from, to) {
		s.metrics.IncTransition(string(from), string(to), "disallowed")
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order from %s to %s", from, to).
			WithDetails(map[string]any{
				"order_id": orderID,
				"from":     from,
				"to":       to,
				"allowed":  AllowedTargets(from),
			})
	}
	return nil
}

// CanPay reports whether the pay action is offered for order to id.
func CanPay(order gateway.Order, id session.Identity) bool {
	return id.Role != enums.RoleAdmin && order.Status == enums.OrderStatusNew
}

// Visible filters orders down to what id may see. A non-admin whose token
// carries no numeric subject sees nothing.
func Visible(all []gateway.Order, id session.Identity) []gateway.Order {
	if id.Role == enums.RoleAdmin {
		return all
	}
	userID, err := strconv.ParseInt(id.Subject, 10, 64)
	if err != nil {
		return []gateway.Order{}
	}
	out := make([]gateway.Order, 0, len(all))
	for _, order := range all {
		if order.UserID == userID {
			out = append(out, order)
		}
	}
	return out
}

func (s *Service) identity(ctx context.Context) (session.Identity, error) {
	sess, err := s.sessions.Current(ctx)
	if err != nil {
		return session.Identity{}, err
	}
	return sess.RequireAuthenticated()
}
