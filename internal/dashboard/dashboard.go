package dashboard

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/minierp-console/internal/gateway"
	"github.com/angelmondragon/minierp-console/internal/orders"
	"github.com/angelmondragon/minierp-console/internal/session"
	"github.com/angelmondragon/minierp-console/pkg/enums"
)

// RecentLimit is how many orders the recent list shows.
const RecentLimit = 5

// Backend is what the dashboard reads.
type Backend interface {
	ListProducts(ctx context.Context, token string, sort enums.ProductSort) ([]gateway.Product, error)
	ListOrders(ctx context.Context, token string) ([]gateway.Order, error)
}

// SessionSource yields the current session.
type SessionSource interface {
	Current(ctx context.Context) (session.Session, error)
}

// Stats is the dashboard summary. Order figures cover visible orders only.
type Stats struct {
	Username      string          `json:"username"`
	Role          enums.Role      `json:"role"`
	TotalProducts int             `json:"total_products"`
	TotalOrders   int             `json:"total_orders"`
	NewOrders     int             `json:"new_orders"`
	PaidOrders    int             `json:"paid_orders"`
	Revenue       decimal.Decimal `json:"revenue"`
	Recent        []gateway.Order `json:"recent_orders"`
}

type Service struct {
	sessions SessionSource
	backend  Backend
}

func NewService(sessions SessionSource, backend Backend) *Service {
	return &Service{sessions: sessions, backend: backend}
}

// Load fetches products and orders in parallel and summarizes them.
func (s *Service) Load(ctx context.Context) (*Stats, error) {
	sess, err := s.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	id, err := sess.RequireAuthenticated()
	if err != nil {
		return nil, err
	}

	var (
		products []gateway.Product
		all      []gateway.Order
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.backend.ListProducts(gctx, id.Token, enums.DefaultProductSort)
		return err
	})
	g.Go(func() error {
		var err error
		all, err = s.backend.ListOrders(gctx, id.Token)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := Summarize(products, orders.Visible(all, id))
	stats.Username = id.Username
	stats.Role = id.Role
	return stats, nil
}

// Summarize computes the dashboard figures from already filtered orders.
func Summarize(products []gateway.Product, visible []gateway.Order) *Stats {
	stats := &Stats{
		TotalProducts: len(products),
		TotalOrders:   len(visible),
		Revenue:       decimal.Zero,
	}
	for _, order := range visible {
		switch order.Status {
		case enums.OrderStatusNew:
			stats.NewOrders++
		case enums.OrderStatusPaid:
			stats.PaidOrders++
		}
		stats.Revenue = stats.Revenue.Add(order.TotalAmount)
	}

	recent := make([]gateway.Order, len(visible))
	copy(recent, visible)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedTime().After(recent[j].CreatedTime())
	})
	if len(recent) > RecentLimit {
		recent = recent[:RecentLimit]
	}
	stats.Recent = recent
	return stats
}
