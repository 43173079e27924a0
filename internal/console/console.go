package console

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/minierp-console/internal/cart"
	"github.com/angelmondragon/minierp-console/internal/dashboard"
	"github.com/angelmondragon/minierp-console/internal/gateway"
	"github.com/angelmondragon/minierp-console/internal/orders"
	"github.com/angelmondragon/minierp-console/internal/products"
	"github.com/angelmondragon/minierp-console/internal/session"
	"github.com/angelmondragon/minierp-console/pkg/logger"
	"github.com/angelmondragon/minierp-console/pkg/metrics"
	"github.com/angelmondragon/minierp-console/pkg/security"
	"github.com/angelmondragon/minierp-console/pkg/storage"
)

// Console is everything bound to one console profile: one session, one cart
// and one placement flow.
type Console struct {
	ProfileID string
	Session   *session.Store
	Cart      *cart.Store
	Orders    *orders.Service
	Placer    *orders.Placer
	Products  *products.Service
	Dashboard *dashboard.Service

	unsubscribe func()
	lastUsed    time.Time
}

// Deps are shared across every console.
type Deps struct {
	State        storage.KV
	Backend      *gateway.Client
	Sealer       *security.Sealer
	OrderMetrics *metrics.OrderMetrics
	Logger       *logger.Logger
}

// Registry hands out the console of a profile, building it on first use.
type Registry struct {
	deps Deps
	now  func() time.Time

	mu       sync.Mutex
	consoles map[string]*Console
}

func NewRegistry(deps Deps) (*Registry, error) {
	if deps.State == nil {
		return nil, fmt.Errorf("state storage is required")
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("backend client is required")
	}
	return &Registry{deps: deps, now: time.Now, consoles: map[string]*Console{}}, nil
}

// Get returns the console for profileID. A cached console re-reads its
// session first, so a sign-in or sign-out made through another replica moves
// the cart to the right owner before the request runs.
func (r *Registry) Get(ctx context.Context, profileID string) (*Console, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, fmt.Errorf("profile id is required")
	}

	r.mu.Lock()
	if c, ok := r.consoles[profileID]; ok {
		c.lastUsed = r.now()
		r.mu.Unlock()
		if _, err := c.Session.Current(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
	defer r.mu.Unlock()
	c, err := r.build(ctx, profileID)
	if err != nil {
		return nil, err
	}
	c.lastUsed = r.now()
	r.consoles[profileID] = c
	return c, nil
}

// Forget drops the in-memory console of a profile; persisted state stays.
func (r *Registry) Forget(profileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.consoles[profileID]; ok {
		c.unsubscribe()
		delete(r.consoles, profileID)
	}
}

// EvictIdle forgets every console not used for longer than idle and returns
// how many were dropped. Their sessions and carts stay in storage and are
// reloaded on the next request.
func (r *Registry) EvictIdle(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, c := range r.consoles {
		if c.lastUsed.Before(cutoff) {
			c.unsubscribe()
			delete(r.consoles, id)
			evicted++
		}
	}
	return evicted
}

// Len is the number of live consoles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.consoles)
}

func (r *Registry) build(ctx context.Context, profileID string) (*Console, error) {
	kv := storage.WithPrefix(r.deps.State, "profile", profileID)
	logg := r.deps.Logger

	sessions := session.NewStore(kv, r.deps.Backend,
		session.WithSealer(r.deps.Sealer),
		session.WithLogger(logg),
	)
	carts := cart.NewStore(kv, cart.WithLogger(logg))

	// The cart follows the signed-in identity.
	unsubscribe := sessions.Subscribe(func(ctx context.Context, s session.Session) {
		if err := carts.SwitchOwner(ctx, s.Username()); err != nil && logg != nil {
			logg.Error(logg.WithProfileID(ctx, profileID), "switch cart owner", err)
		}
	})

	current, err := sessions.Current(ctx)
	if err != nil {
		unsubscribe()
		return nil, err
	}
	if err := carts.SwitchOwner(ctx, current.Username()); err != nil {
		unsubscribe()
		return nil, err
	}

	orderSvc := orders.NewService(sessions, r.deps.Backend,
		orders.WithServiceMetrics(r.deps.OrderMetrics),
		orders.WithServiceLogger(logg),
	)
	placer := orders.NewPlacer(sessions, carts, r.deps.Backend, orderSvc,
		orders.WithPlacementMetrics(r.deps.OrderMetrics),
		orders.WithPlacementLogger(logg),
	)

	if logg != nil {
		logg.Debug(logg.WithProfileID(ctx, profileID), "console profile loaded")
	}

	return &Console{
		ProfileID:   profileID,
		Session:     sessions,
		Cart:        carts,
		Orders:      orderSvc,
		Placer:      placer,
		Products:    products.NewService(sessions, r.deps.Backend, carts, logg),
		Dashboard:   dashboard.NewService(sessions, r.deps.Backend),
		unsubscribe: unsubscribe,
	}, nil
}
