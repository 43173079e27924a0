package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/minierp-console/internal/gateway"
	"github.com/angelmondragon/minierp-console/pkg/auth"
	"github.com/angelmondragon/minierp-console/pkg/enums"
	pkgerrors "github.com/angelmondragon/minierp-console/pkg/errors"
	"github.com/angelmondragon/minierp-console/pkg/logger"
	"github.com/angelmondragon/minierp-console/pkg/security"
	"github.com/angelmondragon/minierp-console/pkg/storage"
	"github.com/angelmondragon/minierp-console/pkg/validate"
)

// StateKey is where the session record lives inside a console profile.
const StateKey = "session"

// Authenticator is the part of the backend the session store talks to.
type Authenticator interface {
	Login(ctx context.Context, req gateway.LoginRequest) (*gateway.LoginResponse, error)
	Register(ctx context.Context, req gateway.RegisterRequest) error
}

// Listener observes session changes.
type Listener func(ctx context.Context, s Session)

// Credentials are the login form values.
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
	Email    string `json:"email" validate:"omitempty,email"`
}

type record struct {
	Username  string     `json:"username"`
	Role      enums.Role `json:"role"`
	Token     string     `json:"token"`
	Subject   string     `json:"subject,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Store owns the session of one console profile.
type Store struct {
	kv     storage.KV
	auth   Authenticator
	sealer *security.Sealer
	logg   *logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	current   Session
	loaded    bool
	listeners map[int]Listener
	nextID    int
}

// Option configures a Store.
type Option func(*Store)

// WithSealer encrypts the bearer token at rest.
func WithSealer(sealer *security.Sealer) Option {
	return func(s *Store) {
		s.sealer = sealer
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(s *Store) {
		s.logg = logg
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore builds a session store over kv.
func NewStore(kv storage.KV, authenticator Authenticator, opts ...Option) *Store {
	s := &Store{
		kv:        kv,
		auth:      authenticator,
		now:       time.Now,
		listeners: map[int]Listener{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Subscribe registers fn for every session change and returns its cancel func.
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

// Current returns the live session. The record is reloaded from storage on
// every call so a login or logout made elsewhere is picked up; listeners are
// told when it changed. An expired token signs the profile out.
func (s *Store) Current(ctx context.Context) (Session, error) {
	s.mu.Lock()
	previous, hadPrevious := s.current, s.loaded
	if err := s.loadLocked(ctx); err != nil {
		s.mu.Unlock()
		return Anonymous(), err
	}
	current := s.current
	if id, ok := current.Identity(); !ok || !expired(id, s.now()) {
		var listeners []Listener
		if hadPrevious && !sameSession(previous, current) {
			listeners = s.listenersLocked()
		}
		s.mu.Unlock()
		notify(ctx, listeners, current)
		return current, nil
	}
	s.current = Anonymous()
	err := s.kv.Delete(ctx, StateKey)
	listeners := s.listenersLocked()
	s.mu.Unlock()

	s.debug(ctx, "session expired")
	notify(ctx, listeners, Anonymous())
	if err != nil {
		return Anonymous(), pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear expired session")
	}
	return Anonymous(), nil
}

// Login authenticates against the backend and persists the new session.
func (s *Store) Login(ctx context.Context, creds Credentials) (Session, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if strings.TrimSpace(creds.Password) == "" {
		creds.Password = ""
	}
	if err := validate.Struct(creds); err != nil {
		return Anonymous(), err
	}

	resp, err := s.auth.Login(ctx, gateway.LoginRequest{Username: creds.Username, Password: creds.Password})
	if err != nil {
		if reqErr, ok := gateway.AsRequestError(err); ok && reqErr.Status >= http.StatusBadRequest && reqErr.Status < http.StatusInternalServerError {
			return Anonymous(), pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, reqErr.Message)
		}
		return Anonymous(), err
	}
	if resp == nil || strings.TrimSpace(resp.AccessToken) == "" {
		return Anonymous(), pkgerrors.New(pkgerrors.CodeUnauthorized, "login response did not include an access token")
	}

	id, err := s.identityFromToken(creds.Username, resp.Role, resp.AccessToken)
	if err != nil {
		return Anonymous(), err
	}
	next := Authenticated(id)
	if err := s.replace(ctx, next); err != nil {
		return Anonymous(), err
	}
	return next, nil
}

// Adopt installs an already issued session after validating it.
func (s *Store) Adopt(ctx context.Context, id Identity) (Session, error) {
	id.Username = strings.TrimSpace(id.Username)
	if id.Username == "" {
		return Anonymous(), pkgerrors.New(pkgerrors.CodeValidation, "username is required")
	}
	if strings.TrimSpace(id.Token) == "" {
		return Anonymous(), pkgerrors.New(pkgerrors.CodeUnauthorized, "token is required")
	}
	resolved, err := s.identityFromToken(id.Username, string(id.Role), id.Token)
	if err != nil {
		return Anonymous(), err
	}
	if id.Subject != "" {
		resolved.Subject = id.Subject
	}
	if id.ExpiresAt != nil {
		resolved.ExpiresAt = id.ExpiresAt
		if expired(resolved, s.now()) {
			return Anonymous(), pkgerrors.New(pkgerrors.CodeUnauthorized, "session has expired")
		}
	}
	next := Authenticated(resolved)
	if err := s.replace(ctx, next); err != nil {
		return Anonymous(), err
	}
	return next, nil
}

// Logout clears the persisted session.
func (s *Store) Logout(ctx context.Context) error {
	return s.replace(ctx, Anonymous())
}

// Register creates a backend account. It does not sign in.
func (s *Store) Register(ctx context.Context, in RegisterInput) error {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	if in.Role == "" {
		in.Role = string(enums.RoleUser)
	}
	if err := validate.Struct(in); err != nil {
		return err
	}
	return s.auth.Register(ctx, gateway.RegisterRequest{
		Username: in.Username,
		Password: in.Password,
		Role:     in.Role,
		Email:    in.Email,
	})
}

func (s *Store) identityFromToken(username, rawRole, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	claims, claimsErr := auth.ParseBearerToken(token)

	role := rawRole
	if strings.TrimSpace(role) == "" && claimsErr == nil {
		role = claims.Role
	}
	parsedRole, err := enums.ParseRole(role)
	if err != nil {
		return Identity{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "unrecognized role in login response")
	}

	id := Identity{Username: username, Role: parsedRole, Token: token}
	if claimsErr == nil {
		id.Subject = claims.Subject
		id.ExpiresAt = claims.ExpiresAt
		if claims.Expired(s.now()) {
			return Identity{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "token has already expired")
		}
	}
	return id, nil
}

func (s *Store) replace(ctx context.Context, next Session) error {
	s.mu.Lock()
	var err error
	if id, ok := next.Identity(); ok {
		err = s.persistLocked(ctx, id)
	} else {
		err = s.kv.Delete(ctx, StateKey)
	}
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.current = next
	s.loaded = true
	listeners := s.listenersLocked()
	s.mu.Unlock()

	if s.logg != nil {
		s.logg.Info(s.logg.WithUsername(ctx, next.Username()), "session changed")
	}
	notify(ctx, listeners, next)
	return nil
}

func (s *Store) persistLocked(ctx context.Context, id Identity) error {
	token := id.Token
	if s.sealer != nil {
		sealed, err := s.sealer.Seal([]byte(token))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal session token")
		}
		token = sealed
	}
	payload, err := json.Marshal(record{
		Username:  id.Username,
		Role:      id.Role,
		Token:     token,
		Subject:   id.Subject,
		ExpiresAt: id.ExpiresAt,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode session")
	}
	if err := s.kv.Put(ctx, StateKey, payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist session")
	}
	return nil
}

func (s *Store) loadLocked(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, StateKey)
	if errors.Is(err, storage.ErrNotFound) {
		s.current = Anonymous()
		s.loaded = true
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load session")
	}

	id, ok := s.decode(ctx, raw)
	if !ok {
		// Unreadable records are discarded rather than blocking the profile.
		_ = s.kv.Delete(ctx, StateKey)
		s.current = Anonymous()
		s.loaded = true
		return nil
	}
	s.current = Authenticated(id)
	s.loaded = true
	return nil
}

func (s *Store) decode(ctx context.Context, raw []byte) (Identity, bool) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.warn(ctx, "discarding malformed session record")
		return Identity{}, false
	}
	token := rec.Token
	if security.IsSealed(token) {
		if s.sealer == nil {
			s.warn(ctx, "sealed session found but no seal key configured")
			return Identity{}, false
		}
		opened, err := s.sealer.Open(token)
		if err != nil {
			s.warn(ctx, "session token could not be unsealed")
			return Identity{}, false
		}
		token = string(opened)
	}
	if strings.TrimSpace(rec.Username) == "" || strings.TrimSpace(token) == "" || !rec.Role.IsValid() {
		s.warn(ctx, "discarding incomplete session record")
		return Identity{}, false
	}
	return Identity{
		Username:  rec.Username,
		Role:      rec.Role,
		Token:     token,
		Subject:   rec.Subject,
		ExpiresAt: rec.ExpiresAt,
	}, true
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

func (s *Store) warn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}

func (s *Store) debug(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Debug(ctx, msg)
	}
}

func notify(ctx context.Context, listeners []Listener, next Session) {
	for _, fn := range listeners {
		fn(ctx, next)
	}
}

func sameSession(a, b Session) bool {
	return a.Username() == b.Username() && a.Token() == b.Token() && a.Role() == b.Role()
}

func expired(id Identity, now time.Time) bool {
	return id.ExpiresAt != nil && !now.Before(*id.ExpiresAt)
}
