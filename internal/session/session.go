// Package session holds the authenticated user of a storefront session.
// Tokens are issued by the store API; this package only remembers them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fsanano/storefront/internal/model"
	"fsanano/storefront/internal/service/storeapi"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	ErrNoSession    = errors.New("session not found")
	ErrInvalidToken = errors.New("invalid token")
)

type Session struct {
	ID        string      `json:"id"`
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Store persists sessions. Get returns ErrNoSession for unknown or expired ids.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

type ProfileFetcher interface {
	GetProfile(ctx context.Context) (*model.User, error)
}

type Manager struct {
	store    Store
	profiles ProfileFetcher
	ttl      time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
}

func NewManager(store Store, profiles ProfileFetcher, ttl time.Duration, clock clockwork.Clock, logger *slog.Logger) *Manager {
	return &Manager{store: store, profiles: profiles, ttl: ttl, clock: clock, logger: logger}
}

// Login checks the token against the store API and opens a session for its owner.
func (m *Manager) Login(ctx context.Context, token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	user, err := m.profiles.GetProfile(storeapi.WithToken(ctx, token))
	if err != nil {
		var apiErr *storeapi.APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == 401 || apiErr.StatusCode == 403) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	now := m.clock.Now()
	expiresAt := now.Add(m.ttl)
	if exp, ok := tokenExpiry(token); ok && exp.Before(expiresAt) {
		expiresAt = exp
	}
	if !expiresAt.After(now) {
		return nil, ErrInvalidToken
	}

	s := &Session{
		ID:        uuid.NewString(),
		User:      user,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.logger.Info("session opened", slog.String("session_id", s.ID), slog.Int("user_id", user.ID))
	return s, nil
}

func (m *Manager) Resolve(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNoSession
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.clock.Now().Before(s.ExpiresAt) {
		_ = m.store.Delete(ctx, id)
		return nil, ErrNoSession
	}
	return s, nil
}

func (m *Manager) Logout(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	m.logger.Info("session closed", slog.String("session_id", id))
	return nil
}

// tokenExpiry reads the exp claim of a JWT without verifying it. The store
// API stays the authority on validity; this only bounds the session lifetime.
func tokenExpiry(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

type ctxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *model.User {
	if s, ok := FromContext(ctx); ok {
		return s.User
	}
	return nil
}
