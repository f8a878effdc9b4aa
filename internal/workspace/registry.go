package workspace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fsanano/storefront/internal/service/cart"
	"fsanano/storefront/internal/service/catalog"
	"fsanano/storefront/internal/service/checkout"
	"fsanano/storefront/internal/service/orders"
	"fsanano/storefront/internal/service/payment"

	"github.com/jonboulle/clockwork"
)

// StoreAPI is everything a workspace needs from the store REST API.
type StoreAPI interface {
	cart.API
	catalog.API
	checkout.OrderAPI
	orders.API
}

type Config struct {
	API       StoreAPI
	Tokenizer payment.Tokenizer
	// Journal is optional.
	Journal checkout.Journal
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

// Registry hands out one Workspace per session id and forgets workspaces
// that have gone idle.
type Registry struct {
	cfg     Config
	History *orders.History

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

func NewRegistry(cfg Config) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Registry{
		cfg:        cfg,
		History:    orders.NewHistory(cfg.API, cfg.Logger),
		workspaces: make(map[string]*Workspace),
	}
}

// Get returns the session's workspace, creating it on first use.
func (r *Registry) Get(sessionID string) *Workspace {
	r.mu.Lock()
	w, ok := r.workspaces[sessionID]
	if !ok {
		w = r.newWorkspace(sessionID)
		r.workspaces[sessionID] = w
	}
	r.mu.Unlock()

	w.touch()
	return w
}

func (r *Registry) newWorkspace(sessionID string) *Workspace {
	logger := r.cfg.Logger.With(slog.String("session_id", sessionID))

	w := &Workspace{clock: r.cfg.Clock, route: RouteHome}
	w.Cart = cart.NewSynchronizer(r.cfg.API, logger)
	w.Catalog = catalog.NewBrowser(r.cfg.API, r.cfg.Clock, logger)
	w.Checkout = checkout.NewOrchestrator(r.cfg.Tokenizer, r.cfg.API, w.Cart, w, r.cfg.Journal, r.cfg.Clock, logger)
	return w
}

func (r *Registry) Evict(sessionID string) {
	r.mu.Lock()
	delete(r.workspaces, sessionID)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// Sweep evicts workspaces untouched for longer than idle.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.cfg.Clock.Now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, w := range r.workspaces {
		if w.idleSince().Before(cutoff) {
			delete(r.workspaces, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := r.cfg.Clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := r.Sweep(idle); n > 0 {
				r.cfg.Logger.Info("evicted idle workspaces", slog.Int("count", n))
			}
		}
	}
}

// Move re-keys a workspace, as when an anonymous browser signs in and is
// given a session id. An existing workspace under to is replaced.
func (r *Registry) Move(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workspaces[from]; ok {
		delete(r.workspaces, from)
		r.workspaces[to] = w
	}
}
