package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"fsanano/storefront/internal/model"
	"fsanano/storefront/internal/repository"
	"fsanano/storefront/internal/service/storeapi"
	"fsanano/storefront/internal/session"
	"fsanano/storefront/internal/workspace"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	SessionCookie = "storefront_session"
	SessionHeader = "X-Session-ID"
)

// AttemptLister reads back the checkout journal.
type AttemptLister interface {
	Recent(ctx context.Context, userID, limit int) ([]repository.Attempt, error)
}

type Config struct {
	Sessions *session.Manager
	Registry *workspace.Registry
	// Attempts is nil when the checkout journal is disabled.
	Attempts AttemptLister
	Logger   *slog.Logger
}

type Handler struct {
	router   *chi.Mux
	sessions *session.Manager
	registry *workspace.Registry
	attempts AttemptLister
	logger   *slog.Logger
}

func NewHandler(cfg Config) *Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)

	h := &Handler{
		router:   router,
		sessions: cfg.Sessions,
		registry: cfg.Registry,
		attempts: cfg.Attempts,
		logger:   cfg.Logger,
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.HealthCheck)

		r.Group(func(r chi.Router) {
			r.Use(h.withWorkspace)

			r.Post("/session", h.Login)
			r.Get("/session", h.CurrentSession)
			r.Delete("/session", h.Logout)

			r.Get("/view", h.GetView)
			r.Put("/view", h.Navigate)

			r.Get("/catalog", h.GetCatalog)
			r.Patch("/catalog/filters", h.SetFilters)
			r.Post("/catalog/search", h.SubmitSearch)
			r.Put("/catalog/page", h.SetPage)
			r.Post("/catalog/clear", h.ClearFilters)
			r.Get("/products/{id}", h.GetProduct)
			r.Post("/products/{id}/cart", h.AddFromDetail)

			r.Get("/cart", h.GetCart)
			r.Post("/cart/items", h.AddCartItem)
			r.Put("/cart/items/{id}", h.UpdateCartItem)
			r.Delete("/cart/items/{id}", h.RemoveCartItem)

			r.Get("/checkout", h.GetCheckout)
			r.Post("/checkout", h.SubmitCheckout)
			r.Get("/checkout/attempts", h.ListAttempts)

			r.Get("/orders", h.ListOrders)
		})
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

type workspaceKey struct{}

type current struct {
	id string
	ws *workspace.Workspace
}

// withWorkspace resolves the caller's session and attaches its workspace.
// A caller without a session id is given one, as an anonymous browser.
func (h *Handler) withWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := sessionID(r)

		var user *model.User
		if id != "" {
			s, err := h.sessions.Resolve(ctx, id)
			switch {
			case err == nil:
				ctx = session.WithSession(ctx, s)
				ctx = storeapi.WithToken(ctx, s.Token)
				user = s.User
			case !errors.Is(err, session.ErrNoSession):
				h.logger.Error("failed to resolve session", slog.String("error", err.Error()))
				writeError(w, http.StatusServiceUnavailable, "Session lookup failed")
				return
			}
		} else {
			id = uuid.NewString()
			setSessionCookie(w, id)
		}

		ws := h.registry.Get(id)
		ws.SetUser(ctx, user)

		ctx = context.WithValue(ctx, workspaceKey{}, current{id: id, ws: ws})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionID(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get(SessionHeader)
}

func setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(SessionHeader, id)
}

func currentFrom(ctx context.Context) current {
	c, _ := ctx.Value(workspaceKey{}).(current)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
