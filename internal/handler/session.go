package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"fsanano/storefront/internal/model"
	"fsanano/storefront/internal/service/storeapi"
	"fsanano/storefront/internal/session"
	"fsanano/storefront/internal/workspace"
)

type LoginRequest struct {
	Token string `json:"token"`
}

type SessionResponse struct {
	SessionID     string      `json:"session_id"`
	Authenticated bool        `json:"authenticated"`
	User          *model.User `json:"user"`
	ExpiresAt     *time.Time  `json:"expires_at,omitempty"`
}

// Login opens a session for a token issued by the store API. The caller's
// anonymous workspace carries over to the new session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.sessions.Login(r.Context(), req.Token)
	if err != nil {
		if errors.Is(err, session.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		h.logger.Error("login failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "Login failed")
		return
	}

	cur := currentFrom(r.Context())
	h.registry.Move(cur.id, s.ID)
	ws := h.registry.Get(s.ID)
	ws.SetUser(storeapi.WithToken(r.Context(), s.Token), s.User)

	setSessionCookie(w, s.ID)
	writeJSON(w, http.StatusCreated, SessionResponse{
		SessionID:     s.ID,
		Authenticated: true,
		User:          s.User,
		ExpiresAt:     &s.ExpiresAt,
	})
}

func (h *Handler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	cur := currentFrom(r.Context())
	resp := SessionResponse{SessionID: cur.id}
	if s, ok := session.FromContext(r.Context()); ok {
		resp.Authenticated = true
		resp.User = s.User
		resp.ExpiresAt = &s.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout closes the session. The workspace stays, signed out, so the cart
// is cleared without a request to the store API.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	cur := currentFrom(r.Context())
	if err := h.sessions.Logout(r.Context(), cur.id); err != nil {
		h.logger.Error("logout failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "Logout failed")
		return
	}
	cur.ws.SetUser(r.Context(), nil)
	cur.ws.Navigate(workspace.RouteHome)
	w.WriteHeader(http.StatusNoContent)
}

type ViewResponse struct {
	Route string `json:"route"`
}

type NavigateRequest struct {
	Route string `json:"route"`
}

func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ViewResponse{Route: currentFrom(r.Context()).ws.Route()})
}

func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	route, ok := workspace.CleanRoute(req.Route)
	if !ok {
		writeError(w, http.StatusNotFound, "Page not found")
		return
	}

	ws := currentFrom(r.Context()).ws
	ws.Navigate(route)
	writeJSON(w, http.StatusOK, ViewResponse{Route: ws.Route()})
}
