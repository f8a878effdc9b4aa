package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"fsanano/storefront/internal/service/catalog"
	"fsanano/storefront/internal/workspace"

	"github.com/go-chi/chi/v5"
)

type PageRequest struct {
	Page int `json:"page"`
}

type ProductResponse struct {
	catalog.Card
	Route string `json:"route"`
}

// GetCatalog renders the listing. The first view of a session loads products
// and cart together; refresh=true forces that again.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	ws := currentFrom(r.Context()).ws

	var err error
	if r.URL.Query().Get("refresh") == "true" {
		err = ws.Refresh(r.Context())
	} else {
		err = ws.OpenCatalog(r.Context())
	}
	if err != nil {
		// the listing carries its own error banner
		h.logger.Warn("catalog refresh incomplete", slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, ws.Catalog.View(ws.Cart))
}

// SetFilters takes the current value of one or more filter inputs, e.g.
// {"search": "lam"}. Values reach the query once each input goes quiet.
func (h *Handler) SetFilters(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	values := make(map[catalog.Field]string, len(req))
	for field, value := range req {
		values[catalog.Field(field)] = value
	}

	ws := currentFrom(r.Context()).ws
	if err := ws.Catalog.SetFilters(r.Context(), values); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, ws.Catalog.View(ws.Cart))
}

func (h *Handler) SubmitSearch(w http.ResponseWriter, r *http.Request) {
	ws := currentFrom(r.Context()).ws
	_ = ws.Catalog.Submit(r.Context())
	writeJSON(w, http.StatusOK, ws.Catalog.View(ws.Cart))
}

func (h *Handler) SetPage(w http.ResponseWriter, r *http.Request) {
	var req PageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ws := currentFrom(r.Context()).ws
	_ = ws.Catalog.SetPage(r.Context(), req.Page)
	writeJSON(w, http.StatusOK, ws.Catalog.View(ws.Cart))
}

func (h *Handler) ClearFilters(w http.ResponseWriter, r *http.Request) {
	ws := currentFrom(r.Context()).ws
	_ = ws.Catalog.ClearFilters(r.Context())
	writeJSON(w, http.StatusOK, ws.Catalog.View(ws.Cart))
}

// GetProduct opens a product's detail page.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		writeError(w, http.StatusNotFound, catalog.MsgProductNotFound)
		return
	}

	ws := currentFrom(r.Context()).ws
	p, err := ws.OpenProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			writeError(w, http.StatusNotFound, catalog.MsgProductNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ProductResponse{Card: catalog.NewCard(*p, ws.Cart), Route: workspace.ProductRoute(id)})
}
