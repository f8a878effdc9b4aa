package handler

import (
	"net/http"
	"strconv"

	"fsanano/storefront/internal/service/cart"
	"fsanano/storefront/internal/service/catalog"
	"fsanano/storefront/internal/session"

	"github.com/go-chi/chi/v5"
)

const msgCartLoginRequired = "Please log in to view your cart"

type AddItemRequest struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

type CartActionResponse struct {
	cart.Result
	Cart cart.State `json:"cart"`
}

// GetCart returns the mirrored cart. Signed-out callers get the prompt and
// no request is made upstream.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	if session.UserFromContext(r.Context()) == nil {
		writeError(w, http.StatusUnauthorized, msgCartLoginRequired)
		return
	}
	writeJSON(w, http.StatusOK, currentFrom(r.Context()).ws.Cart.Snapshot())
}

func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	c := currentFrom(r.Context()).ws.Cart
	h.writeCartResult(w, c, c.Add(r.Context(), req.ProductID, req.Quantity))
}

// AddFromDetail adds from a product's detail page and moves the session to
// the cart on success.
func (h *Handler) AddFromDetail(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || productID < 1 {
		writeError(w, http.StatusNotFound, catalog.MsgProductNotFound)
		return
	}
	var req QuantityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	ws := currentFrom(r.Context()).ws
	res := ws.AddFromDetail(r.Context(), productID, req.Quantity)
	if res.Error == catalog.MsgProductNotFound {
		writeError(w, http.StatusNotFound, res.Error)
		return
	}
	h.writeCartResult(w, ws.Cart, res)
}

// UpdateCartItem sets an item's quantity the way the +/- controls do: below
// 1 removes the line, above the product's inventory is refused.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	var req QuantityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c := currentFrom(r.Context()).ws.Cart
	h.writeCartResult(w, c, c.ChangeQuantity(r.Context(), itemID, req.Quantity))
}

func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	c := currentFrom(r.Context()).ws.Cart
	h.writeCartResult(w, c, c.Remove(r.Context(), itemID))
}

func (h *Handler) writeCartResult(w http.ResponseWriter, c *cart.Synchronizer, res cart.Result) {
	status := http.StatusOK
	switch {
	case res.Error == cart.MsgLoginRequired:
		status = http.StatusUnauthorized
	case !res.Success:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, CartActionResponse{Result: res, Cart: c.Snapshot()})
}
