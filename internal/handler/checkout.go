package handler

import (
	"log/slog"
	"net/http"

	"fsanano/storefront/internal/service/checkout"
	"fsanano/storefront/internal/service/orders"
	"fsanano/storefront/internal/service/payment"
	"fsanano/storefront/internal/session"
)

const attemptsLimit = 20

// CheckoutRequest carries either a payment method the browser already
// tokenized with the processor, or raw card details to tokenize here.
type CheckoutRequest struct {
	ShippingAddress string       `json:"shipping_address"`
	PaymentMethodID string       `json:"payment_method_id,omitempty"`
	Card            payment.Card `json:"card"`
}

func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentFrom(r.Context()).ws.Checkout.State())
}

// SubmitCheckout places the order. Only a payment method token reaches the
// store API; a raw card is first exchanged for one with the processor.
func (h *Handler) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ws := currentFrom(r.Context()).ws
	user := session.UserFromContext(r.Context())

	var out checkout.Outcome
	if req.PaymentMethodID != "" {
		out = ws.Checkout.SubmitPaymentMethod(r.Context(), user, req.ShippingAddress, req.PaymentMethodID)
	} else {
		out = ws.Checkout.Submit(r.Context(), user, req.ShippingAddress, req.Card)
	}

	status := http.StatusOK
	switch {
	case out.Status == checkout.StatusCompleted && out.Error == "":
		status = http.StatusCreated
	case out.Error == checkout.MsgAuthRequired:
		status = http.StatusUnauthorized
	case out.Error == checkout.MsgInProgress:
		status = http.StatusConflict
	case out.Status == checkout.StatusFailed:
		status = http.StatusPaymentRequired
	case out.Error != "":
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, out)
}

// ListAttempts shows the signed-in user's journaled checkout attempts.
func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	if h.attempts == nil {
		writeError(w, http.StatusNotFound, "Checkout journal is disabled")
		return
	}
	user := session.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, checkout.MsgAuthRequired)
		return
	}

	attempts, err := h.attempts.Recent(r.Context(), user.ID, attemptsLimit)
	if err != nil {
		h.logger.Error("failed to list checkout attempts", slog.Int("user_id", user.ID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Failed to load checkout attempts")
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	v := h.registry.History.Load(r.Context(), session.UserFromContext(r.Context()))

	status := http.StatusOK
	switch v.Error {
	case orders.MsgAuthRequired:
		status = http.StatusUnauthorized
	case orders.MsgLoadFailed:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, v)
}
