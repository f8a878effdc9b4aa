package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"fsanano/storefront/internal/handler"
	"fsanano/storefront/internal/repository"
	"fsanano/storefront/internal/service/cart"
	"fsanano/storefront/internal/service/catalog"
	"fsanano/storefront/internal/service/checkout"
	"fsanano/storefront/internal/service/payment"
	"fsanano/storefront/internal/service/storeapi"
	"fsanano/storefront/internal/session"
	"fsanano/storefront/internal/storetest"
	"fsanano/storefront/internal/workspace"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

type stubTokenizer struct{}

func (stubTokenizer) Tokenize(ctx context.Context, card payment.Card) (string, error) {
	if card.Number == "4000000000000002" {
		return "", &payment.TokenizeError{Message: "Your card was declined.", Code: "card_declined"}
	}
	return "pm_test", nil
}

type manualClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type testEnv struct {
	srv   *storetest.Server
	h     *handler.Handler
	clock manualClock
}

func setup(t *testing.T, attempts handler.AttemptLister) *testEnv {
	srv := storetest.NewServer(
		storetest.Product(1, "Desk Lamp", "25.00", 10, "Home"),
		storetest.Product(2, "Running Shoes", "80.00", 3, "Fitness"),
	)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClock()
	client := storeapi.NewClient(storeapi.Config{APIURL: srv.URL})

	h := handler.NewHandler(handler.Config{
		Sessions: session.NewManager(session.NewMemoryStore(clock), client, time.Hour, clock, logger),
		Registry: workspace.NewRegistry(workspace.Config{
			API:       client,
			Tokenizer: stubTokenizer{},
			Clock:     clock,
			Logger:    logger,
		}),
		Attempts: attempts,
		Logger:   logger,
	})
	return &testEnv{srv: srv, h: h, clock: clock}
}

func (e *testEnv) do(t *testing.T, sid, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if sid != "" {
		req.Header.Set(handler.SessionHeader, sid)
	}
	rr := httptest.NewRecorder()
	e.h.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	rr := e.do(t, "", http.MethodPost, "/v1/session", handler.LoginRequest{Token: "tok"})
	assert.Equal(t, http.StatusCreated, rr.Code)
	var resp handler.SessionResponse
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.Authenticated)
	return resp.SessionID
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func TestHealthCheck(t *testing.T) {
	env := setup(t, nil)
	rr := env.do(t, "", http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestAnonymousBrowser(t *testing.T) {
	env := setup(t, nil)

	rr := env.do(t, "", http.MethodGet, "/v1/session", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	sid := rr.Header().Get(handler.SessionHeader)
	assert.NotEmpty(t, sid)
	assert.Contains(t, rr.Header().Get("Set-Cookie"), handler.SessionCookie+"="+sid)
	assert.False(t, decodeBody[handler.SessionResponse](t, rr).Authenticated)

	env.srv.ResetCalls()
	rr = env.do(t, sid, http.MethodGet, "/v1/cart", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Please log in to view your cart", decodeBody[map[string]string](t, rr)["error"])

	rr = env.do(t, sid, http.MethodPost, "/v1/cart/items", handler.AddItemRequest{ProductID: 1, Quantity: 1})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, sid, http.MethodPost, "/v1/checkout", handler.CheckoutRequest{ShippingAddress: "1 Main St"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, checkout.MsgAuthRequired, decodeBody[checkout.Outcome](t, rr).Error)

	assert.Empty(t, env.srv.Calls(), "signed-out actions never reach the store API")
}

func TestLogin_InvalidToken(t *testing.T) {
	env := setup(t, nil)
	env.srv.Token = "good"

	rr := env.do(t, "", http.MethodPost, "/v1/session", handler.LoginRequest{Token: "bad"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCatalogFlow(t *testing.T) {
	env := setup(t, nil)
	sid := env.login(t)

	rr := env.do(t, sid, http.MethodGet, "/v1/catalog", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	view := decodeBody[catalog.View](t, rr)
	assert.Equal(t, 2, view.Count)
	assert.Equal(t, 1, view.TotalPages)
	assert.Equal(t, catalog.Categories, view.Categories)

	env.srv.ResetCalls()
	rr = env.do(t, sid, http.MethodPatch, "/v1/catalog/filters", map[string]string{"search": "shoe"})
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.True(t, decodeBody[catalog.View](t, rr).Searching)
	assert.Equal(t, 0, env.srv.CallCount("GET /products/"))

	env.clock.Advance(catalog.DebounceDelay)
	assert.Eventually(t, func() bool {
		var v catalog.View
		json.NewDecoder(env.do(t, sid, http.MethodGet, "/v1/catalog", nil).Body).Decode(&v)
		return len(v.Products) == 1 && v.Products[0].Product.Name == "Running Shoes"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, env.srv.CallCount("GET /products/"), "one query for the whole burst")

	rr = env.do(t, sid, http.MethodPatch, "/v1/catalog/filters", map[string]string{"min_price": "abc"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, sid, http.MethodPost, "/v1/catalog/clear", nil)
	assert.Len(t, decodeBody[catalog.View](t, rr).Products, 2)

	rr = env.do(t, sid, http.MethodPatch, "/v1/catalog/filters", map[string]string{"category": "Home"})
	assert.Equal(t, http.StatusAccepted, rr.Code)
	rr = env.do(t, sid, http.MethodPost, "/v1/catalog/search", nil)
	view = decodeBody[catalog.View](t, rr)
	assert.False(t, view.Searching)
	assert.Len(t, view.Products, 1)

	rr = env.do(t, sid, http.MethodPut, "/v1/catalog/page", handler.PageRequest{Page: 4})
	assert.Equal(t, 1, decodeBody[catalog.View](t, rr).Page)
}

func TestProductDetail(t *testing.T) {
	env := setup(t, nil)
	sid := env.login(t)

	rr := env.do(t, sid, http.MethodGet, "/v1/products/2", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	p := decodeBody[handler.ProductResponse](t, rr)
	assert.Equal(t, "Running Shoes", p.Product.Name)
	assert.True(t, p.CanAdd)
	assert.Equal(t, "/products/2", p.Route)

	rr = env.do(t, sid, http.MethodGet, "/v1/view", nil)
	assert.Equal(t, "/products/2", decodeBody[handler.ViewResponse](t, rr).Route)

	rr = env.do(t, sid, http.MethodGet, "/v1/products/99", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, catalog.MsgProductNotFound, decodeBody[map[string]string](t, rr)["error"])
}

func TestCartFlow(t *testing.T) {
	env := setup(t, nil)
	sid := env.login(t)

	rr := env.do(t, sid, http.MethodPost, "/v1/cart/items", handler.AddItemRequest{ProductID: 1, Quantity: 2})
	assert.Equal(t, http.StatusOK, rr.Code)
	resp := decodeBody[handler.CartActionResponse](t, rr)
	assert.True(t, resp.Success)
	assert.Equal(t, "50.00", resp.Cart.Total.StringFixed(2))
	itemID := resp.Cart.Items[0].ID

	rr = env.do(t, sid, http.MethodPut, "/v1/cart/items/"+strconv.Itoa(itemID), handler.QuantityRequest{Quantity: 3})
	resp = decodeBody[handler.CartActionResponse](t, rr)
	assert.True(t, resp.Success)
	assert.Equal(t, "75.00", resp.Cart.Total.StringFixed(2))

	rr = env.do(t, sid, http.MethodPut, "/v1/cart/items/"+strconv.Itoa(itemID), handler.QuantityRequest{Quantity: 11})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "Not enough inventory", decodeBody[handler.CartActionResponse](t, rr).Error)

	rr = env.do(t, sid, http.MethodPut, "/v1/cart/items/"+strconv.Itoa(itemID), handler.QuantityRequest{Quantity: 0})
	resp = decodeBody[handler.CartActionResponse](t, rr)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Cart.Items)
	assert.Equal(t, 1, env.srv.CallCount("DELETE /cart/"+strconv.Itoa(itemID)+"/remove/"))

	rr = env.do(t, sid, http.MethodDelete, "/v1/cart/items/999", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestCheckoutFlow(t *testing.T) {
	env := setup(t, nil)
	sid := env.login(t)
	env.do(t, sid, http.MethodPost, "/v1/cart/items", handler.AddItemRequest{ProductID: 1, Quantity: 2})
	env.do(t, sid, http.MethodPut, "/v1/view", handler.NavigateRequest{Route: "/checkout"})

	rr := env.do(t, sid, http.MethodGet, "/v1/checkout", nil)
	assert.Equal(t, "Place Order - $50.00", decodeBody[checkout.Outcome](t, rr).Button)

	env.srv.ResetCalls()
	rr = env.do(t, sid, http.MethodPost, "/v1/checkout", handler.CheckoutRequest{ShippingAddress: "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, checkout.MsgAddressRequired, decodeBody[checkout.Outcome](t, rr).Error)
	assert.Equal(t, 0, env.srv.CallCount("POST /orders/create/"))

	rr = env.do(t, sid, http.MethodPost, "/v1/checkout", handler.CheckoutRequest{
		ShippingAddress: "1 Main St",
		Card:            payment.Card{Number: "4000000000000002"},
	})
	assert.Equal(t, http.StatusPaymentRequired, rr.Code)
	assert.Equal(t, "Your card was declined. Please try a different payment method.", decodeBody[checkout.Outcome](t, rr).Error)

	rr = env.do(t, sid, http.MethodPost, "/v1/checkout", handler.CheckoutRequest{
		ShippingAddress: "1 Main St",
		Card:            payment.Card{Number: "4242424242424242"},
	})
	assert.Equal(t, http.StatusCreated, rr.Code)
	out := decodeBody[checkout.Outcome](t, rr)
	assert.True(t, out.OrderCreated)
	assert.Equal(t, "Payment Complete", out.Button)

	rr = env.do(t, sid, http.MethodGet, "/v1/cart", nil)
	assert.Empty(t, decodeBody[map[string]any](t, rr)["items"])

	env.clock.Advance(checkout.RedirectDelay)
	assert.Eventually(t, func() bool {
		rr := env.do(t, sid, http.MethodGet, "/v1/view", nil)
		var v handler.ViewResponse
		json.NewDecoder(rr.Body).Decode(&v)
		return v.Route == "/orders"
	}, time.Second, 5*time.Millisecond)

	rr = env.do(t, sid, http.MethodGet, "/v1/orders", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody[map[string][]map[string]any](t, rr)
	if assert.Len(t, body["orders"], 1) {
		assert.Equal(t, "Processing", body["orders"][0]["status_label"])
	}
}

func TestOrders_RequireLogin(t *testing.T) {
	env := setup(t, nil)
	rr := env.do(t, "", http.MethodGet, "/v1/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogout_ClearsCartWithoutCall(t *testing.T) {
	env := setup(t, nil)
	sid := env.login(t)
	env.do(t, sid, http.MethodPost, "/v1/cart/items", handler.AddItemRequest{ProductID: 1, Quantity: 1})

	env.srv.ResetCalls()
	rr := env.do(t, sid, http.MethodDelete, "/v1/session", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, env.srv.Calls())

	rr = env.do(t, sid, http.MethodGet, "/v1/session", nil)
	assert.False(t, decodeBody[handler.SessionResponse](t, rr).Authenticated)
	rr = env.do(t, sid, http.MethodGet, "/v1/view", nil)
	assert.Equal(t, "/", decodeBody[handler.ViewResponse](t, rr).Route)
}

func TestNavigate_UnknownRoute(t *testing.T) {
	env := setup(t, nil)
	rr := env.do(t, "", http.MethodPut, "/v1/view", handler.NavigateRequest{Route: "/admin"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

type fakeAttempts struct {
	userID int
}

func (f *fakeAttempts) Recent(ctx context.Context, userID, limit int) ([]repository.Attempt, error) {
	f.userID = userID
	return []repository.Attempt{{ID: "a1", UserID: userID, Status: checkout.StatusFailed, Error: "declined"}}, nil
}

func TestCheckoutAttempts(t *testing.T) {
	env := setup(t, nil)
	sid := env.login(t)
	rr := env.do(t, sid, http.MethodGet, "/v1/checkout/attempts", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	attempts := &fakeAttempts{}
	env = setup(t, attempts)
	sid = env.login(t)
	rr = env.do(t, sid, http.MethodGet, "/v1/checkout/attempts", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, attempts.userID)
	got := decodeBody[[]repository.Attempt](t, rr)
	if assert.Len(t, got, 1) {
		assert.Equal(t, "a1", got[0].ID)
	}
}

func TestProductDetail_AddToCart(t *testing.T) {
	env := setup(t, nil)

	rr := env.do(t, "", http.MethodPost, "/v1/products/2/cart", handler.QuantityRequest{Quantity: 1})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	sid := env.login(t)
	env.do(t, sid, http.MethodGet, "/v1/products/2", nil)
	env.srv.ResetCalls()

	rr = env.do(t, sid, http.MethodPost, "/v1/products/2/cart", handler.QuantityRequest{Quantity: 4})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, cart.MsgNotEnoughStock, decodeBody[handler.CartActionResponse](t, rr).Error)

	rr = env.do(t, sid, http.MethodPost, "/v1/products/2/cart", handler.QuantityRequest{Quantity: -1})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, cart.MsgInvalidQuantity, decodeBody[handler.CartActionResponse](t, rr).Error)
	assert.Empty(t, env.srv.Calls(), "out-of-range quantities never reach the store API")

	rr = env.do(t, sid, http.MethodPost, "/v1/products/2/cart", handler.QuantityRequest{Quantity: 3})
	assert.Equal(t, http.StatusOK, rr.Code)
	resp := decodeBody[handler.CartActionResponse](t, rr)
	assert.True(t, resp.Success)
	assert.Equal(t, "240.00", resp.Cart.Total.StringFixed(2))

	rr = env.do(t, sid, http.MethodGet, "/v1/view", nil)
	assert.Equal(t, "/cart", decodeBody[handler.ViewResponse](t, rr).Route)

	rr = env.do(t, sid, http.MethodPost, "/v1/products/99/cart", handler.QuantityRequest{Quantity: 1})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSetFilters_InvalidFieldAppliesNothing(t *testing.T) {
	env := setup(t, nil)
	sid := env.login(t)
	env.srv.ResetCalls()

	rr := env.do(t, sid, http.MethodPatch, "/v1/catalog/filters", map[string]string{
		"search": "lamp",
		"colour": "red",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, sid, http.MethodPatch, "/v1/catalog/filters", map[string]string{
		"search":    "lamp",
		"max_price": "cheap",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	env.clock.Advance(catalog.DebounceDelay)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, env.srv.CallCount("GET /products/"))

	rr = env.do(t, sid, http.MethodPost, "/v1/catalog/search", nil)
	view := decodeBody[catalog.View](t, rr)
	assert.Len(t, view.Products, 2, "the rejected search never reached the query")
}

func TestCheckout_BrowserPaymentMethod(t *testing.T) {
	env := setup(t, nil)
	sid := env.login(t)
	env.do(t, sid, http.MethodPost, "/v1/cart/items", handler.AddItemRequest{ProductID: 1, Quantity: 1})

	rr := env.do(t, sid, http.MethodPost, "/v1/checkout", handler.CheckoutRequest{
		ShippingAddress: "1 Main St",
		PaymentMethodID: "pm_from_browser",
	})
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.True(t, decodeBody[checkout.Outcome](t, rr).OrderCreated)
	if orders := env.srv.Orders(); assert.Len(t, orders, 1) {
		assert.Equal(t, "25.00", orders[0].TotalAmount.StringFixed(2))
	}
}
