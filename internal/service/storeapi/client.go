package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"fsanano/storefront/internal/model"

	"github.com/andybalholm/brotli"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxErrorBody = 64 << 10

type Config struct {
	APIURL   string
	CacheTTL time.Duration // product detail cache; zero disables it
	Timeout  time.Duration
}

type cachedProduct struct {
	product model.Product
	expiry  time.Time
}

// Client talks to the store REST API. Every call is made on behalf of the
// user whose token is carried by the context (see WithToken).
type Client struct {
	client *http.Client
	config Config

	cacheMu   sync.RWMutex
	cacheData map[int]cachedProduct
}

func NewClient(cfg Config) *Client {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		client: &http.Client{
			Transport: otelhttp.NewTransport(&AuthTransport{Base: http.DefaultTransport}),
			Timeout:   timeout,
		},
		config:    cfg,
		cacheData: make(map[int]cachedProduct),
	}
}

type tokenKey struct{}

// WithToken attaches the user's API token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// AuthTransport adds the bearer token found in the request context
type AuthTransport struct {
	Base http.RoundTripper
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if token := TokenFromContext(req.Context()); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br")
	return t.Base.RoundTrip(req)
}

func (c *Client) ListProducts(ctx context.Context, q ProductQuery) (*model.ProductPage, error) {
	var page model.ProductPage
	if err := c.do(ctx, http.MethodGet, "/products/", q.Values(), nil, &page); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return &page, nil
}

func (c *Client) GetProduct(ctx context.Context, id int) (*model.Product, error) {
	if c.config.CacheTTL > 0 {
		c.cacheMu.RLock()
		data, ok := c.cacheData[id]
		c.cacheMu.RUnlock()
		if ok && time.Now().Before(data.expiry) {
			p := data.product
			return &p, nil
		}
	}

	var p model.Product
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/products/%d/", id), nil, nil, &p); err != nil {
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}

	if c.config.CacheTTL > 0 {
		c.cacheMu.Lock()
		c.cacheData[id] = cachedProduct{product: p, expiry: time.Now().Add(c.config.CacheTTL)}
		c.cacheMu.Unlock()
	}
	return &p, nil
}

func (c *Client) GetCart(ctx context.Context) (*model.Cart, error) {
	var cart model.Cart
	if err := c.do(ctx, http.MethodGet, "/cart/", nil, nil, &cart); err != nil {
		return nil, fmt.Errorf("failed to fetch cart: %w", err)
	}
	return &cart, nil
}

func (c *Client) AddToCart(ctx context.Context, productID, quantity int) error {
	body := addToCartRequest{ProductID: productID, Quantity: quantity}
	if err := c.do(ctx, http.MethodPost, "/cart/add/", nil, body, nil); err != nil {
		return fmt.Errorf("failed to add product %d to cart: %w", productID, err)
	}
	return nil
}

func (c *Client) UpdateCartItem(ctx context.Context, itemID, quantity int) error {
	body := updateCartItemRequest{Quantity: quantity}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/cart/%d/", itemID), nil, body, nil); err != nil {
		return fmt.Errorf("failed to update cart item %d: %w", itemID, err)
	}
	return nil
}

func (c *Client) RemoveCartItem(ctx context.Context, itemID int) error {
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/cart/%d/remove/", itemID), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to remove cart item %d: %w", itemID, err)
	}
	return nil
}

func (c *Client) ListOrders(ctx context.Context) (*model.OrderPage, error) {
	var page model.OrderPage
	if err := c.do(ctx, http.MethodGet, "/orders/", nil, nil, &page); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return &page, nil
}

// CreateOrder asks the API to charge the payment method and persist the
// order. The request carries no idempotency key.
func (c *Client) CreateOrder(ctx context.Context, shippingAddress, paymentMethodID string) (*model.Order, error) {
	body := createOrderRequest{ShippingAddress: shippingAddress, PaymentMethodID: paymentMethodID}
	var order model.Order
	if err := c.do(ctx, http.MethodPost, "/orders/create/", nil, body, &order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return &order, nil
}

func (c *Client) GetProfile(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, "/users/profile/", nil, nil, &user); err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &user, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.APIURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}

	if resp.Header.Get("Content-Encoding") == "br" {
		resp.Body = &readCloserWrapper{Reader: brotli.NewReader(resp.Body), Closer: resp.Body}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return parseAPIError(resp.StatusCode, b)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type readCloserWrapper struct {
	io.Reader
	io.Closer
}

func (r *readCloserWrapper) Read(p []byte) (n int, err error) {
	return r.Reader.Read(p)
}

func (r *readCloserWrapper) Close() error {
	return r.Closer.Close()
}
