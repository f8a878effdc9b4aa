// Package workspace keeps the per-session page state: one cart mirror, one
// checkout form, one catalog listing and the route the session is on.
package workspace

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"fsanano/storefront/internal/model"
	"fsanano/storefront/internal/service/cart"
	"fsanano/storefront/internal/service/catalog"
	"fsanano/storefront/internal/service/checkout"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const (
	RouteHome     = "/"
	RouteCart     = "/cart"
	RouteCheckout = "/checkout"
	RouteOrders   = checkout.OrdersPath
)

// CleanRoute normalizes a client-supplied route and reports whether it is
// one the storefront has.
func CleanRoute(path string) (string, bool) {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	switch path {
	case RouteHome, RouteCart, RouteCheckout, RouteOrders:
		return path, true
	}
	if id, ok := strings.CutPrefix(path, "/products/"); ok {
		if n, err := strconv.Atoi(id); err == nil && n > 0 {
			return path, true
		}
	}
	return "", false
}

func ProductRoute(id int) string {
	return fmt.Sprintf("/products/%d", id)
}

type Workspace struct {
	Cart     *cart.Synchronizer
	Checkout *checkout.Orchestrator
	Catalog  *catalog.Browser

	clock clockwork.Clock

	mu       sync.Mutex
	route    string
	userID   int
	lastSeen time.Time
	listed   bool
	detail   *model.Product
}

// Navigate moves the session to path. Opening the checkout page starts a
// fresh form.
func (w *Workspace) Navigate(path string) {
	w.mu.Lock()
	w.route = path
	w.mu.Unlock()

	if path == RouteCheckout {
		w.Checkout.Reset()
	}
}

func (w *Workspace) Route() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.route
}

// SetUser brings the cart in line with the signed-in user. The cart is only
// re-synced when the user actually changes.
func (w *Workspace) SetUser(ctx context.Context, user *model.User) {
	id := 0
	if user != nil {
		id = user.ID
	}

	w.mu.Lock()
	changed := id != w.userID
	w.userID = id
	w.mu.Unlock()

	if changed {
		w.Cart.SetUser(ctx, user)
	}
}

// Refresh reloads the listing and the cart together, the way the home page
// does on first render.
func (w *Workspace) Refresh(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := w.Catalog.Load(ctx); err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := w.Cart.Fetch(ctx); err != nil {
			return fmt.Errorf("failed to fetch cart: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// OpenCatalog loads the listing the first time the session asks for it.
// Later calls reuse what the filters and pagination have loaded since.
func (w *Workspace) OpenCatalog(ctx context.Context) error {
	w.mu.Lock()
	listed := w.listed
	w.mu.Unlock()
	if listed {
		return nil
	}

	if err := w.Refresh(ctx); err != nil {
		return err
	}

	w.mu.Lock()
	w.listed = true
	w.mu.Unlock()
	return nil
}

// OpenProduct loads a product's detail page and moves the session there.
func (w *Workspace) OpenProduct(ctx context.Context, id int) (*model.Product, error) {
	p, err := w.Catalog.Product(ctx, id)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.detail = p
	w.mu.Unlock()

	w.Navigate(ProductRoute(id))
	return p, nil
}

// AddFromDetail is the detail page's add button. The quantity is bounded by
// the inventory shown on the page and checked before any request; on success
// the session moves to the cart.
func (w *Workspace) AddFromDetail(ctx context.Context, productID, quantity int) cart.Result {
	if !w.Cart.Authenticated() {
		return cart.Result{Error: cart.MsgLoginRequired}
	}

	w.mu.Lock()
	p := w.detail
	w.mu.Unlock()
	if p == nil || p.ID != productID {
		var err error
		if p, err = w.Catalog.Product(ctx, productID); err != nil {
			return cart.Result{Error: catalog.MsgProductNotFound}
		}
	}

	switch {
	case quantity < 1:
		return cart.Result{Error: cart.MsgInvalidQuantity}
	case quantity > p.InventoryCount:
		return cart.Result{Error: cart.MsgNotEnoughStock}
	}

	res := w.Cart.Add(ctx, productID, quantity)
	if res.Success {
		w.Navigate(RouteCart)
	}
	return res
}

func (w *Workspace) touch() {
	w.mu.Lock()
	w.lastSeen = w.clock.Now()
	w.mu.Unlock()
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}
