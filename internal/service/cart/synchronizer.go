package cart

import (
	"context"
	"log/slog"
	"sync"

	"fsanano/storefront/internal/model"
	"fsanano/storefront/internal/service/storeapi"

	"github.com/shopspring/decimal"
)

const (
	MsgLoginRequired   = "Please login to add items to cart"
	MsgAddFailed       = "Failed to add to cart"
	MsgUpdateFailed    = "Failed to update cart item"
	MsgRemoveFailed    = "Failed to remove from cart"
	MsgNotEnoughStock  = "Not enough inventory"
	MsgInvalidQuantity = "Quantity must be greater than 0"
)

type API interface {
	GetCart(ctx context.Context) (*model.Cart, error)
	AddToCart(ctx context.Context, productID, quantity int) error
	UpdateCartItem(ctx context.Context, itemID, quantity int) error
	RemoveCartItem(ctx context.Context, itemID int) error
}

// Result is what a cart action reports back to the page. Failures carry a
// message fit for display; nothing is returned as a Go error.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type State struct {
	Items   []model.CartItem `json:"items"`
	Total   decimal.Decimal  `json:"total"`
	Count   int              `json:"count"`
	Loading bool             `json:"loading"`
}

// Synchronizer mirrors the server-side cart. It never computes totals itself:
// every successful mutation is followed by a full re-fetch whose response
// replaces the local state wholesale. Concurrent actions are not serialized,
// so whichever fetch response lands last wins, unless the user changed while
// it was in flight. Requests run detached from the caller's cancellation.
type Synchronizer struct {
	api    API
	logger *slog.Logger

	mu     sync.RWMutex
	state  State
	authed bool
	// gen counts user changes; a fetch started under an older one is stale.
	gen uint64
}

func NewSynchronizer(api API, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{api: api, logger: logger, state: emptyState()}
}

func emptyState() State {
	return State{Items: []model.CartItem{}, Total: decimal.Zero}
}

// SetUser reacts to the session changing. Without a user the cart is
// cleared locally and no request is made.
func (s *Synchronizer) SetUser(ctx context.Context, user *model.User) {
	s.mu.Lock()
	s.authed = user != nil
	s.gen++
	if !s.authed {
		s.state = emptyState()
	}
	s.mu.Unlock()

	if user != nil {
		_ = s.Fetch(ctx)
	}
}

func (s *Synchronizer) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authed
}

// Fetch replaces local state with the server's cart. On failure the prior
// state is kept.
func (s *Synchronizer) Fetch(ctx context.Context) error {
	s.mu.RLock()
	authed, gen := s.authed, s.gen
	s.mu.RUnlock()
	if !authed {
		s.Clear()
		return nil
	}

	s.setLoading(true)
	defer s.setLoading(false)

	c, err := s.api.GetCart(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Error("failed to fetch cart", slog.String("error", err.Error()))
		return err
	}

	items := c.Items
	if items == nil {
		items = []model.CartItem{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		s.logger.Debug("dropping cart fetched for a previous user")
		return nil
	}
	s.state.Items = items
	s.state.Total = c.Total
	s.state.Count = c.Count
	return nil
}

func (s *Synchronizer) Add(ctx context.Context, productID, quantity int) Result {
	if !s.Authenticated() {
		return Result{Error: MsgLoginRequired}
	}
	if quantity < 1 {
		return Result{Error: MsgInvalidQuantity}
	}
	if err := s.api.AddToCart(context.WithoutCancel(ctx), productID, quantity); err != nil {
		s.logger.Warn("add to cart failed", slog.Int("product_id", productID), slog.String("error", err.Error()))
		return Result{Error: storeapi.ErrorMessage(err, MsgAddFailed)}
	}
	_ = s.Fetch(ctx)
	return Result{Success: true}
}

func (s *Synchronizer) Update(ctx context.Context, itemID, quantity int) Result {
	if !s.Authenticated() {
		return Result{Error: MsgLoginRequired}
	}
	if quantity < 1 {
		return Result{Error: MsgInvalidQuantity}
	}
	if err := s.api.UpdateCartItem(context.WithoutCancel(ctx), itemID, quantity); err != nil {
		s.logger.Warn("update cart item failed", slog.Int("item_id", itemID), slog.String("error", err.Error()))
		return Result{Error: storeapi.ErrorMessage(err, MsgUpdateFailed)}
	}
	_ = s.Fetch(ctx)
	return Result{Success: true}
}

func (s *Synchronizer) Remove(ctx context.Context, itemID int) Result {
	if !s.Authenticated() {
		return Result{Error: MsgLoginRequired}
	}
	if err := s.api.RemoveCartItem(context.WithoutCancel(ctx), itemID); err != nil {
		s.logger.Warn("remove cart item failed", slog.Int("item_id", itemID), slog.String("error", err.Error()))
		return Result{Error: storeapi.ErrorMessage(err, MsgRemoveFailed)}
	}
	_ = s.Fetch(ctx)
	return Result{Success: true}
}

// ChangeQuantity is what the +/- controls call. Dropping below 1 removes the
// line; going past the product's inventory is refused without a request.
func (s *Synchronizer) ChangeQuantity(ctx context.Context, itemID, quantity int) Result {
	if quantity < 1 {
		return s.Remove(ctx, itemID)
	}
	item, ok := s.item(itemID)
	if !ok {
		_ = s.Fetch(ctx)
		if item, ok = s.item(itemID); !ok {
			return Result{Error: MsgUpdateFailed}
		}
	}
	if quantity > item.Product.InventoryCount {
		return Result{Error: MsgNotEnoughStock}
	}
	return s.Update(ctx, itemID, quantity)
}

// Clear wipes local state only; the server cart is untouched.
func (s *Synchronizer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	loading := s.state.Loading
	s.state = emptyState()
	s.state.Loading = loading
}

func (s *Synchronizer) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.Items = append([]model.CartItem(nil), s.state.Items...)
	return st
}

func (s *Synchronizer) ItemForProduct(productID int) (model.CartItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.state.Items {
		if it.Product.ID == productID {
			return it, true
		}
	}
	return model.CartItem{}, false
}

func (s *Synchronizer) item(itemID int) (model.CartItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.state.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return model.CartItem{}, false
}

func (s *Synchronizer) setLoading(v bool) {
	s.mu.Lock()
	s.state.Loading = v
	s.mu.Unlock()
}
