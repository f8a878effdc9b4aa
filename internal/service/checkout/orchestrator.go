package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"fsanano/storefront/internal/model"
	"fsanano/storefront/internal/service/cart"
	"fsanano/storefront/internal/service/payment"
	"fsanano/storefront/internal/service/storeapi"

	"github.com/jonboulle/clockwork"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const (
	OrdersPath    = "/orders"
	RedirectDelay = 2 * time.Second

	MsgAuthRequired    = "Please log in to checkout"
	MsgEmptyCart       = "Your cart is empty"
	MsgAddressRequired = "Please provide a shipping address"
	MsgInProgress      = "Checkout is already in progress"

	MsgPaymentMethodRequired = "Payment method is required"
)

type OrderAPI interface {
	CreateOrder(ctx context.Context, shippingAddress, paymentMethodID string) (*model.Order, error)
}

type Cart interface {
	Snapshot() cart.State
	Clear()
}

type Navigator interface {
	Navigate(path string)
}

// Journal records checkout attempts. It is optional.
type Journal interface {
	Begin(ctx context.Context, userID int) (string, error)
	Finish(ctx context.Context, attemptID string, status Status, message string, orderID int) error
}

// Outcome is the checkout form as the page renders it. Disabled is true
// while a payment is in flight and once the order exists.
type Outcome struct {
	Status       Status       `json:"status"`
	OrderCreated bool         `json:"order_created"`
	Error        string       `json:"error,omitempty"`
	Order        *model.Order `json:"order,omitempty"`
	Button       string       `json:"button"`
	Disabled     bool         `json:"disabled"`
}

// Orchestrator drives one checkout form: tokenize the card with the payment
// processor, then hand the token and shipping address to the store API,
// which performs the charge. There is no automatic retry; after a failure
// the form can be submitted again.
type Orchestrator struct {
	tokenizer payment.Tokenizer
	orders    OrderAPI
	cart      Cart
	nav       Navigator
	journal   Journal
	clock     clockwork.Clock
	logger    *slog.Logger

	mu           sync.Mutex
	status       Status
	orderCreated bool
	errMsg       string
	order        *model.Order
	redirect     clockwork.Timer
}

func NewOrchestrator(tokenizer payment.Tokenizer, orders OrderAPI, c Cart, nav Navigator, journal Journal, clock clockwork.Clock, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		tokenizer: tokenizer,
		orders:    orders,
		cart:      c,
		nav:       nav,
		journal:   journal,
		clock:     clock,
		logger:    logger,
		status:    StatusIdle,
	}
}

// Submit tokenizes card and places the order. Neither call is cancelled
// along with ctx.
func (o *Orchestrator) Submit(ctx context.Context, user *model.User, shippingAddress string, card payment.Card) Outcome {
	return o.submit(ctx, user, shippingAddress, func(ctx context.Context) (string, error) {
		return o.tokenizer.Tokenize(ctx, card)
	})
}

// SubmitPaymentMethod places the order with a payment method the browser
// already obtained from the processor, so no card data reaches this server.
func (o *Orchestrator) SubmitPaymentMethod(ctx context.Context, user *model.User, shippingAddress, paymentMethodID string) Outcome {
	if user != nil && strings.TrimSpace(paymentMethodID) == "" {
		return o.rejected(MsgPaymentMethodRequired)
	}
	return o.submit(ctx, user, shippingAddress, func(context.Context) (string, error) {
		return paymentMethodID, nil
	})
}

func (o *Orchestrator) submit(ctx context.Context, user *model.User, shippingAddress string, paymentMethod func(context.Context) (string, error)) Outcome {
	ctx = context.WithoutCancel(ctx)
	if user == nil {
		return o.rejected(MsgAuthRequired)
	}
	snap := o.cart.Snapshot()
	if len(snap.Items) == 0 {
		return o.rejected(MsgEmptyCart)
	}

	o.mu.Lock()
	if o.status == StatusProcessing || o.orderCreated {
		o.mu.Unlock()
		return o.rejected(MsgInProgress)
	}
	if strings.TrimSpace(shippingAddress) == "" {
		o.errMsg = MsgAddressRequired
		o.mu.Unlock()
		return o.State()
	}
	o.status = StatusProcessing
	o.errMsg = ""
	o.mu.Unlock()

	attemptID := o.beginAttempt(ctx, user.ID)
	log := o.logger.With(slog.Int("user_id", user.ID), slog.String("attempt_id", attemptID))

	paymentMethodID, err := paymentMethod(ctx)
	if err != nil {
		log.Warn("card tokenization failed", slog.String("error", err.Error()))
		return o.fail(ctx, attemptID, tokenizeMessage(err))
	}

	order, err := o.orders.CreateOrder(ctx, shippingAddress, paymentMethodID)
	if err != nil {
		log.Warn("order creation failed", slog.String("error", err.Error()))
		return o.fail(ctx, attemptID, orderMessage(err))
	}

	o.mu.Lock()
	o.status = StatusCompleted
	o.orderCreated = true
	o.order = order
	o.redirect = o.clock.AfterFunc(RedirectDelay, o.leave)
	o.mu.Unlock()

	o.cart.Clear()
	o.finishAttempt(ctx, attemptID, StatusCompleted, "", order.ID)
	log.Info("order created", slog.Int("order_id", order.ID), slog.String("total", order.TotalAmount.StringFixed(2)))
	return o.State()
}

// leave runs once the success message has been shown long enough.
func (o *Orchestrator) leave() {
	o.nav.Navigate(OrdersPath)
	o.Reset()
}

// Reset returns the form to idle, as if the page were opened afresh.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status == StatusProcessing {
		return
	}
	if o.redirect != nil {
		o.redirect.Stop()
		o.redirect = nil
	}
	o.status = StatusIdle
	o.orderCreated = false
	o.errMsg = ""
	o.order = nil
}

func (o *Orchestrator) State() Outcome {
	total := o.cart.Snapshot().Total
	o.mu.Lock()
	defer o.mu.Unlock()
	return Outcome{
		Status:       o.status,
		OrderCreated: o.orderCreated,
		Error:        o.errMsg,
		Order:        o.order,
		Button:       o.buttonLocked(total.StringFixed(2)),
		Disabled:     o.status == StatusProcessing || o.orderCreated,
	}
}

func (o *Orchestrator) buttonLocked(total string) string {
	switch o.status {
	case StatusProcessing:
		return "Processing Payment..."
	case StatusCompleted:
		return "Payment Complete"
	}
	return "Place Order - $" + total
}

func (o *Orchestrator) rejected(msg string) Outcome {
	out := o.State()
	out.Error = msg
	return out
}

func (o *Orchestrator) fail(ctx context.Context, attemptID, message string) Outcome {
	o.mu.Lock()
	o.status = StatusFailed
	o.errMsg = message
	o.mu.Unlock()
	o.finishAttempt(ctx, attemptID, StatusFailed, message, 0)
	return o.State()
}

func (o *Orchestrator) beginAttempt(ctx context.Context, userID int) string {
	if o.journal == nil {
		return ""
	}
	id, err := o.journal.Begin(ctx, userID)
	if err != nil {
		o.logger.Error("failed to journal checkout attempt", slog.String("error", err.Error()))
		return ""
	}
	return id
}

func (o *Orchestrator) finishAttempt(ctx context.Context, attemptID string, status Status, message string, orderID int) {
	if o.journal == nil || attemptID == "" {
		return
	}
	if err := o.journal.Finish(ctx, attemptID, status, message, orderID); err != nil {
		o.logger.Error("failed to journal checkout outcome", slog.String("attempt_id", attemptID), slog.String("error", err.Error()))
	}
}

func tokenizeMessage(err error) string {
	var tokErr *payment.TokenizeError
	if errors.As(err, &tokErr) {
		return payment.ClassifyError(tokErr.Message)
	}
	return payment.ClassifyError(err.Error())
}

// orderMessage classifies a failed order creation. A response from the API
// contributes its error text; a failure to reach it is treated as a network
// error.
func orderMessage(err error) string {
	var apiErr *storeapi.APIError
	if errors.As(err, &apiErr) {
		return payment.ClassifyError(storeapi.ErrorMessage(err, "Order creation failed"))
	}
	return payment.ClassifyError(fmt.Sprintf("network error: %v", err))
}
