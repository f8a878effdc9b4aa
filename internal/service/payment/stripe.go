package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentmethod"
)

// Card holds raw card details. They are sent to the payment processor only.
type Card struct {
	Number   string `json:"number"`
	ExpMonth int64  `json:"exp_month"`
	ExpYear  int64  `json:"exp_year"`
	CVC      string `json:"cvc"`
}

// Tokenizer exchanges card details for an opaque payment method id.
type Tokenizer interface {
	Tokenize(ctx context.Context, card Card) (string, error)
}

type StripeConfig struct {
	PublishableKey string
	APIURL         string // optional, for pointing at a stub
}

type StripeTokenizer struct {
	pm *paymentmethod.Client
}

func NewStripeTokenizer(cfg StripeConfig) *StripeTokenizer {
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: 30 * time.Second},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}
	return &StripeTokenizer{
		pm: &paymentmethod.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
			Key: cfg.PublishableKey,
		},
	}
}

// TokenizeError carries the processor's own message, e.g. "Your card was declined."
type TokenizeError struct {
	Message string
	Code    string
	Err     error
}

func (e *TokenizeError) Error() string {
	return fmt.Sprintf("tokenize card: %s", e.Message)
}

func (e *TokenizeError) Unwrap() error {
	return e.Err
}

func (t *StripeTokenizer) Tokenize(ctx context.Context, card Card) (string, error) {
	params := &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(card.Number),
			ExpMonth: stripe.Int64(card.ExpMonth),
			ExpYear:  stripe.Int64(card.ExpYear),
			CVC:      stripe.String(card.CVC),
		},
	}
	params.Context = ctx

	pm, err := t.pm.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			return "", &TokenizeError{Message: stripeErr.Msg, Code: string(stripeErr.Code), Err: err}
		}
		return "", &TokenizeError{Message: "network error: " + err.Error(), Err: err}
	}
	return pm.ID, nil
}
