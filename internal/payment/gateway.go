// Package payment adapts the external payment gateway for the registration
// ledger. Gateway price objects are immutable once created: edits mint new
// product/price pairs and supersede the old references, never mutate them.
package payment

import (
	"context"
	"errors"
	"fmt"
)

// PriceSpec describes the price object to mint for an event. A nil
// AmountCents means a customer-chosen amount (pay what you can), optionally
// bounded and with a suggested preset.
type PriceSpec struct {
	AmountCents          *int64
	MinAmountCents       *int64
	MaxAmountCents       *int64
	SuggestedAmountCents *int64
	Currency             string
}

// CheckoutParams carries everything needed to start a checkout session.
// Metadata must identify the registration so the webhook can reconcile the
// asynchronous result.
type CheckoutParams struct {
	PriceID string

	// ProductID and AmountCents are used instead of PriceID when the
	// registrant chose their own amount.
	ProductID   string
	AmountCents *int64
	Currency    string

	SuccessURL     string
	CancelURL      string
	CustomerEmail  string
	Metadata       map[string]string
	IdempotencyKey string
}

// CheckoutSession is the gateway's reference to an in-flight payment.
type CheckoutSession struct {
	ID  string
	URL string
}

// Gateway abstracts the payment processor. Implementations must translate
// provider errors into *GatewayError so callers can tell retryable failures
// from terminal ones.
type Gateway interface {
	CreateProduct(ctx context.Context, name, description string) (string, error)
	CreatePrice(ctx context.Context, productID string, spec PriceSpec) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	Refund(ctx context.Context, chargeRef string) (string, error)
	CreatePayoutAccount(ctx context.Context, email string) (string, error)
	PayoutAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	VerifyPayoutAccount(ctx context.Context, accountID string) (bool, error)
}

// GatewayError wraps a failed gateway call. Retryable distinguishes provider
// outages and timeouts from terminal rejections.
type GatewayError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsGatewayError reports whether err originated from a gateway call.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// IsRetryable reports whether err is a gateway failure worth retrying.
func IsRetryable(err error) bool {
	var ge *GatewayError
	if !errors.As(err, &ge) {
		return false
	}
	return ge.Retryable
}
