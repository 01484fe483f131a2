package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// StripeGateway implements Gateway against the Stripe API.
type StripeGateway struct {
	client *client.API
}

// NewStripeGateway creates a StripeGateway with the provided secret key.
func NewStripeGateway(apiKey string) *StripeGateway {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &StripeGateway{client: sc}
}

// CreateProduct mints a new product for an event's current title and
// description.
func (sg *StripeGateway) CreateProduct(ctx context.Context, name, description string) (string, error) {
	params := &stripe.ProductParams{
		Name: stripe.String(name),
	}
	if description != "" {
		params.Description = stripe.String(description)
	}
	params.Context = ctx

	product, err := sg.client.Products.New(params)
	if err != nil {
		return "", sg.mapStripeError("create product", err)
	}
	return product.ID, nil
}

// CreatePrice mints a new price under the product. Prices are immutable:
// callers must never attempt to edit one, only supersede it.
func (sg *StripeGateway) CreatePrice(ctx context.Context, productID string, spec PriceSpec) (string, error) {
	params := &stripe.PriceParams{
		Product:  stripe.String(productID),
		Currency: stripe.String(spec.Currency),
	}
	if spec.AmountCents != nil {
		params.UnitAmount = stripe.Int64(*spec.AmountCents)
	} else {
		custom := &stripe.PriceCustomUnitAmountParams{Enabled: stripe.Bool(true)}
		if spec.MinAmountCents != nil {
			custom.Minimum = stripe.Int64(*spec.MinAmountCents)
		}
		if spec.MaxAmountCents != nil {
			custom.Maximum = stripe.Int64(*spec.MaxAmountCents)
		}
		if spec.SuggestedAmountCents != nil {
			custom.Preset = stripe.Int64(*spec.SuggestedAmountCents)
		}
		params.CustomUnitAmount = custom
	}
	params.Context = ctx

	price, err := sg.client.Prices.New(params)
	if err != nil {
		return "", sg.mapStripeError("create price", err)
	}
	return price.ID, nil
}

// CreateCheckoutSession starts a hosted checkout for one registration.
func (sg *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	lineItem := &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(1),
	}
	if p.AmountCents != nil {
		// Registrant-chosen amount: an ad hoc price under the event's
		// product.
		lineItem.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(p.Currency),
			Product:    stripe.String(p.ProductID),
			UnitAmount: stripe.Int64(*p.AmountCents),
		}
	} else {
		lineItem.Price = stripe.String(p.PriceID)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  []*stripe.CheckoutSessionLineItemParams{lineItem},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	// Prevents a duplicate session if the network fails but Stripe
	// succeeded.
	if p.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(p.IdempotencyKey)
	}
	params.Context = ctx

	session, err := sg.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, sg.mapStripeError("create checkout session", err)
	}
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// Refund refunds the payment behind a charge reference in full.
func (sg *StripeGateway) Refund(ctx context.Context, chargeRef string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(chargeRef),
	}
	params.Context = ctx

	refund, err := sg.client.Refunds.New(params)
	if err != nil {
		return "", sg.mapStripeError("refund", err)
	}
	return refund.ID, nil
}

// CreatePayoutAccount creates an express account a community's collected
// funds are paid into.
func (sg *StripeGateway) CreatePayoutAccount(ctx context.Context, email string) (string, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeExpress)),
		Email: stripe.String(email),
	}
	params.Context = ctx

	account, err := sg.client.Accounts.New(params)
	if err != nil {
		return "", sg.mapStripeError("create payout account", err)
	}
	return account.ID, nil
}

// PayoutAccountLink returns an onboarding URL for a payout account.
func (sg *StripeGateway) PayoutAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Context = ctx

	link, err := sg.client.AccountLinks.New(params)
	if err != nil {
		return "", sg.mapStripeError("payout account link", err)
	}
	return link.URL, nil
}

// VerifyPayoutAccount reports whether the account can receive payouts.
func (sg *StripeGateway) VerifyPayoutAccount(ctx context.Context, accountID string) (bool, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	account, err := sg.client.Accounts.GetByID(accountID, params)
	if err != nil {
		return false, sg.mapStripeError("verify payout account", err)
	}
	return account.PayoutsEnabled, nil
}

// mapStripeError converts stripe-go errors into *GatewayError so stripe
// types do not leak into the service layer.
func (sg *StripeGateway) mapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		retryable := stripeErr.HTTPStatusCode >= http.StatusInternalServerError ||
			stripeErr.Code == stripe.ErrorCodeLockTimeout ||
			stripeErr.Code == stripe.ErrorCodeRateLimit
		return &GatewayError{Op: op, Retryable: retryable, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &GatewayError{Op: op, Retryable: true, Err: err}
	}
	// Network-level failures without a Stripe error body are worth a retry.
	return &GatewayError{Op: op, Retryable: true, Err: err}
}
