package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gatherhq/community-api/internal/models"
)

// DefaultCallTimeout bounds every gateway call so a hung provider surfaces
// as a GatewayError instead of stalling a ledger operation.
const DefaultCallTimeout = 15 * time.Second

// Options configures a Coordinator.
type Options struct {
	Currency           string
	CallTimeout        time.Duration
	CheckoutSuccessURL string
	CheckoutCancelURL  string
	PayoutRefreshURL   string
	PayoutReturnURL    string
}

// Coordinator drives the payment gateway on behalf of the event registry and
// the registration ledger.
type Coordinator struct {
	gateway Gateway
	opts    Options
}

// NewCoordinator creates a Coordinator over the given gateway.
func NewCoordinator(gateway Gateway, opts Options) *Coordinator {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &Coordinator{gateway: gateway, opts: opts}
}

func (c *Coordinator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.CallTimeout)
}

// EnsureEventPricing mints whatever gateway objects the event's current
// pricing still lacks and records their ids on the event. A product id
// without a price id is a draft left by an earlier partial failure; calling
// again resumes from the draft instead of orphaning another product, so the
// operation is safe to retry. It reports whether the event was modified;
// persisting the event is the caller's job.
func (c *Coordinator) EnsureEventPricing(ctx context.Context, event *models.Event) (bool, error) {
	if !event.Priced() {
		return false, nil
	}

	changed := false
	if event.GatewayProductID == "" {
		cctx, cancel := c.callCtx(ctx)
		productID, err := c.gateway.CreateProduct(cctx, event.Title, event.Description)
		cancel()
		if err != nil {
			return changed, err
		}
		event.GatewayProductID = productID
		changed = true
	}

	if event.GatewayPriceID == "" {
		spec := PriceSpec{Currency: c.opts.Currency}
		switch event.PricingMode {
		case models.PricingFixed:
			spec.AmountCents = event.AmountCents
		case models.PricingPayWhatYouCan:
			spec.MinAmountCents = event.MinAmountCents
			spec.MaxAmountCents = event.MaxAmountCents
			spec.SuggestedAmountCents = event.SuggestedAmountCents
		}

		cctx, cancel := c.callCtx(ctx)
		priceID, err := c.gateway.CreatePrice(cctx, event.GatewayProductID, spec)
		cancel()
		if err != nil {
			// The caller persists the draft product id so the next
			// attempt resumes here.
			return changed, err
		}
		event.GatewayPriceID = priceID
		changed = true
	}

	return changed, nil
}

// SupersedePricing clears the event's gateway references so the next
// EnsureEventPricing mints a fresh product/price pair. Called when a priced
// event's title, description or amounts change; gateway objects are never
// edited in place.
func (c *Coordinator) SupersedePricing(event *models.Event) {
	event.GatewayProductID = ""
	event.GatewayPriceID = ""
}

// BeginCheckout starts a checkout session for a registration. The metadata
// keys the asynchronous confirmation back to the registration.
func (c *Coordinator) BeginCheckout(ctx context.Context, event *models.Event, reg *models.Registration, principal *models.Principal) (*CheckoutSession, error) {
	if event.GatewayPriceID == "" {
		return nil, &GatewayError{
			Op:        "begin checkout",
			Retryable: true,
			Err:       errors.New("event has no published price"),
		}
	}

	params := CheckoutParams{
		Currency:       c.opts.Currency,
		SuccessURL:     c.opts.CheckoutSuccessURL,
		CancelURL:      c.opts.CheckoutCancelURL,
		CustomerEmail:  principal.Email,
		IdempotencyKey: fmt.Sprintf("registration-%d-checkout", reg.ID),
		Metadata: map[string]string{
			MetadataEventID:        fmt.Sprintf("%d", event.ID),
			MetadataPrincipalID:    fmt.Sprintf("%d", reg.PrincipalID),
			MetadataRegistrationID: fmt.Sprintf("%d", reg.ID),
		},
	}
	if event.PricingMode == models.PricingPayWhatYouCan && reg.AmountCents != nil {
		params.ProductID = event.GatewayProductID
		params.AmountCents = reg.AmountCents
	} else {
		params.PriceID = event.GatewayPriceID
	}

	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.gateway.CreateCheckoutSession(cctx, params)
}

// Refund refunds the payment behind a charge reference and returns the
// refund id.
func (c *Coordinator) Refund(ctx context.Context, chargeRef string) (string, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.gateway.Refund(cctx, chargeRef)
}

// CreatePayoutAccount creates a payout account for a community and returns
// its id together with the onboarding URL.
func (c *Coordinator) CreatePayoutAccount(ctx context.Context, email string) (accountID, onboardingURL string, err error) {
	cctx, cancel := c.callCtx(ctx)
	accountID, err = c.gateway.CreatePayoutAccount(cctx, email)
	cancel()
	if err != nil {
		return "", "", err
	}

	cctx, cancel = c.callCtx(ctx)
	onboardingURL, err = c.gateway.PayoutAccountLink(cctx, accountID, c.opts.PayoutRefreshURL, c.opts.PayoutReturnURL)
	cancel()
	if err != nil {
		// The account exists; callers persist its id and retry the link.
		return accountID, "", err
	}
	return accountID, onboardingURL, nil
}

// PayoutAccountLink returns a fresh onboarding URL for an existing account.
func (c *Coordinator) PayoutAccountLink(ctx context.Context, accountID string) (string, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.gateway.PayoutAccountLink(cctx, accountID, c.opts.PayoutRefreshURL, c.opts.PayoutReturnURL)
}

// VerifyPayoutAccount reports whether the account can receive payouts.
func (c *Coordinator) VerifyPayoutAccount(ctx context.Context, accountID string) (bool, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	return c.gateway.VerifyPayoutAccount(cctx, accountID)
}
