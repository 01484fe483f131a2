package payment

import (
	"context"
	"fmt"
	"sync"
)

// FakeGateway is an in-memory Gateway for tests and local development. Each
// minted object gets a sequential id; failure modes are scriptable per
// operation.
type FakeGateway struct {
	mu   sync.Mutex
	seq  int
	Fail map[string]error // op name -> error to return

	Products  map[string]string // product id -> name
	Prices    map[string]string // price id -> product id
	Sessions  []CheckoutParams
	Refunds   []string
	Accounts  map[string]bool // account id -> payouts enabled
	LastLinks []string
}

// NewFakeGateway creates an empty FakeGateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		Fail:     make(map[string]error),
		Products: make(map[string]string),
		Prices:   make(map[string]string),
		Accounts: make(map[string]bool),
	}
}

// FailWith makes the named operation return the given error until cleared.
func (g *FakeGateway) FailWith(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.Fail, op)
		return
	}
	g.Fail[op] = err
}

func (g *FakeGateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_%04d", prefix, g.seq)
}

func (g *FakeGateway) failure(op string) error {
	if err, ok := g.Fail[op]; ok {
		return &GatewayError{Op: op, Retryable: true, Err: err}
	}
	return nil
}

func (g *FakeGateway) CreateProduct(ctx context.Context, name, description string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("create_product"); err != nil {
		return "", err
	}
	id := g.nextID("prod")
	g.Products[id] = name
	return id, nil
}

func (g *FakeGateway) CreatePrice(ctx context.Context, productID string, spec PriceSpec) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("create_price"); err != nil {
		return "", err
	}
	if _, ok := g.Products[productID]; !ok {
		return "", &GatewayError{Op: "create_price", Retryable: false, Err: fmt.Errorf("unknown product %s", productID)}
	}
	id := g.nextID("price")
	g.Prices[id] = productID
	return id, nil
}

func (g *FakeGateway) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("create_checkout_session"); err != nil {
		return nil, err
	}
	g.Sessions = append(g.Sessions, params)
	id := g.nextID("cs")
	return &CheckoutSession{ID: id, URL: "https://checkout.example/" + id}, nil
}

func (g *FakeGateway) Refund(ctx context.Context, chargeRef string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("refund"); err != nil {
		return "", err
	}
	g.Refunds = append(g.Refunds, chargeRef)
	return g.nextID("re"), nil
}

func (g *FakeGateway) CreatePayoutAccount(ctx context.Context, email string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("create_payout_account"); err != nil {
		return "", err
	}
	id := g.nextID("acct")
	g.Accounts[id] = false
	return id, nil
}

func (g *FakeGateway) PayoutAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("payout_account_link"); err != nil {
		return "", err
	}
	link := "https://onboarding.example/" + accountID
	g.LastLinks = append(g.LastLinks, link)
	return link, nil
}

func (g *FakeGateway) VerifyPayoutAccount(ctx context.Context, accountID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failure("verify_payout_account"); err != nil {
		return false, err
	}
	enabled, ok := g.Accounts[accountID]
	if !ok {
		return false, &GatewayError{Op: "verify_payout_account", Retryable: false, Err: fmt.Errorf("unknown account %s", accountID)}
	}
	return enabled, nil
}

// EnablePayouts marks an account as verified, as the provider would after
// onboarding completes.
func (g *FakeGateway) EnablePayouts(accountID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Accounts[accountID] = true
}
