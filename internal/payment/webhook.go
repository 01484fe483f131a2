package payment

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Metadata keys attached to checkout sessions so webhook events can be keyed
// back to the registration they pay for.
const (
	MetadataEventID        = "event_id"
	MetadataPrincipalID    = "principal_id"
	MetadataRegistrationID = "registration_id"
)

type NoticeKind string

const (
	NoticePaymentSucceeded NoticeKind = "payment_succeeded"
	NoticePaymentFailed    NoticeKind = "payment_failed"
)

// Notice is a normalized payment event from the gateway, keyed by the
// (event, principal) metadata the checkout session was created with.
type Notice struct {
	Kind        NoticeKind
	EventID     uint64
	PrincipalID uint64
	SessionID   string
	ChargeRef   string
}

// ErrIgnoredEvent marks webhook event types the ledger does not consume.
var ErrIgnoredEvent = fmt.Errorf("webhook event type not handled")

// ParseWebhook verifies the webhook signature and normalizes the payload.
// Returns ErrIgnoredEvent for event types the ledger does not care about.
func ParseWebhook(payload []byte, sigHeader, secret string) (*Notice, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}

	var kind NoticeKind
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		kind = NoticePaymentSucceeded
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		kind = NoticePaymentFailed
	default:
		return nil, ErrIgnoredEvent
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}

	// Completed sessions that still await asynchronous payment settle via a
	// later async_payment_succeeded event.
	if kind == NoticePaymentSucceeded && session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		return nil, ErrIgnoredEvent
	}

	eventID, err := strconv.ParseUint(session.Metadata[MetadataEventID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("webhook session missing %s metadata", MetadataEventID)
	}
	principalID, err := strconv.ParseUint(session.Metadata[MetadataPrincipalID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("webhook session missing %s metadata", MetadataPrincipalID)
	}

	notice := &Notice{
		Kind:        kind,
		EventID:     eventID,
		PrincipalID: principalID,
		SessionID:   session.ID,
	}
	if session.PaymentIntent != nil {
		notice.ChargeRef = session.PaymentIntent.ID
	}
	return notice, nil
}
