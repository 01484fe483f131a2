package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gatherhq/community-api/internal/models"
	"github.com/gatherhq/community-api/internal/payment"
	"github.com/stretchr/testify/require"
)

func (env eventTestEnv) createEvent(t *testing.T, input CreateEventInput) *models.Event {
	t.Helper()

	input.CommunityID = env.community.ID
	input.CreatorID = env.owner.ID
	if input.Title == "" {
		input.Title = "Test Event"
	}
	if input.StartsAt.IsZero() {
		input.StartsAt = time.Now().Add(48 * time.Hour)
	}

	event, err := env.service.CreateEvent(context.Background(), input)
	require.NoError(t, err)
	return event
}

func TestRegisterFreeEvent(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{})
	attendee := createTestPrincipal(t, env.db, "attendee")

	result, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.NoError(t, err)
	require.Equal(t, models.RegistrationRegistered, result.Registration.Status)
	require.Equal(t, models.PaymentNotRequired, result.Registration.PaymentStatus)
	require.Empty(t, result.CheckoutURL)
}

func TestRegisterFixedPriceEventStartsCheckout(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{
		PricingMode: models.PricingFixed,
		AmountCents: int64Ptr(2500),
	})
	attendee := createTestPrincipal(t, env.db, "attendee")

	result, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.NoError(t, err)
	require.Equal(t, models.PaymentPending, result.Registration.PaymentStatus)
	require.Equal(t, int64(2500), *result.Registration.AmountCents)
	require.NotEmpty(t, result.CheckoutURL)
	require.NotEmpty(t, result.Registration.CheckoutSessionID)
}

func TestRegisterDuplicate(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{})
	attendee := createTestPrincipal(t, env.db, "attendee")

	_, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.NoError(t, err)

	_, err = env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegisterAfterCancelAllowed(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{})
	attendee := createTestPrincipal(t, env.db, "attendee")

	result, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.NoError(t, err)
	_, err = env.regService.Cancel(result.Registration.ID, attendee.ID)
	require.NoError(t, err)

	_, err = env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.NoError(t, err)
}

func TestRegisterEndedEvent(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{
		StartsAt: time.Now().Add(-2 * time.Hour),
	})
	attendee := createTestPrincipal(t, env.db, "attendee")

	_, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.ErrorIs(t, err, ErrEventEnded)
}

func TestRegisterPrivateEventHiddenFromOutsiders(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{Visibility: models.EventPrivate})

	// The event does not exist as far as an outsider can tell, and
	// registering must not reveal otherwise.
	outsider := createTestPrincipal(t, env.db, "outsider")
	_, err := env.service.GetEvent(event.ID, outsider.ID)
	require.ErrorIs(t, err, ErrEventNotFound)
	_, err = env.regService.Register(context.Background(), event.ID, outsider.ID, nil)
	require.ErrorIs(t, err, ErrEventNotFound)
	_, err = env.regService.AddWalkIn(context.Background(), event.ID, outsider.ID, "Walk In", "walkin@example.com", nil)
	require.ErrorIs(t, err, ErrEventNotFound)

	member := env.addMember(t, "member", models.RoleMember)
	result, err := env.regService.Register(context.Background(), event.ID, member.ID, nil)
	require.NoError(t, err)
	require.Equal(t, models.RegistrationRegistered, result.Registration.Status)
}

func TestRegisterCapacityNeverExceeded(t *testing.T) {
	env := setupEventTestEnv(t)
	const capacity = 5
	const contenders = 20
	event := env.createEvent(t, CreateEventInput{Capacity: intPtr(capacity)})

	principals := make([]*models.Principal, contenders)
	for i := range principals {
		principals[i] = createTestPrincipal(t, env.db, fmt.Sprintf("runner-%d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.regService.Register(context.Background(), event.ID, principals[i].ID, nil)
		}(i)
	}
	wg.Wait()

	succeeded, full := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrEventFull):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, capacity, succeeded)
	require.Equal(t, contenders-capacity, full)
}

func TestRegisterPayWhatYouCanBounds(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{
		PricingMode:          models.PricingPayWhatYouCan,
		MinAmountCents:       int64Ptr(500),
		MaxAmountCents:       int64Ptr(10000),
		SuggestedAmountCents: int64Ptr(2000),
	})

	low := createTestPrincipal(t, env.db, "low")
	_, err := env.regService.Register(context.Background(), event.ID, low.ID, int64Ptr(100))
	require.ErrorIs(t, err, ErrAmountOutOfBounds)

	high := createTestPrincipal(t, env.db, "high")
	_, err = env.regService.Register(context.Background(), event.ID, high.ID, int64Ptr(20000))
	require.ErrorIs(t, err, ErrAmountOutOfBounds)

	// No chosen amount falls back to the suggestion.
	defaulted := createTestPrincipal(t, env.db, "defaulted")
	result, err := env.regService.Register(context.Background(), event.ID, defaulted.ID, nil)
	require.NoError(t, err)
	require.Equal(t, int64(2000), *result.Registration.AmountCents)

	chosen := createTestPrincipal(t, env.db, "chosen")
	result, err = env.regService.Register(context.Background(), event.ID, chosen.ID, int64Ptr(750))
	require.NoError(t, err)
	require.Equal(t, int64(750), *result.Registration.AmountCents)
}

func TestRegisterSurvivesCheckoutFailure(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{
		PricingMode: models.PricingFixed,
		AmountCents: int64Ptr(2500),
	})
	env.gateway.FailWith("create_checkout_session", errors.New("stripe is down"))

	attendee := createTestPrincipal(t, env.db, "attendee")
	result, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.Error(t, err)
	require.True(t, payment.IsGatewayError(err))
	require.NotNil(t, result)
	require.Equal(t, models.PaymentPending, result.Registration.PaymentStatus)

	// The slot is held; a later checkout attempt succeeds without a new
	// registration.
	env.gateway.FailWith("create_checkout_session", nil)
	retried, err := env.regService.RetryCheckout(context.Background(), result.Registration.ID, attendee.ID)
	require.NoError(t, err)
	require.NotEmpty(t, retried.CheckoutURL)
}

func TestCheckInToggle(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{})
	door := env.addMember(t, "door", models.RoleDoorPerson)
	attendee := createTestPrincipal(t, env.db, "attendee")

	result, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.NoError(t, err)

	reg, err := env.regService.CheckIn(result.Registration.ID, door.ID)
	require.NoError(t, err)
	require.Equal(t, models.RegistrationCheckedIn, reg.Status)

	// Idempotent.
	reg, err = env.regService.CheckIn(result.Registration.ID, door.ID)
	require.NoError(t, err)
	require.Equal(t, models.RegistrationCheckedIn, reg.Status)

	reg, err = env.regService.UndoCheckIn(result.Registration.ID, door.ID)
	require.NoError(t, err)
	require.Equal(t, models.RegistrationRegistered, reg.Status)
}

func TestCheckInAuthorization(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{})
	member := env.addMember(t, "member", models.RoleMember)
	creator := env.addMember(t, "creator", models.RoleEventCreator)
	attendee := createTestPrincipal(t, env.db, "attendee")

	result, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.NoError(t, err)

	_, err = env.regService.CheckIn(result.Registration.ID, member.ID)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = env.regService.CheckIn(result.Registration.ID, creator.ID)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = env.regService.CheckIn(result.Registration.ID, attendee.ID)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestCheckInCancelledRegistration(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{})
	attendee := createTestPrincipal(t, env.db, "attendee")

	result, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.NoError(t, err)
	_, err = env.regService.Cancel(result.Registration.ID, attendee.ID)
	require.NoError(t, err)

	_, err = env.regService.CheckIn(result.Registration.ID, env.owner.ID)
	require.ErrorIs(t, err, ErrRegistrationCancelled)
}

func TestCancelReleasesCapacity(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{Capacity: intPtr(1)})
	first := createTestPrincipal(t, env.db, "first")
	second := createTestPrincipal(t, env.db, "second")

	result, err := env.regService.Register(context.Background(), event.ID, first.ID, nil)
	require.NoError(t, err)

	_, err = env.regService.Register(context.Background(), event.ID, second.ID, nil)
	require.ErrorIs(t, err, ErrEventFull)

	_, err = env.regService.Cancel(result.Registration.ID, first.ID)
	require.NoError(t, err)

	_, err = env.regService.Register(context.Background(), event.ID, second.ID, nil)
	require.NoError(t, err)
}

func TestCancelAuthorization(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{})
	member := env.addMember(t, "member", models.RoleMember)
	door := env.addMember(t, "door", models.RoleDoorPerson)
	attendee := createTestPrincipal(t, env.db, "attendee")

	result, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.NoError(t, err)

	// Another member cannot cancel someone else's registration.
	_, err = env.regService.Cancel(result.Registration.ID, member.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	// Door staff can.
	reg, err := env.regService.Cancel(result.Registration.ID, door.ID)
	require.NoError(t, err)
	require.Equal(t, models.RegistrationCancelled, reg.Status)

	// Cancelling again is a no-op.
	_, err = env.regService.Cancel(result.Registration.ID, door.ID)
	require.NoError(t, err)
}

func TestMarkPaid(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{
		PricingMode: models.PricingFixed,
		AmountCents: int64Ptr(2500),
	})
	door := env.addMember(t, "door", models.RoleDoorPerson)
	attendee := createTestPrincipal(t, env.db, "attendee")

	result, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.NoError(t, err)

	reg, err := env.regService.MarkPaid(result.Registration.ID, door.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentPaid, reg.PaymentStatus)

	// Idempotent.
	reg, err = env.regService.MarkPaid(result.Registration.ID, door.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentPaid, reg.PaymentStatus)
}

func TestMarkPaidFreeEvent(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{})
	attendee := createTestPrincipal(t, env.db, "attendee")

	result, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.NoError(t, err)

	_, err = env.regService.MarkPaid(result.Registration.ID, env.owner.ID)
	require.ErrorIs(t, err, ErrPaymentNotRequired)
}

func TestRefund(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{
		PricingMode: models.PricingFixed,
		AmountCents: int64Ptr(2500),
	})
	door := env.addMember(t, "door", models.RoleDoorPerson)
	attendee := createTestPrincipal(t, env.db, "attendee")

	result, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.NoError(t, err)

	// Unpaid registrations cannot be refunded.
	_, err = env.regService.Refund(context.Background(), result.Registration.ID, env.owner.ID)
	require.ErrorIs(t, err, ErrNotPaid)

	// Simulate a gateway-confirmed payment.
	require.NoError(t, env.regService.HandlePaymentNotice(&payment.Notice{
		Kind:        payment.NoticePaymentSucceeded,
		EventID:     event.ID,
		PrincipalID: attendee.ID,
		ChargeRef:   "pi_456",
	}))

	// Door staff cannot refund.
	_, err = env.regService.Refund(context.Background(), result.Registration.ID, door.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	reg, err := env.regService.Refund(context.Background(), result.Registration.ID, env.owner.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentRefunded, reg.PaymentStatus)
	require.Equal(t, []string{"pi_456"}, env.gateway.Refunds)

	// Refunding again fails; the money is gone.
	_, err = env.regService.Refund(context.Background(), result.Registration.ID, env.owner.ID)
	require.ErrorIs(t, err, ErrNotPaid)
}

func TestRefundOutOfBandPayment(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{
		PricingMode: models.PricingFixed,
		AmountCents: int64Ptr(2500),
	})
	attendee := createTestPrincipal(t, env.db, "attendee")

	result, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.NoError(t, err)
	_, err = env.regService.MarkPaid(result.Registration.ID, env.owner.ID)
	require.NoError(t, err)

	// Cash payments carry no charge reference; the refund is recorded
	// without touching the gateway.
	reg, err := env.regService.Refund(context.Background(), result.Registration.ID, env.owner.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentRefunded, reg.PaymentStatus)
	require.Empty(t, env.gateway.Refunds)
}

func TestAddWalkIn(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{})
	door := env.addMember(t, "door", models.RoleDoorPerson)

	reg, err := env.regService.AddWalkIn(context.Background(), event.ID, door.ID, "Walk In", "walkin@example.com", nil)
	require.NoError(t, err)
	require.Equal(t, models.RegistrationRegistered, reg.Status)
	require.Equal(t, "walkin@example.com", reg.Principal.Email)

	// A known email reuses the existing principal.
	known := createTestPrincipal(t, env.db, "regular")
	event2 := env.createEvent(t, CreateEventInput{Title: "Second Event"})
	reg2, err := env.regService.AddWalkIn(context.Background(), event2.ID, door.ID, "Someone Else", known.Email, nil)
	require.NoError(t, err)
	require.Equal(t, known.ID, reg2.PrincipalID)
}

func TestAddWalkInAuthorization(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{})
	member := env.addMember(t, "member", models.RoleMember)

	_, err := env.regService.AddWalkIn(context.Background(), event.ID, member.ID, "Walk In", "walkin@example.com", nil)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestHandlePaymentNoticeIdempotent(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{
		PricingMode: models.PricingFixed,
		AmountCents: int64Ptr(2500),
	})
	attendee := createTestPrincipal(t, env.db, "attendee")

	_, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.NoError(t, err)

	notice := &payment.Notice{
		Kind:        payment.NoticePaymentSucceeded,
		EventID:     event.ID,
		PrincipalID: attendee.ID,
		ChargeRef:   "pi_789",
	}
	require.NoError(t, env.regService.HandlePaymentNotice(notice))

	reg, err := env.regService.GetOwn(event.ID, attendee.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentPaid, reg.PaymentStatus)
	require.Equal(t, "pi_789", reg.ChargeRef)

	// Redelivery changes nothing.
	require.NoError(t, env.regService.HandlePaymentNotice(notice))
	reg, err = env.regService.GetOwn(event.ID, attendee.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentPaid, reg.PaymentStatus)

	// A late failure notice never downgrades the success.
	require.NoError(t, env.regService.HandlePaymentNotice(&payment.Notice{
		Kind:        payment.NoticePaymentFailed,
		EventID:     event.ID,
		PrincipalID: attendee.ID,
	}))
	reg, err = env.regService.GetOwn(event.ID, attendee.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentPaid, reg.PaymentStatus)
}

func TestHandlePaymentNoticeForUnknownRegistration(t *testing.T) {
	env := setupEventTestEnv(t)

	require.NoError(t, env.regService.HandlePaymentNotice(&payment.Notice{
		Kind:        payment.NoticePaymentSucceeded,
		EventID:     999,
		PrincipalID: 999,
		ChargeRef:   "pi_000",
	}))
}

func TestListForEvent(t *testing.T) {
	env := setupEventTestEnv(t)
	event := env.createEvent(t, CreateEventInput{})
	door := env.addMember(t, "door", models.RoleDoorPerson)
	member := env.addMember(t, "member", models.RoleMember)
	attendee := createTestPrincipal(t, env.db, "attendee")

	_, err := env.regService.Register(context.Background(), event.ID, attendee.ID, nil)
	require.NoError(t, err)

	regs, total, err := env.regService.ListForEvent(event.ID, door.ID, 20, 0)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	require.Equal(t, int64(1), total)

	_, _, err = env.regService.ListForEvent(event.ID, member.ID, 20, 0)
	require.ErrorIs(t, err, ErrUnauthorized)
}
