package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gatherhq/community-api/internal/authority"
	"github.com/gatherhq/community-api/internal/models"
	"github.com/gatherhq/community-api/internal/payment"
	"github.com/gatherhq/community-api/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrRegistrationNotFound  = errors.New("registration not found")
	ErrEventEnded            = errors.New("event has already ended")
	ErrEventFull             = errors.New("event is at capacity")
	ErrAlreadyRegistered     = errors.New("already registered for this event")
	ErrAmountOutOfBounds     = errors.New("chosen amount is outside the allowed range")
	ErrAmountRequired        = errors.New("a positive amount is required")
	ErrRegistrationCancelled = errors.New("registration has been cancelled")
	ErrPaymentNotRequired    = errors.New("registration does not involve a payment")
	ErrNotPaid               = errors.New("registration has not been paid")
)

// eventLocks hands out one mutex per event id so capacity checks for the
// same event are linearized across goroutines. Registrations for different
// events never contend. Entries are never pruned: the map holds one mutex
// per event ever registered against, which stays negligible next to the
// event rows themselves.
type eventLocks struct {
	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

func newEventLocks() *eventLocks {
	return &eventLocks{locks: make(map[uint64]*sync.Mutex)}
}

func (l *eventLocks) lock(eventID uint64) func() {
	l.mu.Lock()
	m, ok := l.locks[eventID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[eventID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// RegistrationService owns the registration ledger: signups against
// capacity, check-in, cancellation, payment state and webhook
// reconciliation.
type RegistrationService struct {
	registrationRepo repository.RegistrationRepository
	eventRepo        repository.EventRepository
	communityRepo    repository.CommunityRepository
	principalRepo    repository.PrincipalRepository
	coordinator      *payment.Coordinator
	locks            *eventLocks
}

// NewRegistrationService creates a new RegistrationService.
func NewRegistrationService(
	registrationRepo repository.RegistrationRepository,
	eventRepo repository.EventRepository,
	communityRepo repository.CommunityRepository,
	principalRepo repository.PrincipalRepository,
	coordinator *payment.Coordinator,
) *RegistrationService {
	return &RegistrationService{
		registrationRepo: registrationRepo,
		eventRepo:        eventRepo,
		communityRepo:    communityRepo,
		principalRepo:    principalRepo,
		coordinator:      coordinator,
		locks:            newEventLocks(),
	}
}

// RegisterResult is the outcome of a registration attempt. CheckoutURL is
// set for priced events; the registration exists either way, so a checkout
// failure can be retried without re-registering.
type RegisterResult struct {
	Registration *models.Registration
	CheckoutURL  string
}

// Register signs a principal up for an event. The capacity check and the
// insert run under a per-event lock so two concurrent signups for the last
// slot cannot both succeed. For priced events a checkout session is started
// after the slot is held; if the gateway fails the registration stays in
// payment pending and RetryCheckout picks it up.
func (s *RegistrationService) Register(ctx context.Context, eventID, principalID uint64, chosenAmountCents *int64) (*RegisterResult, error) {
	event, err := s.findVisibleEvent(eventID, principalID)
	if err != nil {
		return nil, err
	}
	if event.Ended(time.Now()) {
		return nil, ErrEventEnded
	}

	amount, paymentStatus, err := registrationAmount(event, chosenAmountCents)
	if err != nil {
		return nil, err
	}

	reg := &models.Registration{
		EventID:       eventID,
		PrincipalID:   principalID,
		Status:        models.RegistrationRegistered,
		PaymentStatus: paymentStatus,
		AmountCents:   amount,
	}

	unlock := s.locks.lock(eventID)
	err = s.registrationRepo.CreateAtomically(reg)
	unlock()
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEventFull):
			return nil, ErrEventFull
		case errors.Is(err, repository.ErrDuplicateRegistration):
			return nil, ErrAlreadyRegistered
		default:
			return nil, fmt.Errorf("failed to create registration: %w", err)
		}
	}

	result := &RegisterResult{Registration: reg}
	if paymentStatus == models.PaymentPending {
		url, err := s.startCheckout(ctx, event, reg)
		if err != nil {
			// The slot is held and payment stays pending.
			return result, err
		}
		result.CheckoutURL = url
	}
	return result, nil
}

// RetryCheckout starts a fresh checkout session for a registration whose
// earlier checkout attempt failed or expired.
func (s *RegistrationService) RetryCheckout(ctx context.Context, registrationID, principalID uint64) (*RegisterResult, error) {
	reg, err := s.findRegistration(registrationID)
	if err != nil {
		return nil, err
	}
	if reg.PrincipalID != principalID {
		return nil, ErrUnauthorized
	}
	if !reg.Active() {
		return nil, ErrRegistrationCancelled
	}
	if reg.PaymentStatus != models.PaymentPending {
		return nil, ErrPaymentNotRequired
	}

	event, err := s.findEvent(reg.EventID)
	if err != nil {
		return nil, err
	}

	result := &RegisterResult{Registration: reg}
	url, err := s.startCheckout(ctx, event, reg)
	if err != nil {
		return result, err
	}
	result.CheckoutURL = url
	return result, nil
}

// CheckIn marks a registration as present at the door. Checking in an
// already-checked-in registration is a no-op; a cancelled registration
// cannot be checked in.
func (s *RegistrationService) CheckIn(registrationID, actorID uint64) (*models.Registration, error) {
	reg, event, err := s.findRegistrationWithEvent(registrationID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAction(event.CommunityID, actorID, authority.ActionCheckIn); err != nil {
		return nil, err
	}

	switch reg.Status {
	case models.RegistrationCancelled:
		return nil, ErrRegistrationCancelled
	case models.RegistrationCheckedIn:
		return reg, nil
	}

	reg.Status = models.RegistrationCheckedIn
	if err := s.registrationRepo.Update(reg); err != nil {
		return nil, fmt.Errorf("failed to check in: %w", err)
	}
	return reg, nil
}

// UndoCheckIn reverts an accidental check-in back to registered.
func (s *RegistrationService) UndoCheckIn(registrationID, actorID uint64) (*models.Registration, error) {
	reg, event, err := s.findRegistrationWithEvent(registrationID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAction(event.CommunityID, actorID, authority.ActionCheckIn); err != nil {
		return nil, err
	}

	switch reg.Status {
	case models.RegistrationCancelled:
		return nil, ErrRegistrationCancelled
	case models.RegistrationRegistered:
		return reg, nil
	}

	reg.Status = models.RegistrationRegistered
	if err := s.registrationRepo.Update(reg); err != nil {
		return nil, fmt.Errorf("failed to undo check-in: %w", err)
	}
	return reg, nil
}

// Cancel releases a registration's capacity slot. Registrants may always
// cancel their own registration; cancelling someone else's requires the
// ledger cancellation capability. Cancelling never refunds automatically.
// A cancelled registration stays cancelled; cancelling again is a no-op.
func (s *RegistrationService) Cancel(registrationID, actorID uint64) (*models.Registration, error) {
	reg, event, err := s.findRegistrationWithEvent(registrationID)
	if err != nil {
		return nil, err
	}
	if reg.PrincipalID != actorID {
		if err := s.requireAction(event.CommunityID, actorID, authority.ActionCancelRegistration); err != nil {
			return nil, err
		}
	}

	if reg.Status == models.RegistrationCancelled {
		return reg, nil
	}

	reg.Status = models.RegistrationCancelled
	if err := s.registrationRepo.Update(reg); err != nil {
		return nil, fmt.Errorf("failed to cancel registration: %w", err)
	}
	return reg, nil
}

// MarkPaid records an out-of-band payment, typically cash at the door.
// Marking an already-paid registration is a no-op; free registrations have
// nothing to pay.
func (s *RegistrationService) MarkPaid(registrationID, actorID uint64) (*models.Registration, error) {
	reg, event, err := s.findRegistrationWithEvent(registrationID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAction(event.CommunityID, actorID, authority.ActionMarkPaid); err != nil {
		return nil, err
	}

	switch reg.PaymentStatus {
	case models.PaymentNotRequired:
		return nil, ErrPaymentNotRequired
	case models.PaymentPaid:
		return reg, nil
	case models.PaymentRefunded:
		return nil, ErrNotPaid
	}

	reg.PaymentStatus = models.PaymentPaid
	if err := s.registrationRepo.Update(reg); err != nil {
		return nil, fmt.Errorf("failed to mark paid: %w", err)
	}
	return reg, nil
}

// Refund returns a paid registration's money. Gateway-collected payments
// are refunded through the gateway; payments taken out of band carry no
// charge reference and are just marked refunded. Only paid registrations
// can be refunded.
func (s *RegistrationService) Refund(ctx context.Context, registrationID, actorID uint64) (*models.Registration, error) {
	reg, event, err := s.findRegistrationWithEvent(registrationID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAction(event.CommunityID, actorID, authority.ActionRefund); err != nil {
		return nil, err
	}

	if reg.PaymentStatus != models.PaymentPaid {
		return nil, ErrNotPaid
	}

	if reg.ChargeRef != "" {
		if _, err := s.coordinator.Refund(ctx, reg.ChargeRef); err != nil {
			return nil, err
		}
	}

	reg.PaymentStatus = models.PaymentRefunded
	if err := s.registrationRepo.Update(reg); err != nil {
		return nil, fmt.Errorf("failed to record refund: %w", err)
	}
	return reg, nil
}

// AddWalkIn registers someone at the door by name and email, reusing the
// principal record when the email is already known. The walk-in takes a
// capacity slot through the same locked path as online signups.
func (s *RegistrationService) AddWalkIn(ctx context.Context, eventID, actorID uint64, displayName, email string, amountCents *int64) (*models.Registration, error) {
	event, err := s.findVisibleEvent(eventID, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAction(event.CommunityID, actorID, authority.ActionAddWalkIn); err != nil {
		return nil, err
	}

	amount, paymentStatus, err := registrationAmount(event, amountCents)
	if err != nil {
		return nil, err
	}

	principal, err := s.principalRepo.UpsertByEmail(displayName, email)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve walk-in principal: %w", err)
	}

	reg := &models.Registration{
		EventID:       eventID,
		PrincipalID:   principal.ID,
		Status:        models.RegistrationRegistered,
		PaymentStatus: paymentStatus,
		AmountCents:   amount,
	}

	unlock := s.locks.lock(eventID)
	err = s.registrationRepo.CreateAtomically(reg)
	unlock()
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEventFull):
			return nil, ErrEventFull
		case errors.Is(err, repository.ErrDuplicateRegistration):
			return nil, ErrAlreadyRegistered
		default:
			return nil, fmt.Errorf("failed to create walk-in registration: %w", err)
		}
	}

	reg.Principal = *principal
	return reg, nil
}

// HandlePaymentNotice reconciles a gateway notice against the ledger.
// Notices are delivered at least once, so the handler is idempotent: a
// success notice for an already-paid registration changes nothing, and a
// failure notice never downgrades a recorded success.
func (s *RegistrationService) HandlePaymentNotice(notice *payment.Notice) error {
	reg, err := s.registrationRepo.FindActive(notice.EventID, notice.PrincipalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Registration was cancelled or never existed; nothing to
			// reconcile.
			return nil
		}
		return fmt.Errorf("failed to find registration: %w", err)
	}

	switch notice.Kind {
	case payment.NoticePaymentSucceeded:
		if reg.PaymentStatus == models.PaymentPaid || reg.PaymentStatus == models.PaymentRefunded {
			return nil
		}
		reg.PaymentStatus = models.PaymentPaid
		reg.ChargeRef = notice.ChargeRef
		if notice.SessionID != "" {
			reg.CheckoutSessionID = notice.SessionID
		}
		if err := s.registrationRepo.Update(reg); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
	case payment.NoticePaymentFailed:
		// The session failed or expired; the registration stays pending
		// and the registrant can start another checkout.
	}
	return nil
}

// ListForEvent returns a page of an event's registrations for door staff,
// together with the total count.
func (s *RegistrationService) ListForEvent(eventID, actorID uint64, limit, offset int) ([]models.Registration, int64, error) {
	event, err := s.findEvent(eventID)
	if err != nil {
		return nil, 0, err
	}
	if err := s.requireAction(event.CommunityID, actorID, authority.ActionCheckIn); err != nil {
		return nil, 0, err
	}

	regs, err := s.registrationRepo.ListByEvent(eventID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list registrations: %w", err)
	}
	total, err := s.registrationRepo.CountByEvent(eventID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return regs, total, nil
}

// GetOwn returns a principal's active registration for an event.
func (s *RegistrationService) GetOwn(eventID, principalID uint64) (*models.Registration, error) {
	reg, err := s.registrationRepo.FindActive(eventID, principalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to find registration: %w", err)
	}
	return reg, nil
}

func (s *RegistrationService) startCheckout(ctx context.Context, event *models.Event, reg *models.Registration) (string, error) {
	principal, err := s.principalRepo.FindByID(reg.PrincipalID)
	if err != nil {
		return "", fmt.Errorf("failed to find principal: %w", err)
	}

	session, err := s.coordinator.BeginCheckout(ctx, event, reg, principal)
	if err != nil {
		return "", err
	}

	reg.CheckoutSessionID = session.ID
	if err := s.registrationRepo.Update(reg); err != nil {
		return "", fmt.Errorf("failed to record checkout session: %w", err)
	}
	return session.URL, nil
}

func (s *RegistrationService) requireAction(communityID, actorID uint64, action authority.Action) error {
	member, err := s.communityRepo.FindMember(communityID, actorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnauthorized
		}
		return fmt.Errorf("failed to resolve membership: %w", err)
	}
	if !authority.Can(member.Role, action) {
		return ErrUnauthorized
	}
	return nil
}

func (s *RegistrationService) findEvent(id uint64) (*models.Event, error) {
	event, err := s.eventRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	return event, nil
}

// findVisibleEvent loads an event and hides private ones from principals
// outside the community, mirroring the read-side lookups.
func (s *RegistrationService) findVisibleEvent(eventID, principalID uint64) (*models.Event, error) {
	event, err := s.findEvent(eventID)
	if err != nil {
		return nil, err
	}
	if event.Visibility == models.EventPrivate {
		if _, err := s.communityRepo.FindMember(event.CommunityID, principalID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrEventNotFound
			}
			return nil, fmt.Errorf("failed to resolve membership: %w", err)
		}
	}
	return event, nil
}

func (s *RegistrationService) findRegistration(id uint64) (*models.Registration, error) {
	reg, err := s.registrationRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to find registration: %w", err)
	}
	return reg, nil
}

func (s *RegistrationService) findRegistrationWithEvent(id uint64) (*models.Registration, *models.Event, error) {
	reg, err := s.findRegistration(id)
	if err != nil {
		return nil, nil, err
	}
	event, err := s.findEvent(reg.EventID)
	if err != nil {
		return nil, nil, err
	}
	return reg, event, nil
}

// registrationAmount resolves the amount and initial payment status for a
// registration given the event's pricing mode and the registrant's chosen
// amount.
func registrationAmount(event *models.Event, chosen *int64) (*int64, models.PaymentStatus, error) {
	switch event.PricingMode {
	case models.PricingFree:
		return nil, models.PaymentNotRequired, nil
	case models.PricingFixed:
		amount := *event.AmountCents
		return &amount, models.PaymentPending, nil
	case models.PricingPayWhatYouCan:
		if chosen == nil {
			if event.SuggestedAmountCents != nil {
				amount := *event.SuggestedAmountCents
				chosen = &amount
			} else {
				return nil, "", ErrAmountRequired
			}
		}
		if *chosen <= 0 {
			return nil, "", ErrAmountRequired
		}
		if event.MinAmountCents != nil && *chosen < *event.MinAmountCents {
			return nil, "", ErrAmountOutOfBounds
		}
		if event.MaxAmountCents != nil && *chosen > *event.MaxAmountCents {
			return nil, "", ErrAmountOutOfBounds
		}
		return chosen, models.PaymentPending, nil
	default:
		return nil, "", fmt.Errorf("unknown pricing mode %q", event.PricingMode)
	}
}
