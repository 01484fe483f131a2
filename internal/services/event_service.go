package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gatherhq/community-api/internal/authority"
	"github.com/gatherhq/community-api/internal/models"
	"github.com/gatherhq/community-api/internal/payment"
	"github.com/gatherhq/community-api/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrEventNotFound     = errors.New("event not found")
	ErrEventTitleEmpty   = errors.New("event title cannot be empty")
	ErrInvalidSchedule   = errors.New("event cannot finish before it starts")
	ErrInvalidCapacity   = errors.New("capacity must be a positive number")
	ErrInvalidFixedPrice = errors.New("fixed pricing requires a positive amount")
	ErrInvalidPwycBounds = errors.New("pay-what-you-can bounds must satisfy min <= suggested <= max")
)

// EventService owns event definitions: pricing mode, capacity, visibility
// and schedule, plus the gating for create/update/delete.
type EventService struct {
	eventRepo        repository.EventRepository
	communityRepo    repository.CommunityRepository
	registrationRepo repository.RegistrationRepository
	coordinator      *payment.Coordinator
}

// NewEventService creates a new EventService.
func NewEventService(eventRepo repository.EventRepository, communityRepo repository.CommunityRepository, registrationRepo repository.RegistrationRepository, coordinator *payment.Coordinator) *EventService {
	return &EventService{
		eventRepo:        eventRepo,
		communityRepo:    communityRepo,
		registrationRepo: registrationRepo,
		coordinator:      coordinator,
	}
}

// CreateEventInput represents parameters to create an event.
type CreateEventInput struct {
	CommunityID uint64
	Title       string
	Description string
	Location    string
	Tags        []string
	StartsAt    time.Time
	EndsAt      *time.Time
	Capacity    *int
	Visibility  models.EventVisibility

	PricingMode          models.PricingMode
	AmountCents          *int64
	MinAmountCents       *int64
	MaxAmountCents       *int64
	SuggestedAmountCents *int64

	CreatorID uint64
}

// UpdateEventInput represents updatable event fields. Nil means unchanged.
type UpdateEventInput struct {
	Title       *string
	Description *string
	Location    *string
	Tags        []string
	StartsAt    *time.Time
	EndsAt      *time.Time
	ClearEndsAt bool
	Capacity    *int
	Visibility  *models.EventVisibility

	PricingMode          *models.PricingMode
	AmountCents          *int64
	MinAmountCents       *int64
	MaxAmountCents       *int64
	SuggestedAmountCents *int64
}

// CreateEvent creates an event after checking the actor may create events in
// the community. For priced events the gateway product/price pair is minted
// after the event row exists; a gateway failure leaves the event with a
// retryable pricing draft and surfaces as a GatewayError.
func (s *EventService) CreateEvent(ctx context.Context, input CreateEventInput) (*models.Event, error) {
	role, err := s.actorRole(input.CommunityID, input.CreatorID)
	if err != nil {
		return nil, err
	}
	if !authority.Can(role, authority.ActionCreateEvent) {
		return nil, ErrUnauthorized
	}

	if strings.TrimSpace(input.Title) == "" {
		return nil, ErrEventTitleEmpty
	}
	if input.EndsAt != nil && input.EndsAt.Before(input.StartsAt) {
		return nil, ErrInvalidSchedule
	}
	if input.Capacity != nil && *input.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if input.Visibility == "" {
		input.Visibility = models.EventPublic
	}
	if input.PricingMode == "" {
		input.PricingMode = models.PricingFree
	}

	event := &models.Event{
		CommunityID:          input.CommunityID,
		Title:                input.Title,
		Description:          input.Description,
		Location:             input.Location,
		Tags:                 input.Tags,
		StartsAt:             input.StartsAt,
		EndsAt:               input.EndsAt,
		Capacity:             input.Capacity,
		Visibility:           input.Visibility,
		PricingMode:          input.PricingMode,
		AmountCents:          input.AmountCents,
		MinAmountCents:       input.MinAmountCents,
		MaxAmountCents:       input.MaxAmountCents,
		SuggestedAmountCents: input.SuggestedAmountCents,
		CreatedByID:          input.CreatorID,
	}
	if err := validatePricing(event); err != nil {
		return nil, err
	}

	if err := s.eventRepo.Create(event); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	if err := s.publishPricing(ctx, event); err != nil {
		return event, err
	}
	return event, nil
}

// UpdateEvent updates an event. Edits to the title, description or amounts
// of a priced event supersede the gateway price objects with a freshly
// minted pair; the old ones are never mutated.
func (s *EventService) UpdateEvent(ctx context.Context, eventID, actorID uint64, input UpdateEventInput) (*models.Event, error) {
	event, err := s.findEvent(eventID)
	if err != nil {
		return nil, err
	}

	role, err := s.actorRole(event.CommunityID, actorID)
	if err != nil {
		return nil, err
	}
	if !authority.Can(role, authority.ActionEditEvent) {
		return nil, ErrUnauthorized
	}

	repriced := false
	if input.Title != nil && *input.Title != event.Title {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, ErrEventTitleEmpty
		}
		event.Title = *input.Title
		repriced = true
	}
	if input.Description != nil && *input.Description != event.Description {
		event.Description = *input.Description
		repriced = true
	}
	if input.Location != nil {
		event.Location = *input.Location
	}
	if input.Tags != nil {
		event.Tags = input.Tags
	}
	if input.StartsAt != nil {
		event.StartsAt = *input.StartsAt
	}
	if input.ClearEndsAt {
		event.EndsAt = nil
	} else if input.EndsAt != nil {
		event.EndsAt = input.EndsAt
	}
	if event.EndsAt != nil && event.EndsAt.Before(event.StartsAt) {
		return nil, ErrInvalidSchedule
	}
	if input.Capacity != nil {
		if *input.Capacity <= 0 {
			return nil, ErrInvalidCapacity
		}
		event.Capacity = input.Capacity
	}
	if input.Visibility != nil {
		event.Visibility = *input.Visibility
	}

	if input.PricingMode != nil && *input.PricingMode != event.PricingMode {
		event.PricingMode = *input.PricingMode
		repriced = true
	}
	if input.AmountCents != nil {
		event.AmountCents = input.AmountCents
		repriced = true
	}
	if input.MinAmountCents != nil {
		event.MinAmountCents = input.MinAmountCents
		repriced = true
	}
	if input.MaxAmountCents != nil {
		event.MaxAmountCents = input.MaxAmountCents
		repriced = true
	}
	if input.SuggestedAmountCents != nil {
		event.SuggestedAmountCents = input.SuggestedAmountCents
		repriced = true
	}
	if err := validatePricing(event); err != nil {
		return nil, err
	}

	if repriced {
		// Also covers a switch to free pricing, which must not leave the
		// old product/price references on the row.
		s.coordinator.SupersedePricing(event)
	}

	if err := s.eventRepo.Update(event); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	if err := s.publishPricing(ctx, event); err != nil {
		return event, err
	}
	return event, nil
}

// RetryPricing re-runs the gateway mint for an event left with a pricing
// draft by an earlier failure.
func (s *EventService) RetryPricing(ctx context.Context, eventID, actorID uint64) (*models.Event, error) {
	event, err := s.findEvent(eventID)
	if err != nil {
		return nil, err
	}

	role, err := s.actorRole(event.CommunityID, actorID)
	if err != nil {
		return nil, err
	}
	if !authority.Can(role, authority.ActionEditEvent) {
		return nil, ErrUnauthorized
	}

	if err := s.publishPricing(ctx, event); err != nil {
		return event, err
	}
	return event, nil
}

// DeleteEvent cancels every active registration, refunds the gateway-paid
// ones, and removes the event. A refund failure aborts the deletion; the
// operation is safe to re-run because already-refunded registrations are
// skipped.
func (s *EventService) DeleteEvent(ctx context.Context, eventID, actorID uint64) error {
	event, err := s.findEvent(eventID)
	if err != nil {
		return err
	}

	role, err := s.actorRole(event.CommunityID, actorID)
	if err != nil {
		return err
	}
	if !authority.Can(role, authority.ActionDeleteEvent) {
		return ErrUnauthorized
	}

	regs, err := s.registrationRepo.ListActiveByEvent(eventID)
	if err != nil {
		return fmt.Errorf("failed to list registrations: %w", err)
	}
	for i := range regs {
		reg := &regs[i]
		if reg.PaymentStatus == models.PaymentPaid && reg.ChargeRef != "" {
			if _, err := s.coordinator.Refund(ctx, reg.ChargeRef); err != nil {
				return err
			}
			reg.PaymentStatus = models.PaymentRefunded
		}
		reg.Status = models.RegistrationCancelled
		if err := s.registrationRepo.Update(reg); err != nil {
			return fmt.Errorf("failed to cancel registration: %w", err)
		}
	}

	if err := s.eventRepo.Delete(eventID); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// GetEvent returns an event. Private events are hidden from principals who
// are not members of the owning community, regardless of the community's own
// visibility.
func (s *EventService) GetEvent(eventID, principalID uint64) (*models.Event, error) {
	event, err := s.findEvent(eventID)
	if err != nil {
		return nil, err
	}

	if event.Visibility == models.EventPrivate {
		role, err := s.actorRole(event.CommunityID, principalID)
		if err != nil {
			return nil, err
		}
		if role == models.RoleNone {
			return nil, ErrEventNotFound
		}
	}
	return event, nil
}

// ListCommunityEvents returns a community's events partitioned into upcoming
// and past. Private events are only included for members.
func (s *EventService) ListCommunityEvents(communityID, principalID uint64) (upcoming, past []models.Event, err error) {
	role, err := s.actorRole(communityID, principalID)
	if err != nil {
		return nil, nil, err
	}
	includePrivate := role != models.RoleNone

	upcoming, past, err = s.eventRepo.ListByCommunity(communityID, includePrivate, time.Now())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list events: %w", err)
	}
	return upcoming, past, nil
}

// IsRegistered reports whether the principal holds an active registration.
func (s *EventService) IsRegistered(eventID, principalID uint64) (bool, error) {
	_, err := s.registrationRepo.FindActive(eventID, principalID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check registration: %w", err)
}

// publishPricing mints missing gateway objects and persists whatever ids
// were obtained, even on failure, so the next attempt resumes from the
// draft.
func (s *EventService) publishPricing(ctx context.Context, event *models.Event) error {
	changed, mintErr := s.coordinator.EnsureEventPricing(ctx, event)
	if changed {
		if err := s.eventRepo.Update(event); err != nil {
			return fmt.Errorf("failed to record gateway pricing: %w", err)
		}
	}
	return mintErr
}

func (s *EventService) actorRole(communityID, principalID uint64) (models.Role, error) {
	member, err := s.communityRepo.FindMember(communityID, principalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RoleNone, nil
		}
		return models.RoleNone, fmt.Errorf("failed to resolve membership: %w", err)
	}
	return member.Role, nil
}

func (s *EventService) findEvent(id uint64) (*models.Event, error) {
	event, err := s.eventRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to find event: %w", err)
	}
	return event, nil
}

// validatePricing enforces the pricing invariants: a fixed price must be
// positive; pay-what-you-can bounds must satisfy min <= suggested <= max
// for whichever bounds are present.
func validatePricing(event *models.Event) error {
	switch event.PricingMode {
	case models.PricingFree:
		return nil
	case models.PricingFixed:
		if event.AmountCents == nil || *event.AmountCents <= 0 {
			return ErrInvalidFixedPrice
		}
		return nil
	case models.PricingPayWhatYouCan:
		min := event.MinAmountCents
		max := event.MaxAmountCents
		suggested := event.SuggestedAmountCents
		if min != nil && *min < 0 {
			return ErrInvalidPwycBounds
		}
		if min != nil && max != nil && *min > *max {
			return ErrInvalidPwycBounds
		}
		if suggested != nil {
			if min != nil && *suggested < *min {
				return ErrInvalidPwycBounds
			}
			if max != nil && *suggested > *max {
				return ErrInvalidPwycBounds
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown pricing mode %q", event.PricingMode)
	}
}
