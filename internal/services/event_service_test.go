package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gatherhq/community-api/internal/models"
	"github.com/gatherhq/community-api/internal/payment"
	"github.com/gatherhq/community-api/internal/repository"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type eventTestEnv struct {
	db          *gorm.DB
	gateway     *payment.FakeGateway
	service     *EventService
	regService  *RegistrationService
	community   *models.Community
	owner       *models.Principal
	coordinator *payment.Coordinator
}

func setupEventTestEnv(t *testing.T) eventTestEnv {
	t.Helper()

	db := setupTestDB(t)
	gateway := payment.NewFakeGateway()
	coordinator := payment.NewCoordinator(gateway, payment.Options{})

	principalRepo := repository.NewPrincipalRepository(db)
	communityRepo := repository.NewCommunityRepository(db)
	eventRepo := repository.NewEventRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)

	owner := createTestPrincipal(t, db, "owner")
	communityService := NewCommunityService(communityRepo, coordinator)
	community, err := communityService.CreateCommunity(CreateCommunityInput{
		Name:      "Trail Runners",
		CreatorID: owner.ID,
	})
	require.NoError(t, err)

	return eventTestEnv{
		db:          db,
		gateway:     gateway,
		service:     NewEventService(eventRepo, communityRepo, registrationRepo, coordinator),
		regService:  NewRegistrationService(registrationRepo, eventRepo, communityRepo, principalRepo, coordinator),
		community:   community,
		owner:       owner,
		coordinator: coordinator,
	}
}

func (env eventTestEnv) addMember(t *testing.T, displayName string, role models.Role) *models.Principal {
	t.Helper()

	principal := createTestPrincipal(t, env.db, displayName)
	require.NoError(t, env.db.Create(&models.Membership{
		CommunityID: env.community.ID,
		PrincipalID: principal.ID,
		Role:        role,
		JoinedAt:    time.Now(),
	}).Error)
	return principal
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

func TestCreateFreeEvent(t *testing.T) {
	env := setupEventTestEnv(t)

	event, err := env.service.CreateEvent(context.Background(), CreateEventInput{
		CommunityID: env.community.ID,
		Title:       "Saturday Run",
		StartsAt:    time.Now().Add(48 * time.Hour),
		CreatorID:   env.owner.ID,
	})
	require.NoError(t, err)
	require.Equal(t, models.PricingFree, event.PricingMode)
	require.Empty(t, event.GatewayProductID)
	require.Empty(t, event.GatewayPriceID)
}

func TestCreateFixedPriceEventMintsGatewayObjects(t *testing.T) {
	env := setupEventTestEnv(t)

	event, err := env.service.CreateEvent(context.Background(), CreateEventInput{
		CommunityID: env.community.ID,
		Title:       "Workshop",
		StartsAt:    time.Now().Add(48 * time.Hour),
		PricingMode: models.PricingFixed,
		AmountCents: int64Ptr(2500),
		CreatorID:   env.owner.ID,
	})
	require.NoError(t, err)
	require.NotEmpty(t, event.GatewayProductID)
	require.NotEmpty(t, event.GatewayPriceID)
}

func TestCreateEventPricingValidation(t *testing.T) {
	env := setupEventTestEnv(t)
	base := CreateEventInput{
		CommunityID: env.community.ID,
		Title:       "Workshop",
		StartsAt:    time.Now().Add(48 * time.Hour),
		CreatorID:   env.owner.ID,
	}

	fixed := base
	fixed.PricingMode = models.PricingFixed
	_, err := env.service.CreateEvent(context.Background(), fixed)
	require.ErrorIs(t, err, ErrInvalidFixedPrice)

	fixed.AmountCents = int64Ptr(0)
	_, err = env.service.CreateEvent(context.Background(), fixed)
	require.ErrorIs(t, err, ErrInvalidFixedPrice)

	pwyc := base
	pwyc.PricingMode = models.PricingPayWhatYouCan
	pwyc.MinAmountCents = int64Ptr(1000)
	pwyc.MaxAmountCents = int64Ptr(500)
	_, err = env.service.CreateEvent(context.Background(), pwyc)
	require.ErrorIs(t, err, ErrInvalidPwycBounds)

	pwyc.MaxAmountCents = int64Ptr(5000)
	pwyc.SuggestedAmountCents = int64Ptr(200)
	_, err = env.service.CreateEvent(context.Background(), pwyc)
	require.ErrorIs(t, err, ErrInvalidPwycBounds)

	pwyc.SuggestedAmountCents = int64Ptr(2000)
	_, err = env.service.CreateEvent(context.Background(), pwyc)
	require.NoError(t, err)
}

func TestCreateEventGatewayFailureLeavesRetryableDraft(t *testing.T) {
	env := setupEventTestEnv(t)
	env.gateway.FailWith("create_price", errors.New("stripe is down"))

	event, err := env.service.CreateEvent(context.Background(), CreateEventInput{
		CommunityID: env.community.ID,
		Title:       "Workshop",
		StartsAt:    time.Now().Add(48 * time.Hour),
		PricingMode: models.PricingFixed,
		AmountCents: int64Ptr(2500),
		CreatorID:   env.owner.ID,
	})
	require.Error(t, err)
	require.True(t, payment.IsGatewayError(err))
	require.NotNil(t, event)
	require.NotEmpty(t, event.GatewayProductID)
	require.Empty(t, event.GatewayPriceID)

	// The draft survives in storage and the retry resumes from it instead
	// of minting a second product.
	env.gateway.FailWith("create_price", nil)
	retried, err := env.service.RetryPricing(context.Background(), event.ID, env.owner.ID)
	require.NoError(t, err)
	require.Equal(t, event.GatewayProductID, retried.GatewayProductID)
	require.NotEmpty(t, retried.GatewayPriceID)
	require.Len(t, env.gateway.Products, 1)
}

func TestUpdateEventSupersedesPricing(t *testing.T) {
	env := setupEventTestEnv(t)

	event, err := env.service.CreateEvent(context.Background(), CreateEventInput{
		CommunityID: env.community.ID,
		Title:       "Workshop",
		StartsAt:    time.Now().Add(48 * time.Hour),
		PricingMode: models.PricingFixed,
		AmountCents: int64Ptr(2500),
		CreatorID:   env.owner.ID,
	})
	require.NoError(t, err)
	oldPriceID := event.GatewayPriceID

	newTitle := "Advanced Workshop"
	updated, err := env.service.UpdateEvent(context.Background(), event.ID, env.owner.ID, UpdateEventInput{
		Title:       &newTitle,
		AmountCents: int64Ptr(3000),
	})
	require.NoError(t, err)
	require.NotEmpty(t, updated.GatewayPriceID)
	require.NotEqual(t, oldPriceID, updated.GatewayPriceID)

	// A location-only edit keeps the published price.
	location := "Community Hall"
	unchanged, err := env.service.UpdateEvent(context.Background(), event.ID, env.owner.ID, UpdateEventInput{
		Location: &location,
	})
	require.NoError(t, err)
	require.Equal(t, updated.GatewayPriceID, unchanged.GatewayPriceID)
}

func TestUpdateEventToFreeClearsGatewayRefs(t *testing.T) {
	env := setupEventTestEnv(t)

	event, err := env.service.CreateEvent(context.Background(), CreateEventInput{
		CommunityID: env.community.ID,
		Title:       "Fundraiser",
		StartsAt:    time.Now().Add(48 * time.Hour),
		PricingMode: models.PricingFixed,
		AmountCents: int64Ptr(2500),
		CreatorID:   env.owner.ID,
	})
	require.NoError(t, err)
	require.NotEmpty(t, event.GatewayPriceID)

	free := models.PricingFree
	updated, err := env.service.UpdateEvent(context.Background(), event.ID, env.owner.ID, UpdateEventInput{
		PricingMode: &free,
	})
	require.NoError(t, err)
	require.Empty(t, updated.GatewayProductID)
	require.Empty(t, updated.GatewayPriceID)

	var stored models.Event
	require.NoError(t, env.db.First(&stored, event.ID).Error)
	require.Empty(t, stored.GatewayProductID)
	require.Empty(t, stored.GatewayPriceID)
}

func TestUpdateEventAuthorization(t *testing.T) {
	env := setupEventTestEnv(t)
	doorPerson := env.addMember(t, "door", models.RoleDoorPerson)
	creator := env.addMember(t, "creator", models.RoleEventCreator)

	event, err := env.service.CreateEvent(context.Background(), CreateEventInput{
		CommunityID: env.community.ID,
		Title:       "Workshop",
		StartsAt:    time.Now().Add(48 * time.Hour),
		CreatorID:   creator.ID,
	})
	require.NoError(t, err)

	newTitle := "Renamed"
	_, err = env.service.UpdateEvent(context.Background(), event.ID, doorPerson.ID, UpdateEventInput{Title: &newTitle})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.service.UpdateEvent(context.Background(), event.ID, creator.ID, UpdateEventInput{Title: &newTitle})
	require.NoError(t, err)
}

func TestDeleteEventCancelsAndRefunds(t *testing.T) {
	env := setupEventTestEnv(t)

	event, err := env.service.CreateEvent(context.Background(), CreateEventInput{
		CommunityID: env.community.ID,
		Title:       "Workshop",
		StartsAt:    time.Now().Add(48 * time.Hour),
		PricingMode: models.PricingFixed,
		AmountCents: int64Ptr(2500),
		CreatorID:   env.owner.ID,
	})
	require.NoError(t, err)

	// One registration paid through the gateway, one paid in cash, one
	// unpaid.
	gatewayPaid := createTestPrincipal(t, env.db, "cardholder")
	cashPaid := createTestPrincipal(t, env.db, "cash")
	unpaid := createTestPrincipal(t, env.db, "unpaid")
	regs := []*models.Registration{
		{EventID: event.ID, PrincipalID: gatewayPaid.ID, Status: models.RegistrationRegistered, PaymentStatus: models.PaymentPaid, ChargeRef: "pi_123"},
		{EventID: event.ID, PrincipalID: cashPaid.ID, Status: models.RegistrationRegistered, PaymentStatus: models.PaymentPaid},
		{EventID: event.ID, PrincipalID: unpaid.ID, Status: models.RegistrationRegistered, PaymentStatus: models.PaymentPending},
	}
	for _, reg := range regs {
		require.NoError(t, env.db.Create(reg).Error)
	}

	require.NoError(t, env.service.DeleteEvent(context.Background(), event.ID, env.owner.ID))

	// Only the gateway payment is refunded through the gateway.
	require.Equal(t, []string{"pi_123"}, env.gateway.Refunds)

	var all []models.Registration
	require.NoError(t, env.db.Unscoped().Where("event_id = ?", event.ID).Find(&all).Error)
	for _, reg := range all {
		require.Equal(t, models.RegistrationCancelled, reg.Status)
	}

	_, err = env.service.GetEvent(event.ID, env.owner.ID)
	require.ErrorIs(t, err, ErrEventNotFound)
}

func TestDeleteEventRequiresAuthority(t *testing.T) {
	env := setupEventTestEnv(t)
	member := env.addMember(t, "member", models.RoleMember)

	event, err := env.service.CreateEvent(context.Background(), CreateEventInput{
		CommunityID: env.community.ID,
		Title:       "Workshop",
		StartsAt:    time.Now().Add(48 * time.Hour),
		CreatorID:   env.owner.ID,
	})
	require.NoError(t, err)

	require.ErrorIs(t, env.service.DeleteEvent(context.Background(), event.ID, member.ID), ErrUnauthorized)
}

func TestListCommunityEventsVisibility(t *testing.T) {
	env := setupEventTestEnv(t)
	member := env.addMember(t, "member", models.RoleMember)
	outsider := createTestPrincipal(t, env.db, "outsider")

	_, err := env.service.CreateEvent(context.Background(), CreateEventInput{
		CommunityID: env.community.ID,
		Title:       "Open Day",
		StartsAt:    time.Now().Add(24 * time.Hour),
		CreatorID:   env.owner.ID,
	})
	require.NoError(t, err)
	_, err = env.service.CreateEvent(context.Background(), CreateEventInput{
		CommunityID: env.community.ID,
		Title:       "Members Social",
		StartsAt:    time.Now().Add(24 * time.Hour),
		Visibility:  models.EventPrivate,
		CreatorID:   env.owner.ID,
	})
	require.NoError(t, err)
	_, err = env.service.CreateEvent(context.Background(), CreateEventInput{
		CommunityID: env.community.ID,
		Title:       "Last Month",
		StartsAt:    time.Now().Add(-24 * time.Hour),
		CreatorID:   env.owner.ID,
	})
	require.NoError(t, err)

	upcoming, past, err := env.service.ListCommunityEvents(env.community.ID, member.ID)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	require.Len(t, past, 1)

	upcoming, past, err = env.service.ListCommunityEvents(env.community.ID, outsider.ID)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	require.Len(t, past, 1)
	require.Equal(t, "Open Day", upcoming[0].Title)
}
