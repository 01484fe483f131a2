package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gatherhq/community-api/internal/constants"
	"github.com/gatherhq/community-api/internal/database"
	"github.com/gatherhq/community-api/internal/dto"
	"github.com/gatherhq/community-api/internal/models"
	"github.com/gatherhq/community-api/internal/payment"
	"github.com/gatherhq/community-api/internal/repository"
	"github.com/gatherhq/community-api/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type communityTestEnv struct {
	db               *gorm.DB
	handler          *CommunityHandler
	communityService *services.CommunityService
}

func setupCommunityTestEnv(t *testing.T) communityTestEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Principal{},
		&models.Community{},
		&models.Membership{},
		&models.JoinRequest{},
		&models.Event{},
		&models.Registration{},
	)
	require.NoError(t, err)

	database.SetDB(db)

	coordinator := payment.NewCoordinator(payment.NewFakeGateway(), payment.Options{})
	communityService := services.NewCommunityService(repository.NewCommunityRepository(db), coordinator)
	handler := NewCommunityHandler(communityService)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		sqlDB.Close()
	})

	return communityTestEnv{
		db:               db,
		handler:          handler,
		communityService: communityService,
	}
}

func communityTestContext(method, url string, body []byte, userID uint64) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Set(constants.ContextKeyUserID, userID)

	return c, w
}

func createHandlerTestPrincipal(t *testing.T, db *gorm.DB, displayName string) *models.Principal {
	t.Helper()

	principal := &models.Principal{
		DisplayName: displayName,
		Email:       displayName + "@example.com",
	}
	require.NoError(t, db.Create(principal).Error)
	return principal
}

func TestCommunityHandler_CreateCommunity(t *testing.T) {
	env := setupCommunityTestEnv(t)
	owner := createHandlerTestPrincipal(t, env.db, "owner")

	payload := map[string]string{
		"name":       "Morning Riders",
		"visibility": "public",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	c, w := communityTestContext(http.MethodPost, "/api/communities", body, owner.ID)

	env.handler.CreateCommunity(c)

	require.Equal(t, http.StatusCreated, w.Code)

	var response dto.CommunityDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Equal(t, payload["name"], response.Name)
}

func TestCommunityHandler_CreateCommunityInvalidBody(t *testing.T) {
	env := setupCommunityTestEnv(t)
	owner := createHandlerTestPrincipal(t, env.db, "owner")

	c, w := communityTestContext(http.MethodPost, "/api/communities", []byte(`{"name":""}`), owner.ID)

	env.handler.CreateCommunity(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommunityHandler_JoinPublicCommunity(t *testing.T) {
	env := setupCommunityTestEnv(t)
	owner := createHandlerTestPrincipal(t, env.db, "owner")
	joiner := createHandlerTestPrincipal(t, env.db, "joiner")

	community, err := env.communityService.CreateCommunity(services.CreateCommunityInput{
		Name:      "Open Group",
		CreatorID: owner.ID,
	})
	require.NoError(t, err)

	c, w := communityTestContext(http.MethodPost, "/api/communities/1/join", nil, joiner.ID)
	c.Params = gin.Params{{Key: "id", Value: "1"}}

	env.handler.JoinCommunity(c)

	require.Equal(t, http.StatusCreated, w.Code)

	var member models.Membership
	require.NoError(t, env.db.Where("community_id = ? AND principal_id = ?", community.ID, joiner.ID).First(&member).Error)
	require.Equal(t, models.RoleMember, member.Role)
}

func TestCommunityHandler_JoinPrivateCommunityReturnsPending(t *testing.T) {
	env := setupCommunityTestEnv(t)
	owner := createHandlerTestPrincipal(t, env.db, "owner")
	applicant := createHandlerTestPrincipal(t, env.db, "applicant")

	_, err := env.communityService.CreateCommunity(services.CreateCommunityInput{
		Name:       "Invite Only",
		Visibility: models.CommunityPrivate,
		CreatorID:  owner.ID,
	})
	require.NoError(t, err)

	c, w := communityTestContext(http.MethodPost, "/api/communities/1/join", nil, applicant.ID)
	c.Params = gin.Params{{Key: "id", Value: "1"}}

	env.handler.JoinCommunity(c)

	require.Equal(t, http.StatusAccepted, w.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Equal(t, "pending", response["status"])
}

func TestCommunityHandler_ChangeMemberRoleForbiddenForMember(t *testing.T) {
	env := setupCommunityTestEnv(t)
	owner := createHandlerTestPrincipal(t, env.db, "owner")
	member := createHandlerTestPrincipal(t, env.db, "member")
	target := createHandlerTestPrincipal(t, env.db, "target")

	community, err := env.communityService.CreateCommunity(services.CreateCommunityInput{
		Name:      "Strict Group",
		CreatorID: owner.ID,
	})
	require.NoError(t, err)
	_, _, err = env.communityService.Join(community.ID, member.ID)
	require.NoError(t, err)
	_, _, err = env.communityService.Join(community.ID, target.ID)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]string{"role": "manager"})
	require.NoError(t, err)

	c, w := communityTestContext(http.MethodPut, "/api/communities/1/members/3/role", body, member.ID)
	c.Params = gin.Params{
		{Key: "id", Value: "1"},
		{Key: "principalId", Value: "3"},
	}

	env.handler.ChangeMemberRole(c)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCommunityHandler_LeaveAsLastOwnerRejected(t *testing.T) {
	env := setupCommunityTestEnv(t)
	owner := createHandlerTestPrincipal(t, env.db, "owner")

	_, err := env.communityService.CreateCommunity(services.CreateCommunityInput{
		Name:      "Solo Group",
		CreatorID: owner.ID,
	})
	require.NoError(t, err)

	c, w := communityTestContext(http.MethodPost, "/api/communities/1/leave", nil, owner.ID)
	c.Params = gin.Params{{Key: "id", Value: "1"}}

	env.handler.LeaveCommunity(c)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Equal(t, "INVALID_STATE", response["code"])
}
