package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gatherhq/community-api/internal/constants"
	"github.com/gatherhq/community-api/internal/models"
	"github.com/gatherhq/community-api/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrPasswordTooShort     = errors.New("password too short")
	ErrPrincipalNotFound    = errors.New("principal not found")
	ErrFailedToHashPassword = errors.New("failed to hash password")
)

// AuthService handles authentication related business logic.
type AuthService struct {
	principalRepo repository.PrincipalRepository
}

// NewAuthService creates a new AuthService.
func NewAuthService(principalRepo repository.PrincipalRepository) *AuthService {
	return &AuthService{
		principalRepo: principalRepo,
	}
}

// SignupInput represents the required information to create a new principal.
type SignupInput struct {
	DisplayName string
	Email       string
	Password    string
}

// Signup creates a new principal.
func (s *AuthService) Signup(input SignupInput) (*models.Principal, error) {
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		return nil, fmt.Errorf("display name is required")
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if len(input.Password) < constants.MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	if _, err := s.principalRepo.FindByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, ErrFailedToHashPassword
	}

	principal := &models.Principal{
		DisplayName:  displayName,
		Email:        email,
		PasswordHash: string(hashedPassword),
	}
	if err := s.principalRepo.Create(principal); err != nil {
		return nil, fmt.Errorf("failed to create principal: %w", err)
	}
	return principal, nil
}

// Login verifies credentials and returns the principal on success.
func (s *AuthService) Login(email, password string) (*models.Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	principal, err := s.principalRepo.FindByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find principal: %w", err)
	}

	if principal.PasswordHash == "" {
		// Walk-in principals are created without a password.
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return principal, nil
}

// GetPrincipal returns a principal by id.
func (s *AuthService) GetPrincipal(id uint64) (*models.Principal, error) {
	principal, err := s.principalRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to find principal: %w", err)
	}
	return principal, nil
}
