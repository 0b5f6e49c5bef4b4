package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"muenzbox/internal/models"
	"muenzbox/internal/repository"
	"muenzbox/internal/security"
)

// LoginResult is returned after a successful PIN check
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ChildID   int64     `json:"child_id,omitempty"`
	Name      string    `json:"name,omitempty"`
}

// AuthService exchanges PINs for bearer tokens
type AuthService struct {
	children *repository.ChildRepository
	tokens   *security.TokenManager
	adminPIN string
	logger   zerolog.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(children *repository.ChildRepository, tokens *security.TokenManager, adminPIN string, logger zerolog.Logger) *AuthService {
	return &AuthService{
		children: children,
		tokens:   tokens,
		adminPIN: adminPIN,
		logger:   logger.With().Str("component", "auth").Logger(),
	}
}

// ChildLogin verifies a child's PIN and issues a child token
func (s *AuthService) ChildLogin(ctx context.Context, childID int64, pin string) (*LoginResult, error) {
	child, err := s.children.GetByID(ctx, childID)
	if err != nil {
		return nil, err
	}
	if child == nil {
		return nil, ErrChildNotFound
	}
	if !security.CheckPIN(child.PINHash, pin) {
		s.logger.Warn().Int64("child_id", childID).Msg("wrong child pin")
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(models.Principal{Subject: child.ID, Role: models.RoleChild, Name: child.Name})
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, ChildID: child.ID, Name: child.Name}, nil
}

// AdminLogin verifies the admin PIN and issues an admin token
func (s *AuthService) AdminLogin(pin string) (*LoginResult, error) {
	if s.adminPIN == "" || !security.EqualPIN(s.adminPIN, pin) {
		s.logger.Warn().Msg("wrong admin pin")
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(models.Principal{Role: models.RoleAdmin, Name: "admin"})
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt}, nil
}

// Verify resolves a bearer token to its principal
func (s *AuthService) Verify(token string) (models.Principal, error) {
	p, err := s.tokens.Verify(token)
	if err != nil {
		return models.Principal{}, ErrUnauthorized
	}
	return p, nil
}
