package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"muenzbox/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims carried by every bearer token
type Claims struct {
	Role models.Role `json:"role"`
	Name string      `json:"name"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 bearer tokens. Verification needs
// no server-side state.
type TokenManager struct {
	secret   []byte
	childTTL time.Duration
	adminTTL time.Duration
	now      func() time.Time
}

// NewTokenManager creates a token manager
func NewTokenManager(secret string, childTTL, adminTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:   []byte(secret),
		childTTL: childTTL,
		adminTTL: adminTTL,
		now:      time.Now,
	}
}

// Issue signs a token for p and returns it with its expiry
func (m *TokenManager) Issue(p models.Principal) (string, time.Time, error) {
	ttl := m.childTTL
	if p.Role == models.RoleAdmin {
		ttl = m.adminTTL
	}

	now := m.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Role: p.Role,
		Name: p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.Subject, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks the signature and expiry of token and returns its principal
func (m *TokenManager) Verify(token string) (models.Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Role != models.RoleChild && claims.Role != models.RoleAdmin {
		return models.Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	subject, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}

	return models.Principal{Subject: subject, Role: claims.Role, Name: claims.Name}, nil
}
