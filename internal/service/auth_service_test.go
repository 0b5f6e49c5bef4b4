package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muenzbox/internal/models"
	"muenzbox/internal/repository"
	"muenzbox/internal/security"
	"muenzbox/internal/testutil"
)

func newAuthService(t *testing.T, adminPIN string) (*AuthService, *models.Child) {
	db := testutil.NewTestDB(t)
	hash, err := security.HashPIN("1234")
	require.NoError(t, err)
	child := testutil.InsertChild(t, db, testutil.ChildFixture{PINHash: hash})

	tokens := security.NewTokenManager("test-secret-with-enough-bytes", time.Hour, 15*time.Minute)
	return NewAuthService(repository.NewChildRepository(db), tokens, adminPIN, zerolog.Nop()), child
}

func TestChildLogin(t *testing.T) {
	s, child := newAuthService(t, "9999")
	ctx := context.Background()

	result, err := s.ChildLogin(ctx, child.ID, "1234")
	require.NoError(t, err)
	assert.Equal(t, child.ID, result.ChildID)
	assert.Equal(t, "Mia", result.Name)

	p, err := s.Verify(result.Token)
	require.NoError(t, err)
	assert.True(t, p.IsChild(child.ID))
	assert.False(t, p.IsAdmin())

	_, err = s.ChildLogin(ctx, child.ID, "4321")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.ChildLogin(ctx, 999, "1234")
	assert.ErrorIs(t, err, ErrChildNotFound)
}

func TestAdminLogin(t *testing.T) {
	s, child := newAuthService(t, "9999")

	result, err := s.AdminLogin("9999")
	require.NoError(t, err)

	p, err := s.Verify(result.Token)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin())
	assert.False(t, p.IsChild(child.ID))

	_, err = s.AdminLogin("1234")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAdminLoginDisabledWithoutPIN(t *testing.T) {
	s, _ := newAuthService(t, "")
	_, err := s.AdminLogin("")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	s, _ := newAuthService(t, "9999")
	_, err := s.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
