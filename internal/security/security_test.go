package security

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muenzbox/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("0123456789abcdef0123", 8*time.Hour, 12*time.Hour)

	tests := []struct {
		name      string
		principal models.Principal
		ttl       time.Duration
	}{
		{"child", models.Principal{Subject: 42, Role: models.RoleChild, Name: "Mia"}, 8 * time.Hour},
		{"admin", models.Principal{Role: models.RoleAdmin, Name: "Admin"}, 12 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now()
			token, expiresAt, err := m.Issue(tt.principal)
			require.NoError(t, err)
			assert.WithinDuration(t, before.Add(tt.ttl), expiresAt, 2*time.Second)

			got, err := m.Verify(token)
			require.NoError(t, err)
			assert.Equal(t, tt.principal, got)
		})
	}
}

func TestVerifyRejects(t *testing.T) {
	m := NewTokenManager("0123456789abcdef0123", time.Hour, time.Hour)
	other := NewTokenManager("another-secret-entirely", time.Hour, time.Hour)

	foreign, _, err := other.Issue(models.Principal{Subject: 1, Role: models.RoleChild})
	require.NoError(t, err)

	expired := NewTokenManager("0123456789abcdef0123", time.Hour, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Issue(models.Principal{Subject: 1, Role: models.RoleChild})
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "superuser",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("0123456789abcdef0123"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "0"},
	}).SignedString([]byte("0123456789abcdef0123"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"expired":      old,
		"bad role":     badRole,
		"no expiry":    noExpiry,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := m.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestPIN(t *testing.T) {
	hash, err := HashPIN("4711")
	require.NoError(t, err)

	assert.True(t, CheckPIN(hash, "4711"))
	assert.False(t, CheckPIN(hash, "4712"))
	assert.False(t, CheckPIN("not-a-hash", "4711"))

	assert.True(t, EqualPIN("1234", "1234"))
	assert.False(t, EqualPIN("1234", "12345"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.5"), "request %d", i)
	}
	assert.False(t, rl.Allow("10.0.0.5"))
	assert.True(t, rl.Allow("10.0.0.6"), "other clients are independent")

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("10.0.0.5"), "bucket refills after the window")

	now = now.Add(5 * time.Minute)
	rl.cleanup()
	assert.Empty(t, rl.visitors)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.168.1.20:51234", "192.168.1.20"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.1:80", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.9"}, "10.0.0.1:80", "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}
