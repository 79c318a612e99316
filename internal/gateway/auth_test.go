package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meridian/internal/models"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte("irrelevant"))
	require.NoError(t, err)
	return s
}

func TestSessionFromToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, jwt.MapClaims{
		"sub":   "user-42",
		"email": "user@example.com",
		"exp":   exp.Unix(),
	})

	s, err := SessionFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", s.UserID)
	assert.Equal(t, "user@example.com", s.Email)
	assert.Equal(t, token, s.AccessToken)
	assert.True(t, s.ExpiresAt.Equal(exp))
}

func TestSessionFromToken_MalformedToken(t *testing.T) {
	_, err := SessionFromToken("not-a-jwt")
	require.Error(t, err)
	assert.True(t, models.IsUnauthorized(err))
}

func TestSessionFromToken_MissingSubject(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"email": "x@example.com"})
	_, err := SessionFromToken(token)
	require.Error(t, err)
	assert.True(t, models.IsUnauthorized(err))
}

func TestSessionExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		expires time.Time
		expired bool
	}{
		{"future expiry", now.Add(time.Minute), false},
		{"exactly now", now, true},
		{"past expiry", now.Add(-time.Minute), true},
		{"zero expiry never lapses", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{ExpiresAt: tt.expires}
			assert.Equal(t, tt.expired, s.Expired(now))
		})
	}
}

func TestAnonymousSessions(t *testing.T) {
	s, err := AnonymousSessions{}.Session(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
}
