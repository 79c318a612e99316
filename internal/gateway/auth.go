package gateway

import (
	"context"
	"time"

	"meridian/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the authenticated viewer's session. A nil session means the
// viewer is anonymous, which is a valid state, not an error.
type Session struct {
	UserID      string
	Email       string
	AccessToken string
	ExpiresAt   time.Time
}

// Expired reports whether the session's access token has lapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionProvider yields the current session. Injected rather than read from
// process-wide state so components can be tested with fixed sessions.
type SessionProvider interface {
	Session(ctx context.Context) (*Session, error)
}

// AnonymousSessions always reports an anonymous viewer.
type AnonymousSessions struct{}

func (AnonymousSessions) Session(ctx context.Context) (*Session, error) {
	return nil, nil
}

// StaticSessions returns a fixed session. Used by tests and by embedders that
// manage token refresh themselves.
type StaticSessions struct {
	S *Session
}

func (p StaticSessions) Session(ctx context.Context) (*Session, error) {
	return p.S, nil
}

// SessionFromToken decodes the access token's claims into a Session. The
// token is not signature-verified here: verification is the backend's job,
// the client only needs the subject and expiry for display and scoping.
func SessionFromToken(accessToken string) (*Session, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return nil, models.NewUnauthorizedError("malformed access token")
	}

	s := &Session{AccessToken: accessToken}
	if sub, err := claims.GetSubject(); err == nil {
		s.UserID = sub
	}
	if email, ok := claims["email"].(string); ok {
		s.Email = email
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	if s.UserID == "" {
		return nil, models.NewUnauthorizedError("access token has no subject")
	}
	return s, nil
}
