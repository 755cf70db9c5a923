package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/crypto/bcrypt"
)

const (
	// CookieName is the cookie carrying the signed session token.
	CookieName = "session"
	issuer     = "formdrop"
)

var (
	// ErrInvalidToken is returned for tokens that fail signature, issuer or expiry checks.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrInvalidPassword is returned when a password does not match its hash.
	ErrInvalidPassword = errors.New("invalid password")
)

// Manager issues and verifies HS256 session tokens and builds the matching cookies.
type Manager struct {
	key        []byte
	ttl        time.Duration
	production bool
	now        func() time.Time
}

// NewManager creates a session manager. production controls the Secure and SameSite
// attributes of session cookies.
func NewManager(secret string, ttl time.Duration, production bool) (*Manager, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %v", ttl)
	}
	return &Manager{
		key:        []byte(secret),
		ttl:        ttl,
		production: production,
		now:        time.Now,
	}, nil
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue signs a token for userID valid for the session TTL.
func (m *Manager) Issue(userID uuid.UUID) (string, time.Time, error) {
	now := m.now()
	expires := now.Add(m.ttl)

	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		Subject(userID.String()).
		JwtID(uuid.NewString()).
		IssuedAt(now).
		Expiration(expires).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build session token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, m.key))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return string(signed), expires, nil
}

// Verify checks the token and returns the user ID it was issued for.
func (m *Manager) Verify(token string) (uuid.UUID, error) {
	parsed, err := jwt.Parse([]byte(token),
		jwt.WithKey(jwa.HS256, m.key),
		jwt.WithValidate(true),
		jwt.WithIssuer(issuer),
		jwt.WithClock(jwt.ClockFunc(m.now)),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(parsed.Subject())
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return userID, nil
}

// Cookie wraps a token in the session cookie. Cross-site cookies need SameSite=None,
// which browsers only accept together with Secure, so development falls back to Lax.
func (m *Manager) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.production,
		SameSite: m.sameSite(),
	}
}

// ClearCookie expires the session cookie.
func (m *Manager) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.production,
		SameSite: m.sameSite(),
	}
}

func (m *Manager) sameSite() http.SameSite {
	if m.production {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// HashPassword hashes a password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword returns ErrInvalidPassword when password does not match hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}
