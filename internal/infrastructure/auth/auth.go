// Package auth verifies staff credentials and issues the bearer tokens every
// order and menu request must carry.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
)

const (
	DefaultTokenTTL = 12 * time.Hour
	issuer          = "cafepos"
)

// Identity is the authenticated staff member attached to a request.
type Identity struct {
	Username  string
	ExpiresAt time.Time
}

type claims struct {
	jwt.RegisteredClaims
}

// Authenticator checks one configured staff account and signs HS256 tokens.
type Authenticator struct {
	secret       []byte
	username     string
	passwordHash []byte
	ttl          time.Duration
	now          func() time.Time
}

type Option func(*Authenticator)

func WithTTL(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.ttl = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// New validates its inputs. passwordHash must be a bcrypt hash.
func New(secret, username, passwordHash string, opts ...Option) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	if username == "" {
		return nil, errors.New("auth: admin username is required")
	}
	if _, err := bcrypt.Cost([]byte(passwordHash)); err != nil {
		return nil, fmt.Errorf("auth: admin password hash: %w", err)
	}
	a := &Authenticator{
		secret:       []byte(secret),
		username:     username,
		passwordHash: []byte(passwordHash),
		ttl:          DefaultTokenTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// HashPassword is used by operators to produce AUTH_ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Login returns a signed token when the credentials match.
func (a *Authenticator) Login(username, password string) (string, Identity, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	// Always run bcrypt so unknown users cost the same as wrong passwords.
	passErr := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return "", Identity{}, ErrInvalidCredentials
	}

	now := a.now()
	id := Identity{Username: a.username, ExpiresAt: now.Add(a.ttl)}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Username,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(id.ExpiresAt),
		},
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", Identity{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, id, nil
}

// Verify parses and validates a token.
func (a *Authenticator) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	id := Identity{Username: c.Subject}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
