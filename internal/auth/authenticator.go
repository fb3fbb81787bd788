package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Option customises an Authenticator or Authorizer.
type Option func(*clock)

type clock struct {
	now func() time.Time
}

// WithClock replaces time.Now, mainly so tests can step past token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *clock) { c.now = now }
}

func newClock(opts []Option) clock {
	c := clock{now: time.Now}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// UserLookup is the part of UserStore the Authenticator needs.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
}

// Authenticator checks credentials and issues identity tokens.
type Authenticator struct {
	users  UserLookup
	secret string
	ttl    time.Duration
	clock

	// dummyHash is verified for unknown usernames so that both failure
	// paths spend one Argon2id derivation.
	dummyHash func() string
}

// NewAuthenticator creates an Authenticator signing tokens with secret.
func NewAuthenticator(users UserLookup, secret string, ttl time.Duration, opts ...Option) *Authenticator {
	return &Authenticator{
		users:  users,
		secret: secret,
		ttl:    ttl,
		clock:  newClock(opts),
		dummyHash: sync.OnceValue(func() string {
			h, err := HashPassword("graygate-timing-equaliser")
			if err != nil {
				return ""
			}
			return h
		}),
	}
}

// Login verifies username and password and returns a signed token.
// Unknown users and wrong passwords both yield ErrInvalidCredentials.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return "", fmt.Errorf("looking up user: %w", err)
		}
		_, _ = VerifyPassword(password, a.dummyHash()) //nolint:errcheck // result irrelevant, cost is the point
		return "", ErrInvalidCredentials
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("verifying password for %q: %w", username, err)
	}
	if !ok {
		return "", ErrInvalidCredentials
	}

	return GenerateAccessToken(Identity{Username: user.Username, Role: user.Role}, a.secret, a.ttl, a.now())
}

// TTL returns the lifetime of issued tokens.
func (a *Authenticator) TTL() time.Duration {
	if a.ttl <= 0 {
		return DefaultTokenTTL
	}
	return a.ttl
}
