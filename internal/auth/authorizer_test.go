package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestAuthorizer_ExpiredRejectedForEveryRole(t *testing.T) {
	current := testNow
	authz := NewAuthorizer(testSecret, WithClock(func() time.Time { return current }))

	for _, role := range []Role{RoleUser, RoleAdmin} {
		token, err := GenerateAccessToken(Identity{Username: "u", Role: role}, testSecret, time.Minute, testNow)
		if err != nil {
			t.Fatalf("GenerateAccessToken() error = %v", err)
		}

		current = testNow.Add(59 * time.Second)
		if _, err := authz.Authorize(token, CapOpenCloseGate); err != nil {
			t.Errorf("%s: Authorize() before expiry error = %v", role, err)
		}

		current = testNow.Add(time.Minute)
		if _, err := authz.Authorize(token, CapOpenCloseGate); !errors.Is(err, ErrTokenExpired) {
			t.Errorf("%s: Authorize() at expiry error = %v, want ErrTokenExpired", role, err)
		}
	}
}

func TestAuthorizer_InvalidTokens(t *testing.T) {
	authz := NewAuthorizer(testSecret)

	if _, err := authz.Authorize("", CapOpenCloseGate); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("empty token error = %v, want ErrTokenInvalid", err)
	}

	foreign, err := GenerateAccessToken(Identity{Username: "x", Role: RoleAdmin}, "some-other-secret-some-other-secret", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if _, err := authz.Authorize(foreign, CapOpenCloseGate); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("foreign token error = %v, want ErrTokenInvalid", err)
	}
}

func TestAuthorizer_UnknownRoleForbidden(t *testing.T) {
	authz := NewAuthorizer(testSecret)
	token, err := GenerateAccessToken(Identity{Username: "x", Role: "superuser"}, testSecret, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	_, err = authz.Authorize(token, CapOpenCloseGate)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("Authorize() error = %v, want ErrForbidden", err)
	}
	if strings.Contains(err.Error(), string(CapOpenCloseGate)) {
		t.Errorf("error %q leaks the capability name", err)
	}
}

func TestAuthorizer_Identify(t *testing.T) {
	authz := NewAuthorizer(testSecret)
	token, err := GenerateAccessToken(Identity{Username: "alice", Role: RoleUser}, testSecret, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	id, err := authz.Identify(token)
	if err != nil {
		t.Fatalf("Identify() error = %v", err)
	}
	if id.Username != "alice" || id.Role != RoleUser {
		t.Errorf("Identify() = %+v", id)
	}
}
