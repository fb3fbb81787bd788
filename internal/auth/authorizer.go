package auth

// Authorizer validates identity tokens and checks capabilities.
type Authorizer struct {
	secret string
	clock
}

// NewAuthorizer creates an Authorizer that accepts tokens signed with secret.
func NewAuthorizer(secret string, opts ...Option) *Authorizer {
	return &Authorizer{secret: secret, clock: newClock(opts)}
}

// Identify validates token and returns its subject without a capability check.
func (a *Authorizer) Identify(token string) (*Identity, error) {
	claims, err := ParseToken(token, a.secret, a.now())
	if err != nil {
		return nil, err
	}
	return &Identity{Username: claims.Subject, Role: claims.Role}, nil
}

// Authorize validates token and checks that its role grants required.
//
// Errors: ErrTokenMissing or ErrTokenInvalid for unusable tokens,
// ErrTokenExpired once now >= exp, and ErrForbidden when the role is unknown
// or lacks the capability.
func (a *Authorizer) Authorize(token string, required Capability) (*Identity, error) {
	id, err := a.Identify(token)
	if err != nil {
		return nil, err
	}
	if !HasCapability(id.Role, required) {
		return nil, ErrForbidden
	}
	return id, nil
}
