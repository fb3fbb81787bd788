// Package auth provides authentication and authorisation for Gray Logic Gate.
//
// It implements a two-role model (user, admin) with:
//   - Argon2id password hashing
//   - Stateless HS256 JWT identity tokens, re-validated on every request
//   - A static role to capability table (compile-time, no database lookup)
//   - A SQLite credential store split across users and claims tables
//
// Authorizer.Authorize is the one guard every privileged operation goes
// through. Its errors never name the capability that was missing.
package auth
