// Package audit records privileged and security-relevant actions in the
// audit_logs table: logins, account changes, toggles and overrides.
package audit
