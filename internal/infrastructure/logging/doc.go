// Package logging provides structured logging for Gray Logic Gate.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("gate toggled", "user", "alice", "state", "OPEN")
//
// # Security
//
// Never log passwords, bearer tokens, or the JWT secret. Usernames and
// roles are fine; they are part of the audit trail anyway.
package logging
