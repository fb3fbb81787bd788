package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/nerrad567/gray-logic-gate/internal/audit"
	"github.com/nerrad567/gray-logic-gate/internal/auth"
)

// RegisterInput is the payload for RegisterUser. Fields are checked in
// declaration order so the first missing one is reported.
type RegisterInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

// RegisterUser creates an account. Requires manage_users.
func (s *Service) RegisterUser(ctx context.Context, token string, in RegisterInput) (*auth.User, error) {
	id, err := s.authorize(token, auth.CapManageUsers)
	if err != nil {
		return nil, err
	}

	if err := s.validateRegister(in); err != nil {
		return nil, err
	}

	role := auth.Role(in.Role)
	if err := auth.ValidateNewUser(in.Username, role); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &auth.User{Username: in.Username, PasswordHash: hash, Role: role}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "username", user.Username, "role", user.Role, "by", id.Username)
	s.record(ctx, &audit.AuditLog{
		Action:  audit.ActionRegister,
		Actor:   id.Username,
		Target:  user.Username,
		Details: map[string]any{"role": string(user.Role), "userid": user.ID},
	})
	return user, nil
}

func (s *Service) validateRegister(in RegisterInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("validating registration: %w", err)
	}
	switch verrs[0].Field() {
	case "Username":
		return ErrMissingUsername
	case "Password":
		return ErrMissingPassword
	default:
		return ErrMissingRole
	}
}

// DeleteUsers removes every listed account in one transaction. Requires
// manage_users. An unknown id aborts the whole batch.
func (s *Service) DeleteUsers(ctx context.Context, token string, ids []int64) error {
	id, err := s.authorize(token, auth.CapManageUsers)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return ErrNoUsersSelected
	}

	if err := s.users.Delete(ctx, ids); err != nil {
		return err
	}

	s.logger.Info("users deleted", "ids", ids, "by", id.Username)
	s.record(ctx, &audit.AuditLog{
		Action:  audit.ActionDelete,
		Actor:   id.Username,
		Details: map[string]any{"userids": ids},
	})
	return nil
}

// ListUsers returns every account. Requires manage_users.
func (s *Service) ListUsers(ctx context.Context, token string) ([]auth.User, error) {
	if _, err := s.authorize(token, auth.CapManageUsers); err != nil {
		return nil, err
	}
	return s.users.List(ctx)
}

// AuditLog returns audit entries matching filter. Requires manage_users.
func (s *Service) AuditLog(ctx context.Context, token string, filter audit.Filter) (*audit.ListResult, error) {
	if _, err := s.authorize(token, auth.CapManageUsers); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return &audit.ListResult{Logs: []audit.AuditLog{}, Limit: filter.Limit, Offset: filter.Offset}, nil
	}
	return s.audit.List(ctx, filter)
}
