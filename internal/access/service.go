// Package access manages administrators and the phone blocklist.
package access

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rs/zerolog"

	"agenda/internal/db"
	"agenda/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrLastAdmin = errors.New("cannot remove the last admin")
)

// AdminRepository stores administrators.
type AdminRepository interface {
	ListAdmins(ctx context.Context) ([]model.Admin, error)
	IsAdmin(ctx context.Context, email string) (bool, error)
	AddAdmin(ctx context.Context, email, invitedBy string) error
	DeleteAdmin(ctx context.Context, id int64) error
	CountAdmins(ctx context.Context) (int, error)
}

// BlocklistRepository stores blocked phone numbers.
type BlocklistRepository interface {
	IsPhoneBlocked(ctx context.Context, phone string) (bool, error)
	BlockPhone(ctx context.Context, phone, reason, blockedBy string) error
	UnblockPhone(ctx context.Context, phone string) error
	ListBlockedPhones(ctx context.Context) ([]model.BlockedPhone, error)
}

// AccessDeniedError is returned when the acting user is not an admin.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// InvalidInputError reports a malformed email or phone.
type InvalidInputError struct {
	Field string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s is invalid", e.Field)
}

// Service implements admin and blocklist management.
type Service struct {
	admins    AdminRepository
	blocklist BlocklistRepository
	logger    zerolog.Logger
}

// NewService creates a new access control service.
func NewService(admins AdminRepository, blocklist BlocklistRepository, logger zerolog.Logger) *Service {
	return &Service{
		admins:    admins,
		blocklist: blocklist,
		logger:    logger.With().Str("component", "access").Logger(),
	}
}

// SeedAdmins adds the configured admin emails. Existing admins are kept.
func (s *Service) SeedAdmins(ctx context.Context, emails []string) error {
	for _, email := range emails {
		if strings.TrimSpace(email) == "" {
			continue
		}
		if err := s.admins.AddAdmin(ctx, email, ""); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	return s.admins.ListAdmins(ctx)
}

// IsAdmin checks if email belongs to an admin.
func (s *Service) IsAdmin(ctx context.Context, email string) (bool, error) {
	return s.admins.IsAdmin(ctx, email)
}

// InviteAdmin adds a new admin on behalf of invitedBy.
func (s *Service) InviteAdmin(ctx context.Context, email, invitedBy string) error {
	if err := s.requireAdmin(ctx, invitedBy); err != nil {
		return err
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return &InvalidInputError{Field: "email"}
	}

	if err := s.admins.AddAdmin(ctx, addr.Address, invitedBy); err != nil {
		return err
	}

	s.logger.Info().
		Str("email", addr.Address).
		Str("invited_by", invitedBy).
		Msg("admin invited")
	return nil
}

// RemoveAdmin deletes an admin. The last admin cannot be removed.
func (s *Service) RemoveAdmin(ctx context.Context, id int64, removedBy string) error {
	if err := s.requireAdmin(ctx, removedBy); err != nil {
		return err
	}

	switch err := s.admins.DeleteAdmin(ctx, id); {
	case errors.Is(err, db.ErrLastAdmin):
		return ErrLastAdmin
	case errors.Is(err, db.ErrNotFound):
		return ErrNotFound
	case err != nil:
		return err
	}

	s.logger.Info().
		Int64("admin_id", id).
		Str("removed_by", removedBy).
		Msg("admin removed")
	return nil
}

// IsBlocked checks if a phone number is in the blocklist.
func (s *Service) IsBlocked(ctx context.Context, phone string) (bool, error) {
	return s.blocklist.IsPhoneBlocked(ctx, phone)
}

// BlockPhone adds a phone number to the blocklist.
func (s *Service) BlockPhone(ctx context.Context, phone, reason, blockedBy string) error {
	if err := s.requireAdmin(ctx, blockedBy); err != nil {
		return err
	}
	if phone == "" {
		return &InvalidInputError{Field: "phone_number"}
	}

	if err := s.blocklist.BlockPhone(ctx, phone, reason, blockedBy); err != nil {
		return err
	}

	s.logger.Info().
		Str("phone", phone).
		Str("blocked_by", blockedBy).
		Str("reason", reason).
		Msg("phone blocked")
	return nil
}

// UnblockPhone removes a phone number from the blocklist.
func (s *Service) UnblockPhone(ctx context.Context, phone string) error {
	if err := s.blocklist.UnblockPhone(ctx, phone); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.logger.Info().Str("phone", phone).Msg("phone unblocked")
	return nil
}

func (s *Service) ListBlocked(ctx context.Context) ([]model.BlockedPhone, error) {
	return s.blocklist.ListBlockedPhones(ctx)
}

// requireAdmin checks the acting admin. An empty actor is the API key holder
// and is always allowed.
func (s *Service) requireAdmin(ctx context.Context, actor string) error {
	if actor == "" {
		return nil
	}
	ok, err := s.admins.IsAdmin(ctx, actor)
	if err != nil {
		return fmt.Errorf("checking admin status: %w", err)
	}
	if !ok {
		return &AccessDeniedError{Reason: fmt.Sprintf("%s is not an admin", actor)}
	}
	return nil
}
