// Package service contains the authentication business logic.
//
// AuthService sits between the HTTP handlers and the repository:
//
//	handler (HTTP) → AuthService (reconciliation rules) → UserRepository (DB)
//
// It knows nothing about cookies, sessions, or redirects — those are the
// handlers' concern.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sakif/guildhub/internal/apperror"
	"github.com/sakif/guildhub/internal/auth"
	"github.com/sakif/guildhub/internal/metrics"
	"github.com/sakif/guildhub/internal/model"
	"github.com/sakif/guildhub/internal/repository"
)

// ErrInvalidCredentials is returned by AuthenticatePassword for any
// bad-login reason (unknown email, OAuth-only account, wrong password), so
// the response never reveals which part was wrong.
var ErrInvalidCredentials = errors.New("service/auth: invalid email or password")

// AuthService handles reconciliation of Discord identities and password
// sign-in for local accounts.
type AuthService struct {
	users     repository.UserRepository
	passwords *auth.PasswordService
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all dependencies injected.
func NewAuthService(
	users repository.UserRepository,
	passwords *auth.PasswordService,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		metrics:   m,
		logger:    logger,
	}
}

// ReconcileDiscord turns a Discord profile into a persisted user record.
//
// The Discord ID is the sole lookup key — usernames and emails are mutable
// upstream. First login creates the record; every later login overwrites
// username, avatar, and email with Discord's values (the provider is always
// authoritative over our cached copy). The admin flag is never written here.
//
// Two concurrent first logins for the same snowflake race on the store's
// unique index; the loser sees a conflict, re-reads the winner's row, and
// applies a normal update. Neither caller errors and exactly one user exists
// afterwards.
func (s *AuthService) ReconcileDiscord(ctx context.Context, du *auth.DiscordUser) (*model.User, error) {
	if du == nil || du.ID == "" {
		return nil, auth.ErrNoIdentity
	}

	username := FormatUsername(du.Username, du.Discriminator)
	email := NormalizeEmail(du.Email)
	avatarURL := du.AvatarURL()

	existing, err := s.users.GetByDiscordID(ctx, du.ID)
	switch {
	case err == nil:
		s.applyProfile(existing, username, email, avatarURL)
		if err := s.users.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("service/auth: updating user %s: %w", existing.ID, err)
		}
		return existing, nil

	case errors.Is(err, apperror.ErrNotFound):
		user := &model.User{
			DiscordID: du.ID,
			Username:  username,
			Email:     email,
			AvatarURL: avatarURL,
		}
		if err := s.users.Create(ctx, user); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				return s.reconcileAfterRace(ctx, du.ID, username, email, avatarURL)
			}
			return nil, fmt.Errorf("service/auth: creating user (discordID=%s): %w", du.ID, err)
		}
		s.metrics.UsersCreated.Inc()
		s.logger.Info("user created via Discord",
			slog.String("userID", user.ID),
			slog.String("username", user.Username),
		)
		return user, nil

	default:
		return nil, fmt.Errorf("service/auth: looking up user (discordID=%s): %w", du.ID, err)
	}
}

// reconcileAfterRace handles the lost creation race: another request
// persisted this snowflake between our lookup and insert. Re-read the
// winning row and apply this request's profile data as a normal update.
func (s *AuthService) reconcileAfterRace(ctx context.Context, discordID, username, email, avatarURL string) (*model.User, error) {
	existing, err := s.users.GetByDiscordID(ctx, discordID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: re-reading user after create conflict (discordID=%s): %w", discordID, err)
	}

	s.applyProfile(existing, username, email, avatarURL)
	if err := s.users.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("service/auth: updating user %s after create conflict: %w", existing.ID, err)
	}
	return existing, nil
}

func (s *AuthService) applyProfile(user *model.User, username, email, avatarURL string) {
	user.Username = username
	user.Email = email
	user.AvatarURL = avatarURL
}

// AuthenticatePassword verifies a local account's email and password.
// Returns ErrInvalidCredentials on any mismatch, including OAuth-only
// accounts that have no password hash.
func (s *AuthService) AuthenticatePassword(ctx context.Context, email, password string) (*model.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("service/auth: looking up user by email: %w", err)
	}

	if user.PasswordHash == "" || !s.passwords.Verify(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// FormatUsername computes the display name from a Discord handle and
// discriminator. Legacy accounts keep the "name#1234" form; modern accounts
// carry the sentinel discriminator "0" and use the bare name.
func FormatUsername(name, discriminator string) string {
	if discriminator != "" && discriminator != "0" {
		return name + "#" + discriminator
	}
	return name
}

// NormalizeEmail lowercases and trims the address. Syntactically invalid
// provider emails normalize to "" — a cosmetic provider field must not be
// able to fail a sign-in.
func NormalizeEmail(raw string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return ""
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return ""
	}
	return addr.Address
}
