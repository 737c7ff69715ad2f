package repository

import (
	"context"

	"github.com/sakif/guildhub/internal/model"
)

// UserRepository is the identity store contract.
//
// Create returns an error satisfying errors.Is(err, apperror.ErrConflict)
// when the discord_id already exists — the reconciliation service relies on
// that to resolve concurrent first-time logins. GetBy* return errors
// satisfying apperror.ErrNotFound when no row matches.
//
// SetAdmin exists for the out-of-band admin CLI only; the OAuth path never
// touches the admin flag.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByDiscordID(ctx context.Context, discordID string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	SetAdmin(ctx context.Context, id string, admin bool) error
}
