package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/guildhub/internal/apperror"
	"github.com/sakif/guildhub/internal/model"
	"github.com/sakif/guildhub/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, discord_id, username, email, avatar_url, password_hash, admin, created_at, updated_at`

// Create inserts a new user, generating the internal ID and timestamps.
//
// A second insert racing on the same discord_id loses to the UNIQUE index;
// that surfaces as apperror.ErrConflict so the reconciliation service can
// re-read the winning row instead of failing the login.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, discord_id, username, email, avatar_url, password_hash, admin, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.DiscordID,
		user.Username,
		user.Email,
		user.AvatarURL,
		user.PasswordHash,
		user.Admin,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.DiscordID)
		}
		return fmt.Errorf("sqlite: inserting user (discordID=%s): %w", user.DiscordID, err)
	}

	return nil
}

// Update overwrites the mutable profile fields of an existing user. The
// admin flag is deliberately absent — only SetAdmin writes it.
func (db *DB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ?, avatar_url = ?, password_hash = ?, updated_at = ?
		 WHERE id = ?`,
		user.Username,
		user.Email,
		user.AvatarURL,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("user", user.ID)
	}

	return nil
}

// GetByID retrieves a user by their internal ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByDiscordID retrieves a user by their Discord snowflake — the sole
// reconciliation key.
func (db *DB) GetByDiscordID(ctx context.Context, discordID string) (*model.User, error) {
	return db.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE discord_id = ?`, discordID)
}

// GetByEmail retrieves a user by their normalized email address. Used only
// by the local password sign-in.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? AND email != ''`, email)
}

// List returns every user, admins first, then by creation time. Powers the
// admin roster page.
func (db *DB) List(ctx context.Context) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY admin DESC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := scanUser(rows.Scan, &u); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	return users, nil
}

// SetAdmin flips the admin flag. This is the out-of-band administrative
// action — nothing in the OAuth path calls it.
func (db *DB) SetAdmin(ctx context.Context, id string, admin bool) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET admin = ?, updated_at = ? WHERE id = ?`,
		admin, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting admin on user %s: %w", id, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}

func (db *DB) getUser(ctx context.Context, query string, arg any) (*model.User, error) {
	var u model.User
	err := scanUser(db.conn.QueryRowContext(ctx, query, arg).Scan, &u)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user (%v): %w", arg, err)
	}
	return &u, nil
}

// scanUser reads a row in userColumns order. Works for both QueryRow.Scan
// and Rows.Scan since they share the signature.
func scanUser(scan func(dest ...any) error, u *model.User) error {
	return scan(
		&u.ID,
		&u.DiscordID,
		&u.Username,
		&u.Email,
		&u.AvatarURL,
		&u.PasswordHash,
		&u.Admin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
}
