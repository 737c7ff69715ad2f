// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a guild member's account.
//
// We use Discord OAuth as the identity provider, so the primary external
// identifier is the Discord user ID (a numeric snowflake, stored as a string
// because snowflakes overflow what JSON consumers treat as a safe integer).
// We still generate our own internal string ID (xid) so our primary keys are
// not tied to a third party's numbering scheme.
//
// Email, AvatarURL, and PasswordHash use the empty string as "not set" rather
// than nullable pointers — Discord may withhold the email, OAuth accounts
// never carry a password hash, and local accounts never carry an avatar.
//
// Admin is only ever flipped by the admin CLI (cmd/admin). The OAuth
// reconciliation path must never write it.
type User struct {
	ID           string    `json:"id"        db:"id"`
	DiscordID    string    `json:"discordId" db:"discord_id"` // Discord snowflake, unique
	Username     string    `json:"username"  db:"username"`   // e.g. "thott" or legacy "thott#1234"
	Email        string    `json:"email"     db:"email"`      // lowercase, may be empty
	AvatarURL    string    `json:"avatarUrl" db:"avatar_url"` // Discord CDN URL, may be empty
	PasswordHash string    `json:"-"         db:"password_hash"`
	Admin        bool      `json:"admin"     db:"admin"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
