// Package auth provides the Discord OAuth integration, password hashing for
// local accounts, and the session-guard middleware protecting routes.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// ErrNoIdentity is returned when Discord completes the OAuth dance but the
// profile payload carries no usable identity (no snowflake ID). The callback
// handler maps this to the "no data received" alert rather than letting a
// malformed payload surface as an internal error deep in business logic.
var ErrNoIdentity = errors.New("auth: provider returned no identity data")

// discordAPIBase is Discord's REST API root. Overridable on the provider so
// tests can point Exchange at a local httptest server.
const discordAPIBase = "https://discord.com/api/v10"

// DiscordUser is the portion of the Discord /users/@me response we care
// about. Discord returns a larger object — we only unmarshal what we need.
//
// Discriminator is "0" for accounts migrated to the unique-username system;
// legacy accounts still carry a real four-digit value. The service layer owns
// the name#discriminator formatting rule.
type DiscordUser struct {
	ID            string `json:"id"`            // numeric snowflake, stable, never changes
	Username      string `json:"username"`      // handle, e.g. "thott"
	Discriminator string `json:"discriminator"` // "0" on modern accounts
	Avatar        string `json:"avatar"`        // avatar hash (not a URL), may be empty
	Email         string `json:"email"`         // requires the "email" scope, may be empty
}

// AvatarURL builds the CDN URL for the user's avatar, or "" if they have none.
func (u *DiscordUser) AvatarURL() string {
	if u.Avatar == "" {
		return ""
	}
	return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", u.ID, u.Avatar)
}

// DiscordProvider wraps golang.org/x/oauth2 for the Discord Authorization
// Code flow:
//
//  1. We redirect the browser to Discord's authorization endpoint.
//  2. The user approves (or declines) on Discord.
//  3. Discord redirects back to our callback URL with a short-lived code.
//  4. We exchange the code for an access token (server-to-server, so the
//     token never touches the browser).
//  5. We call /users/@me with the token to fetch the identity assertion.
type DiscordProvider struct {
	config  *oauth2.Config
	apiBase string
}

// NewDiscordProvider creates a DiscordProvider with the given credentials.
//
// callbackURL must exactly match a redirect URI registered on the Discord
// application (e.g. "http://localhost:8080/auth/discord/callback").
//
// Scopes: "identify" for the profile, "email" for the address.
func NewDiscordProvider(clientID, clientSecret, callbackURL string) *DiscordProvider {
	return &DiscordProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"identify", "email"},
			Endpoint:     endpoints.Discord,
		},
		apiBase: discordAPIBase,
	}
}

// AuthURL returns the Discord authorization URL for the given state.
//
// The state is a random value we stash in a short-lived cookie before
// redirecting; the callback verifies the returned state matches. That check
// is what protects the login flow — the callback itself is necessarily
// exempt from the site's own anti-forgery token, since Discord cannot know it.
func (p *DiscordProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the OAuth flow: trades the authorization code for a
// Discord user profile.
//
// Returns ErrNoIdentity when Discord's response decodes but contains no
// snowflake — the caller treats that the same as receiving no assertion.
func (p *DiscordProvider) Exchange(ctx context.Context, code string) (*DiscordUser, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// oauth2.Config.Client returns an *http.Client that attaches the
	// bearer token to every request.
	client := p.config.Client(ctx, token)

	resp, err := client.Get(p.apiBase + "/users/@me")
	if err != nil {
		return nil, fmt.Errorf("auth: calling Discord /users/@me: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Discord /users/@me returned status %d", resp.StatusCode)
	}

	var du DiscordUser
	if err := json.NewDecoder(resp.Body).Decode(&du); err != nil {
		return nil, fmt.Errorf("%w: decoding /users/@me response: %v", ErrNoIdentity, err)
	}

	if du.ID == "" {
		return nil, ErrNoIdentity
	}

	return &du, nil
}
