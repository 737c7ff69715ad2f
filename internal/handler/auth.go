// Package handler contains the HTTP request handlers. Handlers are the glue
// between HTTP and the service layer — they parse requests, call business
// logic, and translate outcomes into redirects, flash notices, and pages.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/rs/xid"

	"github.com/sakif/guildhub/internal/apperror"
	"github.com/sakif/guildhub/internal/auth"
	"github.com/sakif/guildhub/internal/metrics"
	"github.com/sakif/guildhub/internal/model"
	"github.com/sakif/guildhub/internal/service"
	"github.com/sakif/guildhub/internal/session"
)

// User-facing messages for every auth outcome. Provider details never leak
// into these — faults are logged for operators instead.
const (
	msgSignedIn       = "Successfully signed in with Discord!"
	msgSignedOut      = "Successfully signed out."
	msgNoAuthData     = "Authentication failed: No data received from Discord."
	msgAccountFailed  = "Failed to create account. Please try again."
	msgSignInError    = "An error occurred during sign in. Please try again."
	msgBadCredentials = "Invalid email or password."
)

// identityProvider is what the callback needs from the OAuth integration.
// *auth.DiscordProvider satisfies it; tests substitute a stub.
type identityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.DiscordUser, error)
}

// AuthHandler manages the Discord OAuth flow and session lifecycle:
//
//	HandleLogin         → redirect the browser to Discord's consent page
//	HandleCallback      → receive the authorization result, reconcile, sign in
//	HandleFailure       → provider-reported failure, humanized for the user
//	HandlePasswordLogin → local-account sign-in for dev and officer accounts
//	HandleLogout        → full session teardown
type AuthHandler struct {
	discord  identityProvider
	svc      *service.AuthService
	sessions *session.Manager
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected.
func NewAuthHandler(
	discord identityProvider,
	svc *service.AuthService,
	sessions *session.Manager,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		discord:  discord,
		svc:      svc,
		sessions: sessions,
		metrics:  m,
		logger:   logger,
	}
}

// HandleLogin redirects the user to Discord's authorization page.
//
// HTTP: GET /auth/discord/login
//
// The random state value goes into a short-lived HttpOnly cookie; the
// callback verifies Discord echoed it back. That check is this flow's
// forgery protection — the callback request originates at Discord and can
// never carry a site-issued anti-forgery token.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600, // long enough to read the consent screen
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.discord.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback completes the OAuth sign-in.
//
// HTTP: GET /auth/discord/callback?code=xxx&state=yyy
//
// Flow: validate state → exchange the code for a Discord profile →
// reconcile against the user table → store the user ID in the session →
// redirect to the stored return-to path (one-shot) or the landing page.
//
// Every failure ends in a redirect with a short provider-detail-free
// message; nothing propagates past this handler.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	// Discord reports user-declined consent and friends as error query
	// params; hand those to the failure path for humanizing.
	if errCode := r.URL.Query().Get("error"); errCode != "" {
		failure := url.Values{
			"message":           {errCode},
			"error_description": {r.URL.Query().Get("error_description")},
		}
		http.Redirect(w, r, "/auth/failure?"+failure.Encode(), http.StatusSeeOther)
		return
	}

	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: missing or mismatched state")
		h.metrics.SignIns.WithLabelValues("discord", "failure").Inc()
		redirectWithAlert(w, r, landingPath, msgNoAuthData)
		return
	}

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:   "oauth_state",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		h.metrics.SignIns.WithLabelValues("discord", "failure").Inc()
		redirectWithAlert(w, r, landingPath, msgNoAuthData)
		return
	}

	du, err := h.discord.Exchange(r.Context(), code)
	if err != nil {
		h.metrics.SignIns.WithLabelValues("discord", "failure").Inc()
		if errors.Is(err, auth.ErrNoIdentity) {
			h.logger.Warn("auth callback: no identity in Discord response")
			redirectWithAlert(w, r, landingPath, msgNoAuthData)
			return
		}
		h.logger.Error("auth callback: Discord exchange failed", slog.String("error", err.Error()))
		redirectWithAlert(w, r, landingPath, msgSignInError)
		return
	}

	user, err := h.svc.ReconcileDiscord(r.Context(), du)
	if err != nil {
		h.metrics.SignIns.WithLabelValues("discord", "failure").Inc()
		h.logger.Error("auth callback: reconciliation failed",
			slog.String("discordID", du.ID),
			slog.String("error", err.Error()),
		)
		// A rejected store write reads as "couldn't create your account";
		// anything else gets the generic retry message.
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			redirectWithAlert(w, r, landingPath, msgAccountFailed)
			return
		}
		redirectWithAlert(w, r, landingPath, msgSignInError)
		return
	}

	dest, err := h.signIn(w, r, user)
	if err != nil {
		h.metrics.SignIns.WithLabelValues("discord", "failure").Inc()
		h.logger.Error("auth callback: saving session failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		redirectWithAlert(w, r, landingPath, msgSignInError)
		return
	}

	h.metrics.SignIns.WithLabelValues("discord", "success").Inc()
	h.logger.Info("user authenticated via Discord",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	redirectWithNotice(w, r, dest, msgSignedIn)
}

// HandleFailure is the provider's failure callback.
//
// HTTP: GET /auth/failure?message=access_denied&error_description=...
//
// The code is humanized for the user; the raw description is logged only.
// Always terminal, never errors.
func (h *AuthHandler) HandleFailure(w http.ResponseWriter, r *http.Request) {
	errCode := r.URL.Query().Get("message")
	if errCode == "" {
		errCode = "unknown_error"
	}
	description := r.URL.Query().Get("error_description")
	if description == "" {
		description = "Authentication failed"
	}

	h.logger.Error("oauth failure",
		slog.String("type", errCode),
		slog.String("description", description),
	)
	h.metrics.SignIns.WithLabelValues("discord", "failure").Inc()

	redirectWithAlert(w, r, landingPath, "Discord authentication failed: "+humanize(errCode))
}

// HandlePasswordLogin signs in a local (email + password) account.
//
// HTTP: POST /login
func (h *AuthHandler) HandlePasswordLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectWithAlert(w, r, landingPath, msgBadCredentials)
		return
	}

	user, err := h.svc.AuthenticatePassword(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	if err != nil {
		h.metrics.SignIns.WithLabelValues("password", "failure").Inc()
		if !errors.Is(err, service.ErrInvalidCredentials) {
			h.logger.Error("password login failed", slog.String("error", err.Error()))
		}
		redirectWithAlert(w, r, landingPath, msgBadCredentials)
		return
	}

	dest, err := h.signIn(w, r, user)
	if err != nil {
		h.metrics.SignIns.WithLabelValues("password", "failure").Inc()
		h.logger.Error("password login: saving session failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		redirectWithAlert(w, r, landingPath, msgSignInError)
		return
	}

	h.metrics.SignIns.WithLabelValues("password", "success").Inc()
	h.logger.Info("user authenticated via password", slog.String("userID", user.ID))
	redirectWithNotice(w, r, dest, "Successfully signed in!")
}

// HandleLogout destroys the entire session — identity, pending return-to,
// everything — and redirects home.
//
// HTTP: DELETE /logout (and POST /logout for plain HTML forms)
//
// Idempotent: logging out without a session produces the same redirect and
// notice.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(r.Context(), w, r); err != nil {
		h.logger.Error("logout: destroying session failed", slog.String("error", err.Error()))
	}
	h.metrics.SignOuts.Inc()
	redirectWithNotice(w, r, landingPath, msgSignedOut)
}

// signIn writes the user's ID into the session and consumes the one-shot
// return-to path, falling back to the landing page.
func (h *AuthHandler) signIn(w http.ResponseWriter, r *http.Request, user *model.User) (string, error) {
	sess := h.sessions.Load(r)
	sess.UserID = user.ID

	dest := sess.PopReturnTo()
	if dest == "" {
		dest = landingPath
	}

	if err := h.sessions.Save(r.Context(), w, sess); err != nil {
		return "", err
	}
	return dest, nil
}
