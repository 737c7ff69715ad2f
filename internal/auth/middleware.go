package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/guildhub/internal/apperror"
	"github.com/sakif/guildhub/internal/flash"
	"github.com/sakif/guildhub/internal/model"
	"github.com/sakif/guildhub/internal/repository"
	"github.com/sakif/guildhub/internal/session"
)

// contextKey is an unexported type for context keys in this package, so no
// other package can read or shadow the current-user value.
type contextKey string

const userKey contextKey = "currentUser"

// landingPath is where challenged and signed-out users end up.
const landingPath = "/"

// CurrentUser retrieves the resolved user from the request context.
//
// Returns (nil, false) on anonymous requests. The guard resolves the user at
// most once per request and threads it through the context, so repeated calls
// within one request never repeat the store lookup.
func CurrentUser(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey).(*model.User)
	return user, ok && user != nil
}

// SignedIn reports whether the request carries an authenticated user.
func SignedIn(ctx context.Context) bool {
	_, ok := CurrentUser(ctx)
	return ok
}

func withUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// Guard enforces signed-in / admin preconditions on protected routes.
//
// All three middlewares resolve the current user the same way: read the
// session, look up the stored user ID, cache the result in the request
// context. A stored ID that no longer resolves (user deleted out-of-band)
// counts as not signed in. Success never mutates the session; failure always
// short-circuits the chain with a redirect.
type Guard struct {
	sessions *session.Manager
	users    repository.UserRepository
	logger   *slog.Logger
}

// NewGuard creates a Guard.
func NewGuard(sessions *session.Manager, users repository.UserRepository, logger *slog.Logger) *Guard {
	return &Guard{sessions: sessions, users: users, logger: logger}
}

// RequireUser aborts the request with a "please sign in" redirect unless a
// signed-in user can be resolved.
//
// Before redirecting, the originally requested path (including query string)
// is stored as the session's one-shot return-to, unless the user was already
// headed for the landing page. The OAuth callback consumes it after sign-in.
func (g *Guard) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}

		user, sess := g.resolve(r)
		if user == nil {
			if target := r.URL.RequestURI(); target != landingPath {
				sess.ReturnTo = target
				if err := g.sessions.Save(r.Context(), w, sess); err != nil {
					g.logger.Error("storing return-to path",
						slog.String("path", target),
						slog.String("error", err.Error()),
					)
				}
			}
			flash.Write(w, flash.NewAlert("Please sign in to continue."))
			http.Redirect(w, r, landingPath, http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// RequireAdmin is RequireUser plus the admin flag. Signed-in non-admins get
// a "not authorized" redirect; the protected handler never runs.
func (g *Guard) RequireAdmin(next http.Handler) http.Handler {
	return g.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := CurrentUser(r.Context())
		if user == nil || !user.Admin {
			flash.Write(w, flash.NewAlert("You are not authorized to access this page."))
			http.Redirect(w, r, landingPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// OptionalUser resolves the current user if there is one but never blocks.
// Public pages use it so templates can render the signed-in state.
func (g *Guard) OptionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r.Context()); !ok {
			if user, _ := g.resolve(r); user != nil {
				r = r.WithContext(withUser(r.Context(), user))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// resolve looks up the session's user. Returns a nil user when the request
// is anonymous or the stored ID no longer resolves.
func (g *Guard) resolve(r *http.Request) (*model.User, *session.Session) {
	sess := g.sessions.Load(r)
	if sess.UserID == "" {
		return nil, sess
	}

	user, err := g.users.GetByID(r.Context(), sess.UserID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			g.logger.Error("resolving session user",
				slog.String("userID", sess.UserID),
				slog.String("error", err.Error()),
			)
		}
		return nil, sess
	}

	return user, sess
}
