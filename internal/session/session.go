// Package session implements server-side sessions for the web app.
//
// The browser only ever holds an opaque session ID in an HttpOnly cookie.
// Everything else — the signed-in user's ID and the one-shot return-to path —
// lives server-side in a Store. This is deliberate: a stateless token cannot
// model "read return_to exactly once and clear it", and logout must be able
// to destroy all session state in one call.
//
// Two Store implementations exist: Redis (production) and an in-memory map
// (development and tests). Both serialize conflicting writes internally; the
// Manager itself holds no mutable state and is safe for concurrent use.
package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/guildhub/internal/apperror"
)

// CookieName is the canonical session cookie name.
const CookieName = "guildhub_session"

// DefaultTTL is how long an idle session survives in the store.
const DefaultTTL = 7 * 24 * time.Hour

// Session is the small typed bag of per-client state.
//
// UserID is a weak back-reference: the session does not own the user, and a
// stored ID may stop resolving if the user is deleted out-of-band. ReturnTo
// is single-use — the OAuth callback reads it and clears it in one step.
type Session struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id,omitempty"`
	ReturnTo string `json:"return_to,omitempty"`
}

// PopReturnTo returns the stored return-to path and clears it. The caller is
// responsible for saving the session afterwards.
func (s *Session) PopReturnTo() string {
	path := s.ReturnTo
	s.ReturnTo = ""
	return path
}

// Store persists sessions keyed by their opaque ID.
//
// Get returns apperror.ErrNotFound (via errors.Is) when the ID is unknown or
// expired. Delete on an unknown ID is a no-op — logout is idempotent.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, sess *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// Manager ties a Store to the session cookie.
//
// Load never fails: a missing, malformed, or expired cookie simply yields a
// fresh unsaved session. Nothing is written to the store until a handler has
// something to remember (a sign-in or a return-to path), so anonymous
// page views cost no session writes.
type Manager struct {
	store Store
	ttl   time.Duration
}

// NewManager creates a Manager. A non-positive ttl falls back to DefaultTTL.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl}
}

// Load resolves the request's session, or starts a fresh one if the client
// has none. Fresh sessions are not persisted until Save is called.
func (m *Manager) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie == nil {
		return newSession()
	}
	id := strings.TrimSpace(cookie.Value)
	if id == "" {
		return newSession()
	}
	sess, err := m.store.Get(r.Context(), id)
	if err != nil {
		return newSession()
	}
	return sess
}

// Save persists the session and (re)issues the session cookie.
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if err := m.store.Save(ctx, sess, m.ttl); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Destroy removes the request's session from the store and expires the
// cookie. Safe to call when no session exists. The cookie is cleared even if
// the store delete fails — the client must not keep a handle to a session we
// could not tear down.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var deleteErr error
	if cookie, err := r.Cookie(CookieName); err == nil && cookie != nil {
		if id := strings.TrimSpace(cookie.Value); id != "" {
			deleteErr = m.store.Delete(ctx, id)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return deleteErr
}

func newSession() *Session {
	return &Session{ID: xid.New().String()}
}

// notFound builds the canonical missing-session error shared by the stores.
func notFound(id string) error {
	return apperror.NotFound("session", id)
}
