// Package flash provides one-time notices persisted across redirects.
//
// Every interesting outcome in the auth flow (signed in, signed out, "please
// sign in", OAuth failure) is communicated as a redirect plus a short
// message. The message rides in its own cookie so it survives exactly one
// redirect: the next page render reads it and clears it in the same request.
//
// The cookie value is a base64-encoded JSON payload. Base64 keeps arbitrary
// message text cookie-safe; JSON keeps the kind and message together.
package flash

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// CookieName is the canonical cookie used for one-time notices.
const CookieName = "guildhub_flash"

// Kind classifies how a notice is presented.
type Kind string

const (
	KindNotice Kind = "notice" // success / informational
	KindAlert  Kind = "alert"  // warnings and failures
)

// Notice is a single one-shot message.
type Notice struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// NewNotice creates a success notice.
func NewNotice(message string) Notice {
	return Notice{Kind: KindNotice, Message: message}
}

// NewAlert creates a failure notice.
func NewAlert(message string) Notice {
	return Notice{Kind: KindAlert, Message: message}
}

// Write stores a notice cookie for the next page render.
func Write(w http.ResponseWriter, notice Notice) {
	normalized, ok := normalize(notice)
	if !ok {
		return
	}
	payload, err := json.Marshal(normalized)
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    base64.RawURLEncoding.EncodeToString(payload),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReadAndClear reads the pending notice, if any, and expires its cookie so a
// second read within a later request sees nothing.
func ReadAndClear(w http.ResponseWriter, r *http.Request) (Notice, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie == nil {
		return Notice{}, false
	}
	Clear(w)
	return decode(cookie.Value)
}

// Clear expires any pending notice cookie.
func Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

func decode(raw string) (Notice, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Notice{}, false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return Notice{}, false
	}
	var notice Notice
	if err := json.Unmarshal(decoded, &notice); err != nil {
		return Notice{}, false
	}
	return normalize(notice)
}

func normalize(notice Notice) (Notice, bool) {
	notice.Message = strings.TrimSpace(notice.Message)
	if notice.Message == "" {
		return Notice{}, false
	}
	switch notice.Kind {
	case KindNotice, KindAlert:
		return notice, true
	default:
		return Notice{}, false
	}
}
