package handler

import (
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sakif/guildhub/internal/flash"
)

// landingPath is the default destination for every auth redirect.
const landingPath = "/"

// Every outcome in the auth flow is "redirect somewhere with a one-shot
// message". These helpers keep the handlers down to a single line per exit.

func redirectWithNotice(w http.ResponseWriter, r *http.Request, path, message string) {
	flash.Write(w, flash.NewNotice(message))
	http.Redirect(w, r, path, http.StatusSeeOther)
}

func redirectWithAlert(w http.ResponseWriter, r *http.Request, path, message string) {
	flash.Write(w, flash.NewAlert(message))
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// humanize turns a provider error code like "invalid_credentials" into
// "Invalid credentials". Codes we have never seen still come out readable,
// if unreviewed.
func humanize(code string) string {
	phrase := strings.ReplaceAll(strings.TrimSpace(code), "_", " ")
	if phrase == "" {
		return phrase
	}
	first, size := utf8.DecodeRuneInString(phrase)
	return string(unicode.ToUpper(first)) + phrase[size:]
}
