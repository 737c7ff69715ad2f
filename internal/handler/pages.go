package handler

import (
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/sakif/guildhub/internal/auth"
	"github.com/sakif/guildhub/internal/flash"
	"github.com/sakif/guildhub/internal/model"
	"github.com/sakif/guildhub/internal/repository"
)

// PageHandler renders the HTML pages. Templates are parsed once at startup;
// each page is a separate template set sharing base.html so their "content"
// blocks don't collide.
type PageHandler struct {
	home      *template.Template
	dashboard *template.Template
	admin     *template.Template
	users     repository.UserRepository
	logger    *slog.Logger
}

// pageData is what every template receives. User and SignedIn come from the
// request context (resolved once by the guard); Flash is the pending one-shot
// notice, consumed by the render.
type pageData struct {
	Title    string
	User     *model.User
	SignedIn bool
	Flash    *flash.Notice
	Users    []model.User // admin page only
}

// NewPageHandler parses the page templates from templateDir.
func NewPageHandler(templateDir string, users repository.UserRepository, logger *slog.Logger) (*PageHandler, error) {
	parse := func(page string) (*template.Template, error) {
		return template.ParseFiles(
			filepath.Join(templateDir, "base.html"),
			filepath.Join(templateDir, page),
		)
	}

	home, err := parse("home.html")
	if err != nil {
		return nil, err
	}
	dashboard, err := parse("dashboard.html")
	if err != nil {
		return nil, err
	}
	admin, err := parse("admin.html")
	if err != nil {
		return nil, err
	}

	return &PageHandler{
		home:      home,
		dashboard: dashboard,
		admin:     admin,
		users:     users,
		logger:    logger,
	}, nil
}

// HandleHome serves the landing page.
//
// HTTP: GET / (public; OptionalUser resolves the signed-in state)
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, h.home, pageData{Title: "GuildHub"})
}

// HandleDashboard serves the member dashboard ("My Characters" lives here
// once the character models land).
//
// HTTP: GET /dashboard (RequireUser)
func (h *PageHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, h.dashboard, pageData{Title: "Dashboard — GuildHub"})
}

// HandleAdmin serves the member roster with admin flags.
//
// HTTP: GET /admin (RequireAdmin)
func (h *PageHandler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.logger.Error("admin page: listing users", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.render(w, r, h.admin, pageData{Title: "Admin — GuildHub", Users: users})
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, tmpl *template.Template, data pageData) {
	if user, ok := auth.CurrentUser(r.Context()); ok {
		data.User = user
		data.SignedIn = true
	}
	if notice, ok := flash.ReadAndClear(w, r); ok {
		data.Flash = &notice
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		h.logger.Error("rendering template", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
