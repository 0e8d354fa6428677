package handlers

import (
	"log/slog"
	"net/http"

	"microblog/backend/auth"
	"microblog/backend/middleware"
	"microblog/backend/repository"
	"microblog/frontend/templates"
)

// Handler carries the injected collaborators every page flow needs. There is
// no package-level state; tests construct a Handler around fakes.
type Handler struct {
	Sessions *auth.Manager
	Users    repository.UserRepository
	Verifier *auth.Verifier
	CSRF     *middleware.CSRFProtection
}

func New(sessions *auth.Manager, users repository.UserRepository, verifier *auth.Verifier, csrf *middleware.CSRFProtection) *Handler {
	return &Handler{Sessions: sessions, Users: users, Verifier: verifier, CSRF: csrf}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	ctx := templates.Context{
		Flash:  h.Sessions.Flashes(w, r),
		Claims: h.Sessions.Claims(r),
		Data:   data,
	}
	if h.CSRF != nil {
		ctx.CSRF = h.CSRF.Token(w, r)
	}
	if err := templates.Render(w, name, ctx); err != nil {
		slog.Error("template render failed", "source", "http", "template", name, "error", err.Error())
	}
}

func internalError(w http.ResponseWriter, source string, err error) {
	slog.Error("request failed", "source", source, "error", err.Error())
	http.Error(w, "Something went wrong", http.StatusInternalServerError)
}
