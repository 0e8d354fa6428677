package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"golang.org/x/crypto/bcrypt"

	"microblog/backend/auth"
	"microblog/backend/models"
	"microblog/backend/repository"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// ValidateUsername enforces the account-name format.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return errors.New("username must be 3-32 characters: letters, digits, underscore")
	}
	return nil
}

// ValidatePassword enforces a minimum length only. Composition rules push
// users toward predictable patterns; length is what matters.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

// Index is the entry point: the sign-in page for anonymous sessions, the
// home page once authenticated.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	switch h.Sessions.State(r) {
	case auth.Anonymous:
		h.render(w, r, "login.html", nil)
	case auth.NeedsSecondFactor:
		http.Redirect(w, r, "/otp", http.StatusSeeOther)
	default:
		h.render(w, r, "index.html", nil)
	}
}

// Login checks primary credentials and opens a session. Unknown username and
// wrong password produce the same flash message.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	user, err := h.Verifier.VerifyPassword(username, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		slog.Warn("login failed", "source", "auth", "username", username)
		h.Sessions.FlashError(w, r, "Invalid username or password")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err != nil {
		internalError(w, "auth", err)
		return
	}

	if err := h.Sessions.Login(w, r, user); err != nil {
		internalError(w, "auth", err)
		return
	}
	slog.Info("user logged in", "source", "auth", "user_id", user.ID, "username", username)

	if user.TOTPEnabled {
		http.Redirect(w, r, "/otp", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "register.html", nil)
}

// Register creates an account and signs it in. New accounts start without a
// second factor; enrollment happens from settings.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	if err := ValidateUsername(username); err != nil {
		h.Sessions.FlashError(w, r, err.Error())
		http.Redirect(w, r, "/register", http.StatusSeeOther)
		return
	}
	if err := ValidatePassword(password); err != nil {
		h.Sessions.FlashError(w, r, err.Error())
		http.Redirect(w, r, "/register", http.StatusSeeOther)
		return
	}

	if _, err := h.Users.FindByUsername(username); err == nil {
		slog.Warn("registration failed: username taken", "source", "auth", "username", username)
		h.Sessions.FlashError(w, r, "Username is already taken")
		http.Redirect(w, r, "/register", http.StatusSeeOther)
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		internalError(w, "auth", err)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		internalError(w, "auth", fmt.Errorf("hash password: %w", err))
		return
	}

	user := &models.User{Username: username, Password: string(hashed)}
	if err := h.Users.Create(user); err != nil {
		internalError(w, "auth", err)
		return
	}
	slog.Info("user registered", "source", "auth", "user_id", user.ID, "username", username)

	if err := h.Sessions.Login(w, r, user); err != nil {
		internalError(w, "auth", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout destroys the session unconditionally.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := h.Sessions.Claims(r)
	if err := h.Sessions.Logout(w, r); err != nil {
		internalError(w, "auth", err)
		return
	}
	if claims != nil {
		slog.Info("user logged out", "source", "auth", "username", claims.Username)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
