package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"microblog/backend/auth"
	"microblog/backend/repository"
)

// OTPPage shows the second-factor prompt. Only sessions that actually owe a
// second factor get here; everyone else bounces to the entry point.
func (h *Handler) OTPPage(w http.ResponseWriter, r *http.Request) {
	if h.Sessions.State(r) != auth.NeedsSecondFactor {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, "otp.html", nil)
}

// OTPVerify checks the submitted code against the principal's stored secret
// and completes the login on success. Failures increment the attempt counter
// and re-prompt; there is no lockout here.
func (h *Handler) OTPVerify(w http.ResponseWriter, r *http.Request) {
	if h.Sessions.State(r) != auth.NeedsSecondFactor {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	claims := h.Sessions.Claims(r)
	user, err := h.Users.FindBySubject(claims.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		// Principal vanished since login; stale claims get dropped.
		h.Sessions.Logout(w, r)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err != nil {
		internalError(w, "otp", err)
		return
	}

	code := r.FormValue("code")
	if !h.Verifier.VerifyTOTP(user.TOTPSecret, code, time.Now()) {
		if err := h.Sessions.FailSecondFactor(w, r); err != nil {
			internalError(w, "otp", err)
			return
		}
		slog.Warn("second factor failed", "source", "otp", "user_id", user.ID, "attempt", claims.TOTPAttempt+1)
		h.Sessions.FlashError(w, r, "Invalid code")
		http.Redirect(w, r, "/otp", http.StatusSeeOther)
		return
	}

	if err := h.Sessions.SatisfySecondFactor(w, r); err != nil {
		internalError(w, "otp", err)
		return
	}
	slog.Info("second factor verified", "source", "otp", "user_id", user.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
