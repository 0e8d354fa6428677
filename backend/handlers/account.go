package handlers

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image/png"
	"log/slog"
	"net/http"
	"time"

	"github.com/pquerna/otp"

	"microblog/backend/models"
	"microblog/backend/repository"
)

type twoFactorSetup struct {
	QRCode string
	Secret string
}

// qrDataPNG renders the TOTP key as a base64-encoded PNG for inline display.
func qrDataPNG(key *otp.Key) (string, error) {
	img, err := key.Image(200, 200)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// currentUser resolves the session's principal from the repository. Claims
// that outlived their user are dropped with a logout.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	claims := h.Sessions.Claims(r)
	if claims == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return nil, false
	}
	user, err := h.Users.FindBySubject(claims.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		h.Sessions.Logout(w, r)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return nil, false
	}
	if err != nil {
		internalError(w, "account", err)
		return nil, false
	}
	return user, true
}

// Settings shows the account page, including whether the second factor is on.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	h.render(w, r, "settings.html", user)
}

// TwoFactorPage starts TOTP enrollment: a fresh key is generated, held only
// in the session, and shown as a QR code. Nothing is persisted until the
// user proves they captured the secret.
func (h *Handler) TwoFactorPage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if user.TOTPEnabled {
		http.Redirect(w, r, "/account/settings", http.StatusSeeOther)
		return
	}

	key, err := h.Verifier.GenerateEnrollmentKey(user.Username)
	if err != nil {
		internalError(w, "account", err)
		return
	}
	qr, err := qrDataPNG(key)
	if err != nil {
		internalError(w, "account", err)
		return
	}
	if err := h.Sessions.SetPendingSecret(w, r, key.Secret()); err != nil {
		internalError(w, "account", err)
		return
	}

	h.render(w, r, "twofactor.html", twoFactorSetup{QRCode: qr, Secret: key.Secret()})
}

// TwoFactorValidate finishes enrollment. The secret reaches the repository
// only after the submitted code verifies against the pending copy held in
// the session; abandoned or failed enrollments persist nothing.
func (h *Handler) TwoFactorValidate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	secret, ok := h.Sessions.PendingSecret(r)
	if !ok {
		h.Sessions.FlashError(w, r, "Setup expired, please start over")
		http.Redirect(w, r, "/account/2fa", http.StatusSeeOther)
		return
	}

	code := r.FormValue("code")
	if !h.Verifier.VerifyTOTP(secret, code, time.Now()) {
		slog.Warn("enrollment code invalid", "source", "account", "user_id", user.ID)
		h.Sessions.FlashError(w, r, "Invalid code")
		http.Redirect(w, r, "/account/2fa", http.StatusSeeOther)
		return
	}

	if _, err := h.Users.UpdateTOTPEnrollment(user.SubjectID, secret); err != nil {
		internalError(w, "account", err)
		return
	}
	if err := h.Sessions.EnableSecondFactor(w, r); err != nil {
		internalError(w, "account", err)
		return
	}
	if err := h.Sessions.ClearPendingSecret(w, r); err != nil {
		internalError(w, "account", err)
		return
	}

	slog.Info("two-factor enabled", "source", "account", "user_id", user.ID)
	h.Sessions.FlashInfo(w, r, "Two-factor authentication enabled")
	http.Redirect(w, r, "/account/settings", http.StatusSeeOther)
}

// TwoFactorDisable turns the second factor off after a valid current code.
func (h *Handler) TwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if !user.TOTPEnabled {
		http.Redirect(w, r, "/account/settings", http.StatusSeeOther)
		return
	}

	code := r.FormValue("code")
	if !h.Verifier.VerifyTOTP(user.TOTPSecret, code, time.Now()) {
		slog.Warn("two-factor disable failed", "source", "account", "user_id", user.ID)
		h.Sessions.FlashError(w, r, "Invalid code")
		http.Redirect(w, r, "/account/settings", http.StatusSeeOther)
		return
	}

	if _, err := h.Users.DisableTOTP(user.SubjectID); err != nil {
		internalError(w, "account", err)
		return
	}
	if err := h.Sessions.DisableSecondFactor(w, r); err != nil {
		internalError(w, "account", err)
		return
	}

	slog.Info("two-factor disabled", "source", "account", "user_id", user.ID)
	h.Sessions.FlashInfo(w, r, "Two-factor authentication disabled")
	http.Redirect(w, r, "/account/settings", http.StatusSeeOther)
}
