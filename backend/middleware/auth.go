package middleware

import (
	"log/slog"
	"net/http"

	"microblog/backend/auth"
)

// RequireAuth guards a handler behind the authentication state machine.
// Anonymous sessions bounce to the entry point. Sessions still owing their
// second factor get exactly one redirect into the prompt; a second guarded
// request before verifying forces a logout rather than looping.
func RequireAuth(sessions *auth.Manager) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			switch sessions.State(r) {
			case auth.Anonymous:
				http.Redirect(w, r, "/", http.StatusSeeOther)

			case auth.NeedsSecondFactor:
				consumed, err := sessions.ConsumeOneTimeRedirect(w, r)
				if err != nil {
					http.Error(w, "Something went wrong", http.StatusInternalServerError)
					return
				}
				if consumed {
					slog.Warn("second-factor redirect replayed, forcing re-login", "source", "guard", "path", r.URL.Path)
					if err := sessions.Logout(w, r); err != nil {
						http.Error(w, "Something went wrong", http.StatusInternalServerError)
						return
					}
					http.Redirect(w, r, "/", http.StatusSeeOther)
					return
				}
				http.Redirect(w, r, "/otp", http.StatusSeeOther)

			default:
				next(w, r)
			}
		}
	}
}
