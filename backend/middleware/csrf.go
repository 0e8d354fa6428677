package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
)

// CSRFProtection implements the double-submit cookie pattern: Token issues a
// signed token as a cookie and the same value is embedded in rendered forms;
// Protect requires state-changing requests to echo it back.
type CSRFProtection struct {
	secret []byte
	secure bool
}

func NewCSRFProtection(secret string, secure bool) *CSRFProtection {
	return &CSRFProtection{secret: []byte(secret), secure: secure}
}

func (c *CSRFProtection) generateToken() string {
	nonce := make([]byte, 32)
	rand.Read(nonce)

	mac := hmac.New(sha256.New, c.secret)
	mac.Write(nonce)
	return base64.URLEncoding.EncodeToString(append(nonce, mac.Sum(nil)...))
}

func (c *CSRFProtection) validateToken(token string) bool {
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil || len(decoded) != 64 {
		return false
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(decoded[:32])
	return hmac.Equal(decoded[32:], mac.Sum(nil))
}

// Token returns the request's CSRF token, issuing the cookie when the
// request does not already carry a valid one.
func (c *CSRFProtection) Token(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie("_csrf"); err == nil && c.validateToken(cookie.Value) {
		return cookie.Value
	}
	token := c.generateToken()
	http.SetCookie(w, &http.Cookie{
		Name:     "_csrf",
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
		Secure:   c.secure,
	})
	return token
}

// Protect validates the token on state-changing methods; safe methods pass
// through untouched.
func (c *CSRFProtection) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie("_csrf")
		if err != nil {
			http.Error(w, "CSRF token missing", http.StatusForbidden)
			return
		}

		token := r.FormValue("_csrf")
		if token == "" {
			token = r.Header.Get("X-CSRF-Token")
		}
		if token != cookie.Value || !c.validateToken(token) {
			http.Error(w, "CSRF token invalid", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
