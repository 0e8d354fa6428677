package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/sessions"

	"microblog/backend/models"
)

const sessionName = "session"

// Session value keys. Claims live under claimsKey; the rest are transient
// scratch values cleared by login and logout.
const (
	claimsKey           = "claims"
	pendingSecretKey    = "pendingTotpSecret"
	redirectConsumedKey = "totpRedirectConsumed"
)

// Flash message kinds.
const (
	flashError = "_flash_error"
	flashInfo  = "_flash_info"
)

// ErrNoClaims is returned by transitions that require an authenticated
// session when none is present.
var ErrNoClaims = errors.New("no active claims in session")

type Flash struct {
	Kind    string
	Message string
}

// NewStore builds the cookie-backed session store. The secret signs every
// session payload, so a short secret is refused outright.
func NewStore(secret string, timeout time.Duration, secure bool) (sessions.Store, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 characters")
	}
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(timeout.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store, nil
}

// Manager owns every transition of the authentication state machine. All
// mutations go through the session store; a request either sees the prior
// record or the fully written new one.
type Manager struct {
	store    sessions.Store
	lifetime time.Duration
	now      func() time.Time
}

func NewManager(store sessions.Store, lifetime time.Duration) *Manager {
	return &Manager{store: store, lifetime: lifetime, now: time.Now}
}

// session never fails: a corrupt or missing cookie yields a fresh session,
// which decodes to anonymous downstream.
func (m *Manager) session(r *http.Request) *sessions.Session {
	s, _ := m.store.Get(r, sessionName)
	return s
}

// Claims returns the decoded claims, or nil for an anonymous session.
// Expiry is not applied here; use State for routing decisions.
func (m *Manager) Claims(r *http.Request) *Claims {
	return DecodeClaims(m.session(r).Values[claimsKey])
}

// State evaluates the state machine for the current request.
func (m *Manager) State(r *http.Request) State {
	return StateOf(m.Claims(r), m.now())
}

// Login writes fresh claims after a successful primary-credential check.
// The attempt counter starts at zero, the second factor is unsatisfied, and
// all transient markers from any previous login are cleared.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, user *models.User) error {
	s := m.session(r)
	c := &Claims{
		Subject:     user.SubjectID,
		Username:    user.Username,
		Exp:         m.now().Add(m.lifetime).Unix(),
		TOTPEnabled: user.TOTPEnabled,
	}
	enc, err := EncodeClaims(c)
	if err != nil {
		return err
	}
	delete(s.Values, redirectConsumedKey)
	delete(s.Values, pendingSecretKey)
	s.Values[claimsKey] = enc
	return s.Save(r, w)
}

// Logout destroys the claims and every transient session value.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	s := m.session(r)
	s.Values = make(map[any]any)
	s.Options.MaxAge = -1
	return s.Save(r, w)
}

// SatisfySecondFactor records a successful TOTP verification. The second
// factor is marked satisfied until the claims' own expiry, so it holds for
// exactly the remainder of this session.
func (m *Manager) SatisfySecondFactor(w http.ResponseWriter, r *http.Request) error {
	return m.updateClaims(w, r, func(c *Claims) {
		c.TOTPAttempt++
		sat := c.Exp
		c.TOTP = &sat
	})
}

// FailSecondFactor records a failed TOTP verification. The counter is
// advisory: nothing in the core locks the session out, whatever the count.
func (m *Manager) FailSecondFactor(w http.ResponseWriter, r *http.Request) error {
	return m.updateClaims(w, r, func(c *Claims) {
		c.TOTPAttempt++
		c.TOTP = nil
	})
}

// EnableSecondFactor upgrades the current session after TOTP enrollment:
// the claims now carry the enabled flag and count as satisfied, and the
// pending enrollment secret is discarded.
func (m *Manager) EnableSecondFactor(w http.ResponseWriter, r *http.Request) error {
	return m.updateClaims(w, r, func(c *Claims) {
		c.TOTPEnabled = true
		c.TOTPAttempt++
		sat := c.Exp
		c.TOTP = &sat
	})
}

// DisableSecondFactor downgrades the current session after TOTP was turned
// off for the principal.
func (m *Manager) DisableSecondFactor(w http.ResponseWriter, r *http.Request) error {
	return m.updateClaims(w, r, func(c *Claims) {
		c.TOTPEnabled = false
		c.TOTP = nil
	})
}

func (m *Manager) updateClaims(w http.ResponseWriter, r *http.Request, mutate func(*Claims)) error {
	s := m.session(r)
	c := DecodeClaims(s.Values[claimsKey])
	if c == nil {
		return ErrNoClaims
	}
	mutate(c)
	enc, err := EncodeClaims(c)
	if err != nil {
		return err
	}
	s.Values[claimsKey] = enc
	return s.Save(r, w)
}

// ConsumeOneTimeRedirect guards the redirect into the second-factor prompt.
// The first call while the session needs its second factor sets the marker
// and returns false: show the prompt. Any later call returns true: the
// session is stuck mid-verification and the caller must force a logout
// instead of redirecting forever.
func (m *Manager) ConsumeOneTimeRedirect(w http.ResponseWriter, r *http.Request) (bool, error) {
	s := m.session(r)
	if StateOf(DecodeClaims(s.Values[claimsKey]), m.now()) != NeedsSecondFactor {
		return false, nil
	}
	if _, consumed := s.Values[redirectConsumedKey]; consumed {
		return true, nil
	}
	s.Values[redirectConsumedKey] = true
	return false, s.Save(r, w)
}

// SetPendingSecret stashes a not-yet-verified enrollment secret. It is only
// committed to the user repository once a code verifies against it.
func (m *Manager) SetPendingSecret(w http.ResponseWriter, r *http.Request, secret string) error {
	s := m.session(r)
	s.Values[pendingSecretKey] = secret
	return s.Save(r, w)
}

func (m *Manager) PendingSecret(r *http.Request) (string, bool) {
	secret, ok := m.session(r).Values[pendingSecretKey].(string)
	return secret, ok && secret != ""
}

func (m *Manager) ClearPendingSecret(w http.ResponseWriter, r *http.Request) error {
	s := m.session(r)
	delete(s.Values, pendingSecretKey)
	return s.Save(r, w)
}

func (m *Manager) FlashError(w http.ResponseWriter, r *http.Request, msg string) {
	m.addFlash(w, r, flashError, msg)
}

func (m *Manager) FlashInfo(w http.ResponseWriter, r *http.Request, msg string) {
	m.addFlash(w, r, flashInfo, msg)
}

func (m *Manager) addFlash(w http.ResponseWriter, r *http.Request, kind, msg string) {
	s := m.session(r)
	s.AddFlash(msg, kind)
	_ = s.Save(r, w)
}

// Flashes pops all queued flash messages, errors first.
func (m *Manager) Flashes(w http.ResponseWriter, r *http.Request) []Flash {
	s := m.session(r)
	var out []Flash
	for _, k := range []struct{ key, name string }{{flashError, "error"}, {flashInfo, "info"}} {
		for _, v := range s.Flashes(k.key) {
			if msg, ok := v.(string); ok {
				out = append(out, Flash{Kind: k.name, Message: msg})
			}
		}
	}
	if len(out) > 0 {
		_ = s.Save(r, w)
	}
	return out
}
