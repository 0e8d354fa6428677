package auth

import "time"

// State classifies a session for routing decisions.
type State int

const (
	// Anonymous: no claims, or claims past their expiry.
	Anonymous State = iota
	// NeedsSecondFactor: primary credentials accepted but the TOTP step is
	// still owed for this session.
	NeedsSecondFactor
	// Authenticated: claims valid and the second factor either satisfied or
	// not enabled for this principal.
	Authenticated
)

func (s State) String() string {
	switch s {
	case NeedsSecondFactor:
		return "needs-second-factor"
	case Authenticated:
		return "authenticated"
	default:
		return "anonymous"
	}
}

// StateOf derives the session state from claims alone. Pure; the one-time
// redirect marker is tracked separately by the Manager.
func StateOf(c *Claims, now time.Time) State {
	if c == nil || c.Expired(now) {
		return Anonymous
	}
	if c.TOTPEnabled && !c.SecondFactorSatisfied(now) {
		return NeedsSecondFactor
	}
	return Authenticated
}
