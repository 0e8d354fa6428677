// Package auth implements the session-backed authentication state machine:
// claims encoding, state derivation, and the transitions between anonymous,
// pending-second-factor, and fully authenticated sessions.
package auth

import (
	"encoding/json"
	"time"
)

// Claims is the authentication record stored in the session. Instants are
// Unix seconds; TOTP is nil until the second factor has been satisfied.
type Claims struct {
	Subject     string `json:"sub"`
	Username    string `json:"username"`
	Exp         int64  `json:"exp"`
	TOTPEnabled bool   `json:"totpEnabled"`
	TOTPAttempt int    `json:"totpAttempt"`
	TOTP        *int64 `json:"totp,omitempty"`
}

func (c *Claims) Expired(now time.Time) bool {
	return now.Unix() >= c.Exp
}

// SecondFactorSatisfied reports whether the TOTP step has been completed and
// is still valid. Meaningless when TOTPEnabled is false.
func (c *Claims) SecondFactorSatisfied(now time.Time) bool {
	return c.TOTP != nil && now.Unix() < *c.TOTP
}

// EncodeClaims serializes claims for session storage.
func EncodeClaims(c *Claims) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeClaims turns a raw session value back into claims. Absent, foreign,
// or corrupt values decode to nil: malformed session data means anonymous,
// never a failed request.
func DecodeClaims(raw any) *Claims {
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil
	}
	var c Claims
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return nil
	}
	if c.Subject == "" {
		return nil
	}
	return &c
}
