package auth

import (
	"errors"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"microblog/backend/config"
	"microblog/backend/models"
	"microblog/backend/repository"
)

// ErrInvalidCredentials covers both an unknown username and a wrong
// password. Callers surface it as one generic message so login responses
// cannot be used to enumerate usernames.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Verifier checks primary credentials against the user repository and TOTP
// codes against a shared secret. It holds no session state.
type Verifier struct {
	users repository.UserRepository
	totp  config.TOTPConfig
}

func NewVerifier(users repository.UserRepository, totpCfg config.TOTPConfig) *Verifier {
	return &Verifier{users: users, totp: totpCfg}
}

// VerifyPassword looks up the user by exact username and compares the bcrypt
// hash. Missing user and wrong password collapse into the same error; only
// repository failures other than not-found propagate as-is.
func (v *Verifier) VerifyPassword(username, password string) (*models.User, error) {
	user, err := v.users.FindByUsername(username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// VerifyTOTP reports whether code is valid for secret at the given instant,
// within the configured digit count, time step, and skew window. Pure: the
// clock is an argument, not owned state.
func (v *Verifier) VerifyTOTP(secret, code string, at time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    v.totp.Period,
		Skew:      v.totp.Skew,
		Digits:    otp.Digits(v.totp.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// GenerateEnrollmentKey creates a fresh TOTP key for the account, used
// during enrollment to render the QR code. The secret is not persisted here.
func (v *Verifier) GenerateEnrollmentKey(accountName string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      v.totp.Issuer,
		AccountName: accountName,
		Period:      v.totp.Period,
		Digits:      otp.Digits(v.totp.Digits),
	})
}
