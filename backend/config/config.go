package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen       string        `yaml:"listen"`
	PublicURL    string        `yaml:"public_url"`
	DatabasePath string        `yaml:"database_path"`
	Session      SessionConfig `yaml:"session"`
	TOTP         TOTPConfig    `yaml:"totp"`
	Logs         LogsConfig    `yaml:"logs"`
	TLS          TLSConfig     `yaml:"tls"`
}

type SessionConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Secret  string        `yaml:"secret"`
}

// TOTPConfig holds the second-factor code parameters. Defaults match the
// common authenticator-app profile: 6 digits, 30s time step, one step of
// clock skew tolerated in each direction.
type TOTPConfig struct {
	Issuer string `yaml:"issuer"`
	Digits uint   `yaml:"digits"`
	Period uint   `yaml:"period"`
	Skew   uint   `yaml:"skew"`
}

type LogsConfig struct {
	Retention time.Duration `yaml:"retention"`
}

type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

var C Config

func Load() error {
	// Defaults
	C = Config{
		Listen:       ":8080",
		PublicURL:    "http://localhost:8080",
		DatabasePath: "app.db",
		Session: SessionConfig{
			Timeout: 24 * time.Hour,
		},
		TOTP: TOTPConfig{
			Issuer: "Microblog",
			Digits: 6,
			Period: 30,
			Skew:   1,
		},
		Logs: LogsConfig{
			Retention: 48 * time.Hour,
		},
	}

	// Load from YAML if exists
	if data, err := os.ReadFile("config.yaml"); err == nil {
		if err := yaml.Unmarshal(data, &C); err != nil {
			return err
		}
	}

	// Environment overrides
	if v := os.Getenv("LISTEN"); v != "" {
		C.Listen = v
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		C.PublicURL = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		C.DatabasePath = v
	}
	if v := os.Getenv("SESSION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			C.Session.Timeout = d
		}
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		C.Session.Secret = v
	}
	if v := os.Getenv("TOTP_ISSUER"); v != "" {
		C.TOTP.Issuer = v
	}
	if v := os.Getenv("TOTP_DIGITS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil && n > 0 {
			C.TOTP.Digits = uint(n)
		}
	}
	if v := os.Getenv("TOTP_PERIOD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil && n > 0 {
			C.TOTP.Period = uint(n)
		}
	}
	if v := os.Getenv("TOTP_SKEW"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			C.TOTP.Skew = uint(n)
		}
	}
	if v := os.Getenv("LOGS_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			C.Logs.Retention = d
		}
	}
	if v := os.Getenv("TLS_ENABLED"); v == "true" {
		C.TLS.Enabled = true
	}
	if v := os.Getenv("TLS_CERT"); v != "" {
		C.TLS.Cert = v
	}
	if v := os.Getenv("TLS_KEY"); v != "" {
		C.TLS.Key = v
	}

	return nil
}

// Validate checks the invariants main cannot start without.
func Validate() error {
	if len(C.Session.Secret) < 32 {
		return fmt.Errorf("session secret must be at least 32 characters (got %d)", len(C.Session.Secret))
	}
	if C.TLS.Enabled && (C.TLS.Cert == "" || C.TLS.Key == "") {
		return fmt.Errorf("tls enabled but cert or key path missing")
	}
	return nil
}
