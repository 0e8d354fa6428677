package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"microblog/backend/auth"
	"microblog/backend/config"
	"microblog/backend/database"
	"microblog/backend/handlers"
	"microblog/backend/logger"
	"microblog/backend/middleware"
	"microblog/backend/repository"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if err := config.Validate(); err != nil {
		log.Fatal("Invalid config:", err)
	}

	db, err := database.Open(config.C.DatabasePath)
	if err != nil {
		log.Fatal("Failed to init database:", err)
	}

	slog.SetDefault(slog.New(logger.NewDBHandler(db)))
	go logger.CleanupOldLogs(db, config.C.Logs.Retention)

	store, err := auth.NewStore(config.C.Session.Secret, config.C.Session.Timeout, config.C.TLS.Enabled)
	if err != nil {
		log.Fatal("Failed to init session store:", err)
	}
	sessions := auth.NewManager(store, config.C.Session.Timeout)

	users := repository.NewUserRepository(db)
	verifier := auth.NewVerifier(users, config.C.TOTP)
	csrf := middleware.NewCSRFProtection(config.C.Session.Secret, config.C.TLS.Enabled)
	h := handlers.New(sessions, users, verifier, csrf)

	requireAuth := middleware.RequireAuth(sessions)
	// Credential endpoints get tighter limits than the rest of the app.
	credLimiter := middleware.NewRateLimiter(10, time.Minute)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("POST /login", credLimiter.LimitFunc(h.Login))
	mux.HandleFunc("GET /register", h.RegisterPage)
	mux.HandleFunc("POST /register", credLimiter.LimitFunc(h.Register))
	mux.HandleFunc("GET /otp", h.OTPPage)
	mux.HandleFunc("POST /otp", credLimiter.LimitFunc(h.OTPVerify))

	mux.HandleFunc("GET /account/settings", requireAuth(h.Settings))
	mux.HandleFunc("GET /account/2fa", requireAuth(h.TwoFactorPage))
	mux.HandleFunc("POST /account/2fa/validate", requireAuth(h.TwoFactorValidate))
	mux.HandleFunc("POST /account/2fa/disable", requireAuth(h.TwoFactorDisable))
	mux.HandleFunc("POST /account/logout", h.Logout)

	handler := middleware.SecurityHeaders(csrf.Protect(mux))

	slog.Info("server starting", "source", "main", "listen", config.C.Listen, "public_url", config.C.PublicURL)
	fmt.Printf("Server running at %s (public: %s)\n", config.C.Listen, config.C.PublicURL)
	if config.C.TLS.Enabled {
		log.Fatal(http.ListenAndServeTLS(config.C.Listen, config.C.TLS.Cert, config.C.TLS.Key, handler))
	} else {
		log.Fatal(http.ListenAndServe(config.C.Listen, handler))
	}
}
