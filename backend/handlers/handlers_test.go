package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"microblog/backend/auth"
	"microblog/backend/config"
	"microblog/backend/models"
	"microblog/backend/repository"
)

func setupTestHandler(t *testing.T) (*Handler, repository.UserRepository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.LogEntry{}); err != nil {
		t.Fatal(err)
	}

	users := repository.NewUserRepository(db)
	store, err := auth.NewStore("test-secret-key-32-chars-long!!!", time.Hour, false)
	if err != nil {
		t.Fatal(err)
	}
	sessions := auth.NewManager(store, time.Hour)
	verifier := auth.NewVerifier(users, config.TOTPConfig{Issuer: "Microblog", Digits: 6, Period: 30, Skew: 1})

	return New(sessions, users, verifier, nil), users, db
}

func seedUser(t *testing.T, users repository.UserRepository, username, password, totpSecret string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	user := &models.User{
		Username:    username,
		Password:    string(hash),
		TOTPEnabled: totpSecret != "",
		TOTPSecret:  totpSecret,
	}
	if err := users.Create(user); err != nil {
		t.Fatal(err)
	}
	return user
}

// postForm builds a form POST carrying the session from a previous response.
// Later Set-Cookie headers win, as in a browser.
func postForm(target string, form url.Values, prev *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest("POST", target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	addSessionCookies(req, prev)
	return req
}

func getReq(target string, prev *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest("GET", target, nil)
	addSessionCookies(req, prev)
	return req
}

func addSessionCookies(req *http.Request, prev *httptest.ResponseRecorder) {
	if prev == nil {
		return
	}
	jar := make(map[string]*http.Cookie)
	for _, cookie := range prev.Result().Cookies() {
		jar[cookie.Name] = cookie
	}
	for _, cookie := range jar {
		req.AddCookie(cookie)
	}
}

func doLogin(t *testing.T, h *Handler, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	rr := httptest.NewRecorder()
	h.Login(rr, postForm("/login", form, nil))
	return rr
}

func location(rr *httptest.ResponseRecorder) string {
	return rr.Header().Get("Location")
}
