package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"microblog/backend/auth"
	"microblog/backend/middleware"
	"microblog/backend/models"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return code
}

func TestOTPVerify_ValidCodeCompletesLogin(t *testing.T) {
	h, users, _ := setupTestHandler(t)
	seedUser(t, users, "alice", "correct horse", testSecret)
	loginRR := doLogin(t, h, "alice", "correct horse")

	form := url.Values{}
	form.Set("code", currentCode(t, testSecret))
	rr := httptest.NewRecorder()
	h.OTPVerify(rr, postForm("/otp", form, loginRR))

	if rr.Code != http.StatusSeeOther || location(rr) != "/" {
		t.Errorf("expected 303 to /, got %d to %q", rr.Code, location(rr))
	}

	req := getReq("/", rr)
	if got := h.Sessions.State(req); got != auth.Authenticated {
		t.Errorf("state should be Authenticated after valid code, got %v", got)
	}
	if claims := h.Sessions.Claims(req); claims == nil || claims.TOTPAttempt != 1 {
		t.Errorf("attempt counter should be 1 after the successful attempt, got %+v", claims)
	}
}

func TestOTPVerify_ThreeFailuresNoLockout(t *testing.T) {
	h, users, _ := setupTestHandler(t)
	seedUser(t, users, "alice", "correct horse", testSecret)
	prev := doLogin(t, h, "alice", "correct horse")

	for i := 1; i <= 3; i++ {
		form := url.Values{}
		form.Set("code", "000000")
		rr := httptest.NewRecorder()
		h.OTPVerify(rr, postForm("/otp", form, prev))

		if location(rr) != "/otp" {
			t.Fatalf("failure %d: expected bounce to /otp, got %q", i, location(rr))
		}
		req := getReq("/", rr)
		if got := h.Sessions.State(req); got != auth.NeedsSecondFactor {
			t.Errorf("failure %d: state should remain NeedsSecondFactor, got %v", i, got)
		}
		if claims := h.Sessions.Claims(req); claims.TOTPAttempt != i {
			t.Errorf("failure %d: attempt counter should be %d, got %d", i, i, claims.TOTPAttempt)
		}
		prev = rr
	}

	// Still no lockout: the correct code goes through on the fourth try.
	form := url.Values{}
	form.Set("code", currentCode(t, testSecret))
	rr := httptest.NewRecorder()
	h.OTPVerify(rr, postForm("/otp", form, prev))
	req := getReq("/", rr)
	if got := h.Sessions.State(req); got != auth.Authenticated {
		t.Errorf("valid code after failures should still authenticate, got %v", got)
	}
	if claims := h.Sessions.Claims(req); claims.TOTPAttempt != 4 {
		t.Errorf("attempt counter should be 4, got %d", claims.TOTPAttempt)
	}
}

func TestOTPVerify_OutsideSecondFactorRedirects(t *testing.T) {
	h, users, _ := setupTestHandler(t)

	// Anonymous.
	form := url.Values{}
	form.Set("code", "123456")
	rr := httptest.NewRecorder()
	h.OTPVerify(rr, postForm("/otp", form, nil))
	if location(rr) != "/" {
		t.Errorf("anonymous OTP post should bounce to /, got %q", location(rr))
	}

	// Fully authenticated (no second factor enabled).
	seedUser(t, users, "alice", "correct horse", "")
	loginRR := doLogin(t, h, "alice", "correct horse")
	rr = httptest.NewRecorder()
	h.OTPVerify(rr, postForm("/otp", form, loginRR))
	if location(rr) != "/" {
		t.Errorf("authenticated OTP post should bounce to /, got %q", location(rr))
	}
}

func TestOTPPage_OnlyForPendingSessions(t *testing.T) {
	h, users, _ := setupTestHandler(t)

	rr := httptest.NewRecorder()
	h.OTPPage(rr, getReq("/otp", nil))
	if location(rr) != "/" {
		t.Errorf("anonymous prompt request should bounce to /, got %q", location(rr))
	}

	seedUser(t, users, "alice", "correct horse", testSecret)
	loginRR := doLogin(t, h, "alice", "correct horse")
	rr = httptest.NewRecorder()
	h.OTPPage(rr, getReq("/otp", loginRR))
	if rr.Code != http.StatusOK {
		t.Errorf("pending session should see the prompt, got %d", rr.Code)
	}
}

// Full flow through the route guard: login with a second factor, get
// redirected into the prompt, verify, then reach the protected page.
func TestSecondFactorFlow_EndToEnd(t *testing.T) {
	h, users, _ := setupTestHandler(t)
	seedUser(t, users, "alice", "correct horse", testSecret)

	invoked := false
	guard := middleware.RequireAuth(h.Sessions)(func(w http.ResponseWriter, r *http.Request) {
		invoked = true
		w.WriteHeader(http.StatusOK)
	})

	loginRR := doLogin(t, h, "alice", "correct horse")

	// Guarded request before verifying: redirected to the prompt.
	guardRR := httptest.NewRecorder()
	guard(guardRR, getReq("/account/settings", loginRR))
	if invoked || location(guardRR) != "/otp" {
		t.Fatalf("expected redirect to /otp, invoked=%v location=%q", invoked, location(guardRR))
	}

	// Verify the code.
	form := url.Values{}
	form.Set("code", currentCode(t, testSecret))
	verifyRR := httptest.NewRecorder()
	h.OTPVerify(verifyRR, postForm("/otp", form, guardRR))

	// Guarded request now reaches the handler.
	finalRR := httptest.NewRecorder()
	guard(finalRR, getReq("/account/settings", verifyRR))
	if !invoked {
		t.Error("handler should run after the second factor is satisfied")
	}
}

// A replayed guarded request before verifying forces a fresh login.
func TestSecondFactorFlow_ReplayForcesLogout(t *testing.T) {
	h, users, _ := setupTestHandler(t)
	seedUser(t, users, "alice", "correct horse", testSecret)

	invoked := false
	guard := middleware.RequireAuth(h.Sessions)(func(w http.ResponseWriter, r *http.Request) { invoked = true })

	loginRR := doLogin(t, h, "alice", "correct horse")

	first := httptest.NewRecorder()
	guard(first, getReq("/account/settings", loginRR))
	if location(first) != "/otp" {
		t.Fatalf("first guarded request should prompt, got %q", location(first))
	}

	second := httptest.NewRecorder()
	guard(second, getReq("/account/settings", first))
	if location(second) != "/" {
		t.Fatalf("second guarded request should force logout, got %q", location(second))
	}
	if invoked {
		t.Error("handler must never run before verification")
	}
	if got := h.Sessions.State(getReq("/", second)); got != auth.Anonymous {
		t.Errorf("session should be anonymous after forced logout, got %v", got)
	}
}

func TestOTPVerify_DeletedUserGetsLoggedOut(t *testing.T) {
	h, users, db := setupTestHandler(t)
	user := seedUser(t, users, "alice", "correct horse", testSecret)
	loginRR := doLogin(t, h, "alice", "correct horse")

	// The account disappears between login and verification.
	if err := db.Unscoped().Delete(&models.User{}, user.ID).Error; err != nil {
		t.Fatal(err)
	}

	form := url.Values{}
	form.Set("code", currentCode(t, testSecret))
	rr := httptest.NewRecorder()
	h.OTPVerify(rr, postForm("/otp", form, loginRR))

	if location(rr) != "/" {
		t.Errorf("vanished principal should bounce to /, got %q", location(rr))
	}
	if got := h.Sessions.State(getReq("/", rr)); got != auth.Anonymous {
		t.Errorf("stale claims should be dropped, got %v", got)
	}
}
