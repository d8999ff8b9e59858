package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newAuthBackend(t *testing.T, signIns *atomic.Int64, expiresIn int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != signInPath || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		count := signIns.Add(1)
		json.NewEncoder(w).Encode(signInResponse{
			AccessToken: "token-" + string(rune('a'+count-1)),
			UserID:      "user-" + string(rune('a'+count-1)),
			ExpiresIn:   expiresIn,
			TokenType:   "Bearer",
		})
	}))
}

func newTestSession(t *testing.T, baseURL string, clock func() time.Time) *Session {
	t.Helper()
	session, err := NewSession(SessionConfig{
		BaseURL: baseURL,
		Clock:   clock,
		Logger:  zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("construct session: %v", err)
	}
	return session
}

func TestCurrentUserIDSignsInImplicitly(t *testing.T) {
	var signIns atomic.Int64
	server := newAuthBackend(t, &signIns, 3600)
	defer server.Close()

	session := newTestSession(t, server.URL, nil)
	ctx := context.Background()

	userID, err := session.CurrentUserID(ctx)
	if err != nil {
		t.Fatalf("current user id: %v", err)
	}
	if userID != "user-a" {
		t.Fatalf("expected user-a, got %q", userID)
	}

	// The cached session is reused; no second sign-in round trip.
	again, err := session.CurrentUserID(ctx)
	if err != nil {
		t.Fatalf("current user id: %v", err)
	}
	if again != "user-a" || signIns.Load() != 1 {
		t.Fatalf("expected one cached sign-in, got user %q after %d sign-ins", again, signIns.Load())
	}
}

func TestCurrentUserIDResolvesEmptyWhenOffline(t *testing.T) {
	session := newTestSession(t, "http://127.0.0.1:1", nil)

	userID, err := session.CurrentUserID(context.Background())
	if err != nil {
		t.Fatalf("an unreachable backend must not be an error here: %v", err)
	}
	if userID != "" {
		t.Fatalf("expected no current user, got %q", userID)
	}
}

func TestTokenFailsWhenOffline(t *testing.T) {
	session := newTestSession(t, "http://127.0.0.1:1", nil)

	if _, err := session.Token(context.Background()); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
}

func TestSessionReSignsInAfterExpiry(t *testing.T) {
	var signIns atomic.Int64
	server := newAuthBackend(t, &signIns, 60)
	defer server.Close()

	now := time.Unix(1000, 0)
	session := newTestSession(t, server.URL, func() time.Time { return now })
	ctx := context.Background()

	first, err := session.CurrentUserID(ctx)
	if err != nil {
		t.Fatalf("current user id: %v", err)
	}

	now = now.Add(2 * time.Minute)
	second, err := session.CurrentUserID(ctx)
	if err != nil {
		t.Fatalf("current user id after expiry: %v", err)
	}
	if signIns.Load() != 2 {
		t.Fatalf("expected a re-sign-in after expiry, got %d sign-ins", signIns.Load())
	}
	if first == second {
		t.Fatalf("expected a fresh anonymous identity, got %q twice", first)
	}
}

func TestSignOutDropsSession(t *testing.T) {
	var signIns atomic.Int64
	server := newAuthBackend(t, &signIns, 3600)
	defer server.Close()

	session := newTestSession(t, server.URL, nil)
	ctx := context.Background()

	if _, err := session.Token(ctx); err != nil {
		t.Fatalf("token: %v", err)
	}
	session.SignOut()

	if _, err := session.CurrentUserID(ctx); err != nil {
		t.Fatalf("current user id: %v", err)
	}
	if signIns.Load() != 2 {
		t.Fatalf("expected a fresh sign-in after sign-out, got %d sign-ins", signIns.Load())
	}
}

func TestSignInRejectsMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(signInResponse{AccessToken: "", UserID: ""})
	}))
	defer server.Close()

	session := newTestSession(t, server.URL, nil)
	if _, err := session.Token(context.Background()); err == nil {
		t.Fatal("expected a malformed sign-in response to fail")
	}
}
