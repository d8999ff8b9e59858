package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testIssuer(clock func() time.Time) *TokenIssuer {
	return NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "sporttracker-auth",
		Audience:      "sporttracker-api",
		TokenTTL:      time.Hour,
		Clock:         clock,
	})
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	issuer := testIssuer(nil)

	token, subject, expiresIn, err := issuer.IssueAnonymousToken(context.Background())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if subject == "" {
		t.Fatal("expected a minted subject")
	}
	if expiresIn != int64(time.Hour.Seconds()) {
		t.Fatalf("expected expiry of %d seconds, got %d", int64(time.Hour.Seconds()), expiresIn)
	}

	validated, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if validated != subject {
		t.Fatalf("expected subject %q, got %q", subject, validated)
	}
}

func TestIssueMintsFreshSubjects(t *testing.T) {
	issuer := testIssuer(nil)
	ctx := context.Background()

	_, first, _, err := issuer.IssueAnonymousToken(ctx)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	_, second, _, err := issuer.IssueAnonymousToken(ctx)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if first == second {
		t.Fatalf("each sign-in must mint a fresh subject, got %q twice", first)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	issuer := testIssuer(func() time.Time { return issuedAt })

	token, _, _, err := issuer.IssueAnonymousToken(context.Background())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	verifier := testIssuer(nil)
	if _, err := verifier.ValidateToken(token); err == nil {
		t.Fatal("expected validation of an expired token to fail")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := testIssuer(nil)
	token, _, _, err := issuer.IssueAnonymousToken(context.Background())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	other := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("different-secret"),
		Issuer:        "sporttracker-auth",
		Audience:      "sporttracker-api",
	})
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatal("expected validation with the wrong secret to fail")
	}
}

func TestValidateRejectsWrongAudience(t *testing.T) {
	foreign := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "sporttracker-auth",
		Audience:      "some-other-api",
		TokenTTL:      time.Hour,
	})
	token, _, _, err := foreign.IssueAnonymousToken(context.Background())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	issuer := testIssuer(nil)
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatal("expected validation of a foreign-audience token to fail")
	}
}

func TestValidateRejectsUnsignedAlgorithm(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "sporttracker-auth",
		Audience:  []string{"sporttracker-api"},
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("build unsigned token: %v", err)
	}

	issuer := testIssuer(nil)
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatal("expected rejection of the none algorithm")
	}
}

func TestIssueRequiresSigningSecret(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{})
	if _, _, _, err := issuer.IssueAnonymousToken(context.Background()); err == nil {
		t.Fatal("expected issuing without a signing secret to fail")
	}
	if _, err := issuer.ValidateToken("anything"); err == nil {
		t.Fatal("expected validating without a signing secret to fail")
	}
}
