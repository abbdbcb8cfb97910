package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"tournethub/coordinator/internal/models"
)

func TestHMACTokenVerifierValidCredential(t *testing.T) {
	verifier, err := NewHMACTokenVerifier("secret", time.Second)
	if err != nil {
		t.Fatalf("NewHMACTokenVerifier: %v", err)
	}
	fixedNow := time.Unix(1700000000, 0)
	verifier.WithClock(func() time.Time { return fixedNow })
	token := makeCredential(t, "secret", "player-7", models.ClientTypePlayer, fixedNow.Add(30*time.Second))

	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if claims.Subject != "player-7" {
		t.Fatalf("unexpected subject: %q", claims.Subject)
	}
	if claims.ClientType != models.ClientTypePlayer {
		t.Fatalf("unexpected client type: %v", claims.ClientType)
	}
	if claims.ExpiresAt.Before(fixedNow) {
		t.Fatal("expected expiry in the future")
	}
}

func TestHMACTokenVerifierRejectsExpiredCredential(t *testing.T) {
	verifier, err := NewHMACTokenVerifier("secret", 0)
	if err != nil {
		t.Fatalf("NewHMACTokenVerifier: %v", err)
	}
	now := time.Unix(1700000000, 0)
	verifier.WithClock(func() time.Time { return now })
	token := makeCredential(t, "secret", "player-7", models.ClientTypePlayer, now.Add(-time.Second))

	if _, err := verifier.Verify(token); !errors.Is(err, ErrExpiredCredential) {
		t.Fatalf("expected ErrExpiredCredential, got %v", err)
	}
}

func TestHMACTokenVerifierRejectsInvalidSignature(t *testing.T) {
	verifier, err := NewHMACTokenVerifier("secret", time.Second)
	if err != nil {
		t.Fatalf("NewHMACTokenVerifier: %v", err)
	}
	now := time.Unix(1700000000, 0)
	verifier.WithClock(func() time.Time { return now })
	token := makeCredential(t, "other-secret", "player-7", models.ClientTypePlayer, now.Add(time.Minute))

	if _, err := verifier.Verify(token); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
}

func TestHMACTokenVerifierRejectsMalformedCredential(t *testing.T) {
	verifier, err := NewHMACTokenVerifier("secret", time.Second)
	if err != nil {
		t.Fatalf("NewHMACTokenVerifier: %v", err)
	}
	for _, credential := range []string{"", "only-one-part", "a.b", "a.b.c.d"} {
		if _, err := verifier.Verify(credential); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("credential %q: expected ErrInvalidCredential, got %v", credential, err)
		}
	}
}

func makeCredential(t *testing.T, secret, subject string, clientType models.ClientType, expires time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256"}`))
	payload := fmt.Sprintf(`{"sub":"%s","name":"%s","typ":%d,"plat":"%s","exp":%d,"iat":%d}`,
		subject, subject, clientType, subject+"-platform", expires.Unix(), expires.Add(-time.Minute).Unix())
	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	signingInput := header + "." + encodedPayload
	mac := hmac.New(sha256.New, []byte(secret))
	if _, err := mac.Write([]byte(signingInput)); err != nil {
		t.Fatalf("mac write: %v", err)
	}
	signature := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return signingInput + "." + signature
}
