package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tournethub/coordinator/internal/models"
)

var (
	// ErrInvalidCredential indicates the token failed signature checks or had malformed structure.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrExpiredCredential signals that the token's expiry is in the past.
	ErrExpiredCredential = errors.New("credential expired")
)

// Claims captures the identity payload embedded in a verified credential.
type Claims struct {
	Subject    string
	Name       string
	ClientType models.ClientType
	PlatformID string
	ExpiresAt  time.Time
	IssuedAt   time.Time
}

// CredentialVerifier turns an opaque credential into identity claims. Token
// issuance is a collaborator concern; the coordinator only consumes this.
type CredentialVerifier interface {
	Verify(credential string) (*Claims, error)
}

// HMACTokenVerifier validates compact JWT-style tokens signed with HS256.
type HMACTokenVerifier struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// NewHMACTokenVerifier constructs a verifier for the supplied shared secret and clock skew allowance.
func NewHMACTokenVerifier(secret string, leeway time.Duration) (*HMACTokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("hmac secret must not be empty")
	}
	if leeway < 0 {
		leeway = 0
	}
	return &HMACTokenVerifier{secret: []byte(secret), now: time.Now, leeway: leeway}, nil
}

// Verify parses the token and validates the signature and expiry, returning the embedded claims.
func (v *HMACTokenVerifier) Verify(credential string) (*Claims, error) {
	if v == nil || len(v.secret) == 0 {
		return nil, errors.New("verifier not initialised")
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrInvalidCredential
	}

	parts := strings.Split(credential, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidCredential
	}
	headerPayload := strings.Join(parts[:2], ".")
	signaturePart := parts[2]

	headerBytes, err := decodeSegment(parts[0])
	if err != nil {
		return nil, ErrInvalidCredential
	}
	var header struct {
		Algorithm string `json:"alg"`
		Type      string `json:"typ"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, ErrInvalidCredential
	}
	if header.Algorithm != "HS256" {
		return nil, fmt.Errorf("%w: unexpected algorithm %q", ErrInvalidCredential, header.Algorithm)
	}

	expectedSig := v.sign([]byte(headerPayload))
	signatureBytes, err := decodeSegment(signaturePart)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	if !hmac.Equal(signatureBytes, expectedSig) {
		return nil, ErrInvalidCredential
	}

	payloadBytes, err := decodeSegment(parts[1])
	if err != nil {
		return nil, ErrInvalidCredential
	}
	var payload struct {
		Subject    string `json:"sub"`
		Name       string `json:"name"`
		ClientType int32  `json:"typ"`
		PlatformID string `json:"plat"`
		Expires    int64  `json:"exp"`
		Issued     int64  `json:"iat"`
	}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, ErrInvalidCredential
	}
	if strings.TrimSpace(payload.Subject) == "" {
		return nil, ErrInvalidCredential
	}
	if payload.Expires <= 0 {
		return nil, ErrInvalidCredential
	}
	expiresAt := time.Unix(payload.Expires, 0)
	if expiresAt.Add(v.leeway).Before(v.now()) {
		return nil, ErrExpiredCredential
	}

	return &Claims{
		Subject:    payload.Subject,
		Name:       payload.Name,
		ClientType: models.ClientType(payload.ClientType),
		PlatformID: payload.PlatformID,
		ExpiresAt:  expiresAt,
		IssuedAt:   time.Unix(payload.Issued, 0),
	}, nil
}

func (v *HMACTokenVerifier) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

func decodeSegment(segment string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(segment)
}

// WithClock overrides the verifier clock, enabling deterministic unit tests.
func (v *HMACTokenVerifier) WithClock(clock func() time.Time) {
	if clock == nil {
		return
	}
	v.now = clock
}
