// Package apns implements token-based authentication and delivery for the
// Apple Push Notification service, including the VoIP push category used to
// raise the native incoming-call UI.
package apns

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// APNs does not enforce exp, but provider tokens older than an hour are
// rejected. Re-mint a little early.
const tokenLifetime = 55 * time.Minute

// Signer mints ES256 provider tokens for APNs requests. Tokens are cached
// and re-minted once they approach the one-hour provider limit.
type Signer struct {
	teamID string
	keyID  string
	key    *ecdsa.PrivateKey

	mu       sync.Mutex
	token    string
	mintedAt time.Time
	now      func() time.Time
}

// NewSigner parses the PKCS8-encoded P-256 private key immediately so bad
// credentials fail at startup, not at first send.
func NewSigner(teamID, keyID, privateKeyPEM string) (*Signer, error) {
	if teamID == "" || keyID == "" || privateKeyPEM == "" {
		return nil, fmt.Errorf("apns: team id, key id and private key are required")
	}
	key, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	return &Signer{teamID: teamID, keyID: keyID, key: key, now: time.Now}, nil
}

// Bearer returns a valid provider token, reusing the cached one while it is
// fresh. A signing failure never yields a partial token.
func (s *Signer) Bearer() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Sub(s.mintedAt) < tokenLifetime {
		return s.token, nil
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": s.teamID,
		"iat": now.Unix(),
	})
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("apns: sign provider token: %w", err)
	}

	s.token = signed
	s.mintedAt = now
	return signed, nil
}

func parsePrivateKey(pemKey string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, fmt.Errorf("apns: no PEM block in private key")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("apns: parse PKCS8 key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("apns: key is %T, want *ecdsa.PrivateKey", parsed)
	}
	return key, nil
}
