// Package fcm implements OAuth2 service-account authentication and message
// delivery for Firebase Cloud Messaging (HTTP v1 API).
package fcm

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	messagingScope = "https://www.googleapis.com/auth/firebase.messaging"
	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	// Re-mint a little before the provider expiry.
	expiryMargin = 5 * time.Minute
)

// ServiceAccount is the subset of the Firebase service-account JSON the
// token exchange needs.
type ServiceAccount struct {
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// ParseServiceAccount decodes the service-account JSON and parses its RSA
// key so bad credentials fail at startup.
func ParseServiceAccount(raw []byte) (*ServiceAccount, *rsa.PrivateKey, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, nil, fmt.Errorf("fcm: parse service account: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" || sa.ProjectID == "" {
		return nil, nil, fmt.Errorf("fcm: service account missing client_email, private_key or project_id")
	}
	if sa.TokenURI == "" {
		sa.TokenURI = "https://oauth2.googleapis.com/token"
	}

	block, _ := pem.Decode([]byte(sa.PrivateKey))
	if block == nil {
		return nil, nil, fmt.Errorf("fcm: no PEM block in service account key")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("fcm: parse PKCS8 key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, fmt.Errorf("fcm: key is %T, want *rsa.PrivateKey", parsed)
	}
	return &sa, key, nil
}

// TokenSource exchanges a signed RS256 assertion for an OAuth2 access token
// and caches it until shortly before expiry.
type TokenSource struct {
	sa   *ServiceAccount
	key  *rsa.PrivateKey
	http *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
	now    func() time.Time
}

func NewTokenSource(sa *ServiceAccount, key *rsa.PrivateKey, timeout time.Duration) *TokenSource {
	return &TokenSource{
		sa:   sa,
		key:  key,
		http: &http.Client{Timeout: timeout},
		now:  time.Now,
	}
}

// AccessToken returns a bearer token for the firebase.messaging scope.
func (ts *TokenSource) AccessToken(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Before(ts.expiry) {
		return ts.token, nil
	}

	now := ts.now()
	assertion := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   ts.sa.ClientEmail,
		"scope": messagingScope,
		"aud":   ts.sa.TokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	signed, err := assertion.SignedString(ts.key)
	if err != nil {
		return "", fmt.Errorf("fcm: sign assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", signed)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.sa.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fcm: token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fcm: token endpoint status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("fcm: decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("fcm: token endpoint returned no access_token: %s", string(body))
	}

	ts.token = parsed.AccessToken
	ts.expiry = now.Add(time.Duration(parsed.ExpiresIn)*time.Second - expiryMargin)
	return ts.token, nil
}
