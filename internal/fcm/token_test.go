package fcm

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testRSAKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	return key, string(pemKey)
}

func TestParseServiceAccount(t *testing.T) {
	_, pemKey := testRSAKey(t)
	raw, _ := json.Marshal(map[string]string{
		"project_id":   "callme-test",
		"client_email": "svc@callme-test.iam.gserviceaccount.com",
		"private_key":  pemKey,
	})

	sa, key, err := ParseServiceAccount(raw)
	if err != nil {
		t.Fatal(err)
	}
	if key == nil {
		t.Fatal("no key parsed")
	}
	if sa.ProjectID != "callme-test" {
		t.Fatalf("project id = %q", sa.ProjectID)
	}
	if sa.TokenURI != "https://oauth2.googleapis.com/token" {
		t.Fatalf("token uri default = %q", sa.TokenURI)
	}
}

func TestParseServiceAccountRejectsIncomplete(t *testing.T) {
	if _, _, err := ParseServiceAccount([]byte(`{"project_id":"p"}`)); err == nil {
		t.Fatal("expected error for missing fields")
	}
	if _, _, err := ParseServiceAccount([]byte(`not json`)); err == nil {
		t.Fatal("expected error for bad json")
	}
}

func TestAccessTokenExchange(t *testing.T) {
	key, pemKey := testRSAKey(t)

	var gotGrant, gotAssertion string
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		gotGrant = r.PostFormValue("grant_type")
		gotAssertion = r.PostFormValue("assertion")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"X","expires_in":3600}`))
	}))
	defer server.Close()

	sa := &ServiceAccount{
		ProjectID:   "callme-test",
		ClientEmail: "svc@callme-test.iam.gserviceaccount.com",
		PrivateKey:  pemKey,
		TokenURI:    server.URL,
	}
	ts := NewTokenSource(sa, key, 5*time.Second)

	token, err := ts.AccessToken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if token != "X" {
		t.Fatalf("token = %q, want X", token)
	}
	if gotGrant != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
		t.Fatalf("grant_type = %q", gotGrant)
	}

	// The assertion must be an RS256 JWT with the messaging scope,
	// addressed to the token endpoint and signed by the service key.
	parsed, err := jwt.Parse(gotAssertion, func(token *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		t.Fatalf("assertion does not verify: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["iss"] != sa.ClientEmail {
		t.Fatalf("iss = %v", claims["iss"])
	}
	if claims["scope"] != "https://www.googleapis.com/auth/firebase.messaging" {
		t.Fatalf("scope = %v", claims["scope"])
	}
	if claims["aud"] != server.URL {
		t.Fatalf("aud = %v", claims["aud"])
	}

	// A fresh token is served from cache.
	again, err := ts.AccessToken(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again != "X" || calls != 1 {
		t.Fatalf("expected cached token, got %q after %d calls", again, calls)
	}
}

func TestAccessTokenSurfacesEndpointBody(t *testing.T) {
	key, pemKey := testRSAKey(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	sa := &ServiceAccount{
		ProjectID:   "p",
		ClientEmail: "e@p.iam",
		PrivateKey:  pemKey,
		TokenURI:    server.URL,
	}
	ts := NewTokenSource(sa, key, 5*time.Second)

	_, err := ts.AccessToken(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invalid_grant") {
		t.Fatalf("error %q does not surface the response body", err)
	}
}
