// Package testing provides a mock token issuer for exercising the access
// layer without a real identity provider. It serves JWKS over httptest and
// signs tokens that validate against it.
package testing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	jwtkit "github.com/open-rails/vpnkit/jwt"
)

// TestIssuer runs an HTTP server exposing /.well-known/jwks.json and mints
// JWTs signed with the matching private key.
type TestIssuer struct {
	server   *httptest.Server
	signer   *jwtkit.RSASigner
	audience string
}

// NewTestIssuer creates a test issuer for the given audience. Call Close when
// done.
func NewTestIssuer(audience string) *TestIssuer {
	signer, err := jwtkit.NewRSASigner(2048, "test-key-1")
	if err != nil {
		panic("failed to create RSA signer: " + err.Error())
	}

	ti := &TestIssuer{signer: signer, audience: audience}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", ti.handleJWKS)
	ti.server = httptest.NewServer(mux)
	return ti
}

// URL returns the issuer base URL.
func (ti *TestIssuer) URL() string { return ti.server.URL }

// JWKSURL returns the full JWKS document URL.
func (ti *TestIssuer) JWKSURL() string { return ti.server.URL + "/.well-known/jwks.json" }

// Audience returns the audience baked into minted tokens.
func (ti *TestIssuer) Audience() string { return ti.audience }

// Close shuts down the test server.
func (ti *TestIssuer) Close() { ti.server.Close() }

func (ti *TestIssuer) handleJWKS(w http.ResponseWriter, r *http.Request) {
	k := jwtkit.RSAPublicToJWK(ti.signer.PublicKey(), ti.signer.KID(), ti.signer.Algorithm())
	jwtkit.ServeJWKS(w, r, jwtkit.JWKS{Keys: []jwtkit.JWK{k}})
}

// CreateToken mints a token for the user valid for one hour.
func (ti *TestIssuer) CreateToken(userID string) string {
	return ti.CreateTokenWithExpiry(userID, time.Now().Add(time.Hour))
}

// CreateTokenWithExpiry mints a token with a custom expiry; pass a past time
// to test expiration handling.
func (ti *TestIssuer) CreateTokenWithExpiry(userID string, expiry time.Time) string {
	claims := jwt.MapClaims{
		"sub": userID,
		"iss": ti.URL(),
		"aud": ti.audience,
		"exp": expiry.Unix(),
		"iat": time.Now().Unix(),
	}
	token, err := ti.signer.Sign(context.Background(), claims)
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return token
}
