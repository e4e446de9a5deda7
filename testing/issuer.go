// Package authtest runs a stand-in identity provider for tests. It serves a
// JWKS at /.well-known/jwks.json and signs credentials that verify against it.
//
//	issuer := authtest.NewIssuer()
//	defer issuer.Close()
//
//	verifier, _ := jwtkit.NewJWKSVerifier(ctx, issuer.AcceptConfig())
//	token := issuer.CreateToken("user-123", "test@example.com")
package authtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"

	authhttp "github.com/PaulFidika/accesskit/adapters/http"
	"github.com/PaulFidika/accesskit/core"
	jwtkit "github.com/PaulFidika/accesskit/jwt"
)

// Issuer signs RS256 credentials and publishes the matching key.
type Issuer struct {
	server   *httptest.Server
	signer   *jwtkit.RSASigner
	keys     jwk.Set
	audience string
}

// NewIssuer creates an issuer with audience "authenticated".
func NewIssuer() *Issuer {
	return NewIssuerWithAudience("authenticated")
}

func NewIssuerWithAudience(audience string) *Issuer {
	signer, err := jwtkit.NewRSASigner(2048, "test-key-1")
	if err != nil {
		panic("authtest: rsa signer: " + err.Error())
	}
	keys, err := jwtkit.PublicKeySet(signer.PublicKey(), signer.KID())
	if err != nil {
		panic("authtest: jwks: " + err.Error())
	}
	ti := &Issuer{signer: signer, keys: keys, audience: audience}
	mux := http.NewServeMux()
	mux.Handle(authhttp.JWKSPath, authhttp.JWKSHandler(keys))
	ti.server = httptest.NewServer(mux)
	return ti
}

// URL is the issuer claim and the JWKS base URL.
func (ti *Issuer) URL() string { return ti.server.URL }

func (ti *Issuer) Audience() string { return ti.audience }

// Keys returns the published key set, for verifiers that skip the fetch.
func (ti *Issuer) Keys() jwk.Set { return ti.keys }

// AcceptConfig returns verifier settings that accept this issuer's credentials.
func (ti *Issuer) AcceptConfig() core.AcceptConfig {
	return core.AcceptConfig{
		Issuer:   ti.URL(),
		Audience: ti.audience,
		JWKSURL:  ti.URL() + authhttp.JWKSPath,
	}
}

func (ti *Issuer) Close() {
	if ti.server != nil {
		ti.server.Close()
	}
}

// CreateToken signs a one-hour credential for userID.
func (ti *Issuer) CreateToken(userID, email string) string {
	return ti.CreateTokenWithClaims(userID, email, nil)
}

// CreateTokenWithClaims merges extra over the standard sub, email, iss, aud, exp and iat.
func (ti *Issuer) CreateTokenWithClaims(userID, email string, extra map[string]any) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"iss":   ti.URL(),
		"aud":   ti.audience,
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	token, err := ti.signer.Sign(context.Background(), claims)
	if err != nil {
		panic("authtest: sign: " + err.Error())
	}
	return token
}

func (ti *Issuer) CreateTokenWithRoles(userID, email string, roles ...string) string {
	return ti.CreateTokenWithClaims(userID, email, map[string]any{"roles": roles})
}

func (ti *Issuer) CreateTokenWithExpiry(userID, email string, expiry time.Time) string {
	return ti.CreateTokenWithClaims(userID, email, map[string]any{"exp": expiry.Unix()})
}

func (ti *Issuer) CreateExpiredToken(userID, email string) string {
	return ti.CreateTokenWithExpiry(userID, email, time.Now().Add(-time.Hour))
}
