package jwtkit

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Signer mints credentials. The access core only verifies; signers exist for
// local development and tests.
type Signer interface {
	// Algorithm returns the JWS algorithm (e.g., RS256, HS256).
	Algorithm() string
	// KID returns current key id.
	KID() string
	Sign(ctx context.Context, claims jwt.MapClaims) (token string, err error)
}

// RSASigner is an in-memory RS256 signer.
type RSASigner struct {
	key *rsa.PrivateKey
	kid string
}

func NewRSASigner(bits int, kid string) (*RSASigner, error) {
	if bits == 0 {
		bits = 2048
	}
	k, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	return &RSASigner{key: k, kid: kid}, nil
}

func (s *RSASigner) Algorithm() string         { return jwt.SigningMethodRS256.Alg() }
func (s *RSASigner) KID() string               { return s.kid }
func (s *RSASigner) PublicKey() *rsa.PublicKey { return &s.key.PublicKey }

func (s *RSASigner) Sign(_ context.Context, claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.kid
	return token.SignedString(s.key)
}

// HMACSigner signs HS256 credentials with the shared secret the hosted
// identity provider uses.
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret []byte) (*HMACSigner, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwtkit: empty hmac secret")
	}
	return &HMACSigner{secret: secret}, nil
}

func (s *HMACSigner) Algorithm() string { return jwt.SigningMethodHS256.Alg() }
func (s *HMACSigner) KID() string       { return "" }

func (s *HMACSigner) Sign(_ context.Context, claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
