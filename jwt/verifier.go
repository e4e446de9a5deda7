package jwtkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	jwxt "github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/PaulFidika/accesskit/core"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("jwtkit: invalid token")

// HMACVerifier verifies credentials signed with a shared secret.
type HMACVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewHMACVerifier builds a verifier from cfg. cfg.HMACSecret is required.
func NewHMACVerifier(cfg core.AcceptConfig) (*HMACVerifier, error) {
	cfg = cfg.Defaulted()
	if len(cfg.HMACSecret) == 0 {
		return nil, errors.New("jwtkit: hmac secret required")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(cfg.Algorithms),
		jwt.WithLeeway(cfg.Skew),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &HMACVerifier{secret: cfg.HMACSecret, parser: jwt.NewParser(opts...)}, nil
}

func (v *HMACVerifier) Verify(_ context.Context, raw string) (core.Claims, error) {
	mc := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(raw, mc, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return core.Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	cl := core.Claims{Roles: roles(mc["roles"], mc["role"])}
	cl.Subject, _ = mc.GetSubject()
	cl.Email, _ = mc["email"].(string)
	if exp, _ := mc.GetExpirationTime(); exp != nil {
		cl.ExpiresAt = exp.Time
	}
	if iat, _ := mc.GetIssuedAt(); iat != nil {
		cl.IssuedAt = iat.Time
	}
	if cl.Subject == "" {
		return core.Claims{}, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	return cl, nil
}

// JWKSVerifier verifies asymmetric credentials against a remote key set.
type JWKSVerifier struct {
	keys     jwk.Set
	issuer   string
	audience string
	skew     time.Duration
}

// NewJWKSVerifier registers cfg.JWKSURL with a refreshing cache. Keys are
// fetched on first use; ctx bounds the cache's background refresh.
func NewJWKSVerifier(ctx context.Context, cfg core.AcceptConfig) (*JWKSVerifier, error) {
	cfg = cfg.Defaulted()
	if cfg.JWKSURL == "" {
		return nil, errors.New("jwtkit: jwks url required")
	}
	cache := jwk.NewCache(ctx)
	if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(cfg.CacheTTL)); err != nil {
		return nil, err
	}
	return NewJWKSVerifierFromSet(jwk.NewCachedSet(cache, cfg.JWKSURL), cfg), nil
}

// NewJWKSVerifierFromSet verifies against a fixed key set.
func NewJWKSVerifierFromSet(keys jwk.Set, cfg core.AcceptConfig) *JWKSVerifier {
	cfg = cfg.Defaulted()
	return &JWKSVerifier{keys: keys, issuer: cfg.Issuer, audience: cfg.Audience, skew: cfg.Skew}
}

func (v *JWKSVerifier) Verify(ctx context.Context, raw string) (core.Claims, error) {
	opts := []jwxt.ParseOption{
		jwxt.WithKeySet(v.keys, jws.WithInferAlgorithmFromKey(true)),
		jwxt.WithValidate(true),
		jwxt.WithAcceptableSkew(v.skew),
		jwxt.WithRequiredClaim("exp"),
		jwxt.WithContext(ctx),
	}
	if v.issuer != "" {
		opts = append(opts, jwxt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwxt.WithAudience(v.audience))
	}
	tok, err := jwxt.ParseString(raw, opts...)
	if err != nil {
		return core.Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tok.Subject() == "" {
		return core.Claims{}, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	cl := core.Claims{Subject: tok.Subject(), ExpiresAt: tok.Expiration(), IssuedAt: tok.IssuedAt()}
	if e, ok := tok.Get("email"); ok {
		cl.Email, _ = e.(string)
	}
	rs, _ := tok.Get("roles")
	r, _ := tok.Get("role")
	cl.Roles = roles(rs, r)
	return cl, nil
}

// roles merges a "roles" array claim with a single "role" claim.
func roles(list, single any) []string {
	var out []string
	switch v := list.(type) {
	case []any:
		for _, x := range v {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, v...)
	}
	if s, ok := single.(string); ok && s != "" {
		out = append(out, s)
	}
	return out
}
