package core

import "time"

// AcceptConfig configures verification of credentials minted by the hosted
// identity provider. This package never issues credentials.
type AcceptConfig struct {
	Issuer     string
	Audience   string // Expected audience for this service (single value)
	Skew       time.Duration
	Algorithms []string

	// Exactly one of HMACSecret or JWKSURL is expected.
	HMACSecret []byte
	JWKSURL    string
	CacheTTL   time.Duration // JWKS refresh interval
}

// Defaulted returns a copy with zero values replaced by defaults.
func (c AcceptConfig) Defaulted() AcceptConfig {
	if c.Skew <= 0 {
		c.Skew = 30 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 15 * time.Minute
	}
	if len(c.Algorithms) == 0 {
		if len(c.HMACSecret) > 0 {
			c.Algorithms = []string{"HS256"}
		} else {
			c.Algorithms = []string{"RS256", "ES256"}
		}
	}
	return c
}
