package access

import (
	"fmt"
	"net/http"
)

// DenialKind tells callers whether to log in again, wait, or give up.
type DenialKind string

const (
	DenialInvalidCredential DenialKind = "invalid_credential"
	DenialSession           DenialKind = "session_denied"
	DenialRateLimited       DenialKind = "rate_limited"
	DenialNotEntitled       DenialKind = "not_entitled"
	// DenialUnavailable is only produced under a fail-closed policy.
	DenialUnavailable DenialKind = "unavailable"
)

// Denial is returned as an error whenever the gate refuses a request.
type Denial struct {
	Kind              DenialKind `json:"error"`
	Reason            string     `json:"reason"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
}

func (d *Denial) Error() string {
	if d.RetryAfterSeconds > 0 {
		return fmt.Sprintf("access: %s (%s), retry after %ds", d.Kind, d.Reason, d.RetryAfterSeconds)
	}
	return fmt.Sprintf("access: %s (%s)", d.Kind, d.Reason)
}

// HTTPStatus maps the denial to a response code.
func (d *Denial) HTTPStatus() int {
	switch d.Kind {
	case DenialInvalidCredential, DenialSession:
		return http.StatusUnauthorized
	case DenialRateLimited:
		return http.StatusTooManyRequests
	case DenialNotEntitled:
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}
