// Package ratelimit enforces per-identifier request quotas using fixed
// minute and hour windows kept in a shared store. Every protected entry
// point calls Limiter.Check before doing any work.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/PaulFidika/accesskit/core"
)

// IdentifierType says what a rate-limit identifier is.
type IdentifierType string

const (
	IdentifierUser IdentifierType = "user"
	IdentifierIP   IdentifierType = "ip"
)

func (t IdentifierType) Valid() bool { return t == IdentifierUser || t == IdentifierIP }

// Granularity is the size of a fixed window.
type Granularity string

const (
	Minute Granularity = "minute"
	Hour   Granularity = "hour"
)

// Size returns the window length.
func (g Granularity) Size() time.Duration {
	if g == Hour {
		return time.Hour
	}
	return time.Minute
}

// Start returns the window boundary containing t (HH:MM:00 or HH:00:00, UTC).
func (g Granularity) Start(t time.Time) time.Time {
	return t.UTC().Truncate(g.Size())
}

// Limits is the per-call quota. A zero PerMinute or PerHour disables that window.
type Limits struct {
	PerMinute int
	PerHour   int
	// OnStoreError defaults to core.FailOpen.
	OnStoreError core.FailurePolicy
}

// Reason codes carried by a Decision.
const (
	ReasonLimitExceeded    = "rate_limited"
	ReasonStoreUnavailable = "store_unavailable"
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed bool
	// RetryAfterSeconds is set on denial; always within [1, window size].
	RetryAfterSeconds int
	// Window is the granularity that denied the request.
	Window Granularity
	Reason string
}

// Key names the counter a window row belongs to.
type Key struct {
	Identifier     string
	IdentifierType IdentifierType
	FunctionName   string
}

// Window is one row of the shared window table.
type Window struct {
	Key
	Granularity  Granularity
	WindowStart  time.Time
	RequestCount int
	UpdatedAt    time.Time
}

// ErrWindowExists is returned by WindowStore.Insert when the exact window row
// was created concurrently.
var ErrWindowExists = errors.New("ratelimit: window already exists")

// ErrInvalidKey is returned for an empty identifier or function name.
var ErrInvalidKey = errors.New("ratelimit: identifier and function name required")

// WindowStore is the shared state the limiter coordinates through.
// Not-found lookups return (nil, nil).
type WindowStore interface {
	// DeleteBefore removes every window whose start is before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// Latest returns the most recent window for key and g starting at or after since.
	Latest(ctx context.Context, key Key, g Granularity, since time.Time) (*Window, error)
	// Get returns the window for key and g starting exactly at windowStart.
	Get(ctx context.Context, key Key, g Granularity, windowStart time.Time) (*Window, error)
	Insert(ctx context.Context, w Window) error
	SetCount(ctx context.Context, key Key, g Granularity, windowStart time.Time, count int, at time.Time) error
}

// AtomicIncrementer is implemented by stores that can create-or-increment a
// window in one round trip.
type AtomicIncrementer interface {
	Increment(ctx context.Context, key Key, g Granularity, windowStart, at time.Time) error
}
