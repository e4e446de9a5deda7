package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/PaulFidika/accesskit/core"
)

// Retention is how long window rows are kept before the inline cleanup drops them.
const Retention = time.Hour

// Options configures a Limiter.
type Options struct {
	Logger logrus.FieldLogger
	Now    func() time.Time
	// AtomicIncrement uses the store's AtomicIncrementer, when it has one,
	// instead of the read-then-write increment.
	AtomicIncrement bool
	Meter           metric.Meter
}

// Limiter is a fixed-window limiter over a shared WindowStore.
//
// By default the count update is read-then-write with no transaction: two
// concurrent requests in the same window can read the same count and both
// write count+1. The limiter therefore undercounts under concurrency and is a
// best-effort throttle. Options.AtomicIncrement stops lost updates, but the
// limit check still reads before it increments.
type Limiter struct {
	store     WindowStore
	atomic    AtomicIncrementer
	log       logrus.FieldLogger
	now       func() time.Time
	decisions metric.Int64Counter
}

// New constructs a Limiter.
func New(store WindowStore, opts Options) *Limiter {
	l := &Limiter{store: store, log: opts.Logger, now: opts.Now}
	if l.log == nil {
		l.log = logrus.StandardLogger()
	}
	if l.now == nil {
		l.now = time.Now
	}
	if opts.AtomicIncrement {
		if ai, ok := store.(AtomicIncrementer); ok {
			l.atomic = ai
		} else {
			l.log.Warn("ratelimit: store has no atomic increment; using read-then-write")
		}
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter("github.com/PaulFidika/accesskit/ratelimit")
	}
	l.decisions, _ = meter.Int64Counter("ratelimit.decisions",
		metric.WithDescription("Rate-limit decisions by function and outcome"))
	return l
}

// Check records one request for identifier against functionName and reports
// whether it fits in limits. Store errors never surface as errors: they are
// logged and resolved by limits.OnStoreError.
func (l *Limiter) Check(ctx context.Context, identifier string, identifierType IdentifierType, functionName string, limits Limits) (Decision, error) {
	if l == nil || l.store == nil {
		return Decision{Allowed: true}, nil
	}
	if identifier == "" || functionName == "" || !identifierType.Valid() {
		return Decision{}, ErrInvalidKey
	}

	now := l.now().UTC()
	key := Key{Identifier: identifier, IdentifierType: identifierType, FunctionName: functionName}
	log := l.log.WithFields(logrus.Fields{
		"identifier":      identifier,
		"identifier_type": identifierType,
		"function":        functionName,
	})

	// Housekeeping only; never blocks the request.
	if _, err := l.store.DeleteBefore(ctx, now.Add(-Retention)); err != nil {
		log.WithError(err).Warn("ratelimit: window cleanup failed")
	}

	checks := []struct {
		g   Granularity
		max int
	}{
		{Minute, limits.PerMinute},
		{Hour, limits.PerHour},
	}
	for _, c := range checks {
		if c.max <= 0 {
			continue
		}
		w, err := l.store.Latest(ctx, key, c.g, now.Add(-c.g.Size()))
		if err != nil {
			return l.storeFailure(ctx, log, "read_"+string(c.g), err, key, limits), nil
		}
		if w != nil && w.RequestCount >= c.max {
			d := Decision{
				Allowed:           false,
				RetryAfterSeconds: RetryAfter(w.WindowStart, c.g, now),
				Window:            c.g,
				Reason:            ReasonLimitExceeded,
			}
			l.record(ctx, key, d)
			return d, nil
		}
	}

	for _, g := range []Granularity{Minute, Hour} {
		if err := l.increment(ctx, key, g, g.Start(now), now); err != nil {
			return l.storeFailure(ctx, log, "write_"+string(g), err, key, limits), nil
		}
	}

	d := Decision{Allowed: true}
	l.record(ctx, key, d)
	return d, nil
}

func (l *Limiter) increment(ctx context.Context, key Key, g Granularity, start, now time.Time) error {
	if l.atomic != nil {
		return l.atomic.Increment(ctx, key, g, start, now)
	}
	w, err := l.store.Get(ctx, key, g, start)
	if err != nil {
		return err
	}
	if w == nil {
		err = l.store.Insert(ctx, Window{Key: key, Granularity: g, WindowStart: start, RequestCount: 1, UpdatedAt: now})
		if !errors.Is(err, ErrWindowExists) {
			return err
		}
		// Lost the insert race; fall through to a plain update.
		if w, err = l.store.Get(ctx, key, g, start); err != nil || w == nil {
			return err
		}
	}
	return l.store.SetCount(ctx, key, g, start, w.RequestCount+1, now)
}

func (l *Limiter) storeFailure(ctx context.Context, log logrus.FieldLogger, op string, err error, key Key, limits Limits) Decision {
	log.WithError(err).WithFields(logrus.Fields{
		"op":     op,
		"policy": limits.OnStoreError.String(),
	}).Warn("ratelimit: store error")
	d := Decision{Allowed: true, Reason: ReasonStoreUnavailable}
	if limits.OnStoreError == core.FailClosed {
		d = Decision{Allowed: false, RetryAfterSeconds: int(Minute.Size().Seconds()), Window: Minute, Reason: ReasonStoreUnavailable}
	}
	l.record(ctx, key, d)
	return d
}

func (l *Limiter) record(ctx context.Context, key Key, d Decision) {
	if l.decisions == nil {
		return
	}
	l.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("function", key.FunctionName),
		attribute.String("identifier_type", string(key.IdentifierType)),
		attribute.Bool("allowed", d.Allowed),
		attribute.String("reason", d.Reason),
	))
}

// RetryAfter is the number of whole seconds from now until the window that
// started at windowStart ends, clamped to [1, window size].
func RetryAfter(windowStart time.Time, g Granularity, now time.Time) int {
	size := int(g.Size().Seconds())
	secs := int(math.Ceil(windowStart.Add(g.Size()).Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	if secs > size {
		return size
	}
	return secs
}
