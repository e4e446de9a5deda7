package entitlements

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/PaulFidika/accesskit/core"
)

var (
	ErrMissingUser = errors.New("entitlements: user id required")
	// ErrStoreUnavailable is returned only under core.FailClosed.
	ErrStoreUnavailable = errors.New("entitlements: store unavailable")
)

// Source reads the signals for one user. The four reads are independent.
type Source interface {
	DirectPurchases(ctx context.Context, userID, productRef string) ([]Purchase, error)
	// ServicePurchases returns the user's purchases of services whose slug is in slugs.
	ServicePurchases(ctx context.Context, userID string, slugs []string) ([]Purchase, error)
	IsFamilySubscriptionMember(ctx context.Context, userID string) (bool, error)
	// Entitlements returns rows for productRef and the wildcard app.
	Entitlements(ctx context.Context, userID, productRef string) ([]Entitlement, error)
}

// AdminStore manages entitlement rows.
type AdminStore interface {
	Grant(ctx context.Context, g Grant) (Entitlement, error)
	Deactivate(ctx context.Context, userID, appID string) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]Entitlement, error)
}

type Options struct {
	Policy Policy
	Logger logrus.FieldLogger
	Now    func() time.Time
	Meter  metric.Meter
}

// Resolver fetches a Snapshot and runs Evaluate over it.
type Resolver struct {
	src       Source
	policy    Policy
	log       logrus.FieldLogger
	now       func() time.Time
	decisions metric.Int64Counter
}

func NewResolver(src Source, opts Options) *Resolver {
	r := &Resolver{src: src, policy: opts.Policy, log: opts.Logger, now: opts.Now}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	if r.now == nil {
		r.now = time.Now
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter("github.com/PaulFidika/accesskit/entitlements")
	}
	r.decisions, _ = meter.Int64Counter("entitlements.decisions",
		metric.WithDescription("Entitlement decisions by reason"))
	return r
}

// Resolve decides whether userID may use productRef.
func (r *Resolver) Resolve(ctx context.Context, userID, productRef string) (Decision, error) {
	if userID == "" {
		return Decision{}, ErrMissingUser
	}
	if r.policy.AllowAllAuthenticatedUsers {
		return r.record(ctx, Evaluate(productRef, Snapshot{}, r.now(), r.policy)), nil
	}

	log := r.log.WithFields(logrus.Fields{"user_id": userID, "product": productRef})
	snap := r.snapshot(ctx, log, userID, productRef)
	d := Evaluate(productRef, snap, r.now().UTC(), r.policy)
	if d.Allowed || len(snap.Failed) == 0 {
		return r.record(ctx, d), nil
	}

	log.WithFields(logrus.Fields{
		"failed": snap.Failed,
		"policy": r.policy.OnStoreError.String(),
	}).Warn("entitlements: deciding without complete data")
	if r.policy.OnStoreError == core.FailClosed {
		return Decision{}, ErrStoreUnavailable
	}
	return r.record(ctx, Decision{Allowed: true, Reason: ReasonStoreUnavailable}), nil
}

// snapshot reads every signal for userID. Failed reads are logged and named
// in Snapshot.Failed.
func (r *Resolver) snapshot(ctx context.Context, log logrus.FieldLogger, userID, productRef string) Snapshot {
	var snap Snapshot
	fail := func(part string, err error) {
		log.WithError(err).WithField("source", part).Warn("entitlements: read failed")
		snap.Failed = append(snap.Failed, part)
	}
	var err error
	if snap.DirectPurchases, err = r.src.DirectPurchases(ctx, userID, productRef); err != nil {
		fail("product_purchases", err)
	}
	if snap.FamilyServicePurchases, err = r.src.ServicePurchases(ctx, userID, r.policy.slugs()); err != nil {
		fail("service_purchases", err)
	}
	if snap.FamilySubscriptionMember, err = r.src.IsFamilySubscriptionMember(ctx, userID); err != nil {
		fail("family_subscription", err)
	}
	if snap.Entitlements, err = r.src.Entitlements(ctx, userID, productRef); err != nil {
		fail("entitlements", err)
	}
	return snap
}

func (r *Resolver) record(ctx context.Context, d Decision) Decision {
	if r.decisions != nil {
		r.decisions.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("allowed", d.Allowed),
			attribute.String("reason", d.Reason),
		))
	}
	return d
}
