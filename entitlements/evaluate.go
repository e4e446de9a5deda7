package entitlements

import (
	"slices"
	"time"

	"github.com/PaulFidika/accesskit/core"
)

// DefaultFamilyPlanSlugs are the service slugs that grant every product.
var DefaultFamilyPlanSlugs = []string{"family-plan", "family_plan", "all-access-family"}

// Policy tunes resolution.
type Policy struct {
	// AllowAllAuthenticatedUsers grants every authenticated caller without
	// consulting any signal.
	AllowAllAuthenticatedUsers bool
	// FamilyPlanSlugs defaults to DefaultFamilyPlanSlugs.
	FamilyPlanSlugs []string
	// OnStoreError applies when a read failed and nothing else allowed.
	OnStoreError core.FailurePolicy
}

func (p Policy) slugs() []string {
	if len(p.FamilyPlanSlugs) == 0 {
		return DefaultFamilyPlanSlugs
	}
	return p.FamilyPlanSlugs
}

// Evaluate applies the precedence chain to snap; the first match wins:
// grace period, purchase validity, family-plan service purchase,
// family-subscription membership, entitlement override.
// Expiry is checked on every branch.
func Evaluate(productRef string, snap Snapshot, now time.Time, p Policy) Decision {
	if p.AllowAllAuthenticatedUsers {
		return Decision{Allowed: true, Reason: ReasonAuthenticatedUserAccess}
	}

	direct := make([]Purchase, 0, len(snap.DirectPurchases))
	for _, pu := range snap.DirectPurchases {
		if pu.ProductID == productRef {
			direct = append(direct, pu)
		}
	}
	for _, pu := range direct {
		if after(pu.GracePeriodEndsAt, now) {
			return Decision{Allowed: true, Reason: ReasonGracePeriod}
		}
	}
	for _, pu := range direct {
		if reason, ok := valid(pu, now); ok {
			return Decision{Allowed: true, Reason: reason}
		}
	}

	slugs := p.slugs()
	for _, pu := range snap.FamilyServicePurchases {
		if pu.Status != StatusActive || !slices.Contains(slugs, pu.ServiceSlug) {
			continue
		}
		if after(pu.GracePeriodEndsAt, now) {
			return Decision{Allowed: true, Reason: ReasonFamilyPlanPrefix + ReasonGracePeriod}
		}
		if reason, ok := valid(pu, now); ok {
			return Decision{Allowed: true, Reason: ReasonFamilyPlanPrefix + familyReason(reason)}
		}
	}

	if snap.FamilySubscriptionMember {
		return Decision{Allowed: true, Reason: ReasonFamilySubscriptionActive}
	}

	for _, e := range snap.Entitlements {
		if e.AppID != productRef && e.AppID != WildcardApp {
			continue
		}
		if e.Active && (e.ExpiresAt == nil || e.ExpiresAt.After(now)) {
			return Decision{Allowed: true, Reason: ReasonEntitlementPrefix + string(e.GrantType)}
		}
	}

	return Decision{Allowed: false, Reason: ReasonNoEntitlement}
}

// valid applies the per-type rule for a purchase row.
func valid(pu Purchase, now time.Time) (string, bool) {
	switch pu.PurchaseType {
	case Subscription:
		if pu.Status == StatusActive && (pu.ExpiresAt == nil || pu.ExpiresAt.After(now)) {
			return ReasonSubscriptionActive, true
		}
	case OneTime:
		if pu.PaymentStatus == "succeeded" {
			return ReasonOneTimePaid, true
		}
	case Trial:
		if pu.IsTrial && (pu.TrialEnd == nil || pu.TrialEnd.After(now)) {
			return ReasonTrialActive, true
		}
	}
	return "", false
}

// familyReason maps subscription_active to subscription and so on.
func familyReason(reason string) string {
	switch reason {
	case ReasonSubscriptionActive:
		return string(Subscription)
	case ReasonOneTimePaid:
		return string(OneTime)
	case ReasonTrialActive:
		return string(Trial)
	}
	return reason
}

func after(t *time.Time, now time.Time) bool { return t != nil && t.After(now) }
