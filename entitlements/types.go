package entitlements

import (
	"errors"
	"fmt"
	"time"
)

// WildcardApp is the app_id that grants every product.
const WildcardApp = "all"

// PurchaseType is the purchase_type column of purchase rows.
type PurchaseType string

const (
	Subscription PurchaseType = "subscription"
	OneTime      PurchaseType = "one_time"
	Trial        PurchaseType = "trial"
)

// StatusActive is the purchase status of a live row. Only active service
// purchases can carry a family plan.
const StatusActive = "active"

// Purchase is a product_purchases or service_purchases row. These are written
// by payment webhooks; this package only reads them.
type Purchase struct {
	ProductID         string       `json:"product_id,omitempty"`
	ServiceSlug       string       `json:"service_slug,omitempty"`
	PurchaseType      PurchaseType `json:"purchase_type"`
	Status            string       `json:"status"`
	PaymentStatus     string       `json:"payment_status"`
	ExpiresAt         *time.Time   `json:"expires_at,omitempty"`
	CurrentPeriodEnd  *time.Time   `json:"current_period_end,omitempty"`
	GracePeriodEndsAt *time.Time   `json:"grace_period_ends_at,omitempty"`
	IsTrial           bool         `json:"is_trial"`
	TrialEnd          *time.Time   `json:"trial_end,omitempty"`
}

// GrantType records why an entitlement was granted.
type GrantType string

const (
	GrantManual       GrantType = "manual"
	GrantTrial        GrantType = "trial"
	GrantSubscription GrantType = "subscription"
	GrantLifetime     GrantType = "lifetime"
)

func (g GrantType) Valid() bool {
	switch g {
	case GrantManual, GrantTrial, GrantSubscription, GrantLifetime:
		return true
	}
	return false
}

// Entitlement is an admin-controlled grant, independent of purchase history.
type Entitlement struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	AppID       string     `json:"app_id"`
	Active      bool       `json:"active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	GrantType   GrantType  `json:"grant_type"`
	GrantedBy   string     `json:"granted_by"`
	GrantReason string     `json:"grant_reason"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Grant is an administrative request to create or refresh an entitlement.
type Grant struct {
	UserID    string     `json:"user_id"`
	AppID     string     `json:"app_id"`
	GrantType GrantType  `json:"grant_type"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	GrantedBy string     `json:"-"`
	Reason    string     `json:"reason"`
}

var ErrInvalidGrant = errors.New("entitlements: invalid grant")

func (g Grant) Validate() error {
	if g.UserID == "" || g.AppID == "" {
		return fmt.Errorf("%w: user_id and app_id required", ErrInvalidGrant)
	}
	if !g.GrantType.Valid() {
		return fmt.Errorf("%w: unknown grant_type %q", ErrInvalidGrant, g.GrantType)
	}
	return nil
}

// Snapshot is everything the precedence chain looks at, fetched once per
// decision. The parts are read independently and need not be consistent.
type Snapshot struct {
	DirectPurchases          []Purchase
	FamilyServicePurchases   []Purchase
	FamilySubscriptionMember bool
	Entitlements             []Entitlement
	// Failed names the parts that could not be read.
	Failed []string
}

// Decision is the outcome of a resolution.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Reason codes.
const (
	ReasonGracePeriod              = "grace_period"
	ReasonSubscriptionActive       = "subscription_active"
	ReasonOneTimePaid              = "one_time_paid"
	ReasonTrialActive              = "trial_active"
	ReasonFamilyPlanPrefix         = "family_plan_"
	ReasonFamilySubscriptionActive = "family_subscription_active"
	ReasonEntitlementPrefix        = "entitlement_"
	ReasonNoEntitlement            = "no_entitlement"
	ReasonAuthenticatedUserAccess  = "authenticated_user_access"
	ReasonStoreUnavailable         = "store_unavailable"
)
