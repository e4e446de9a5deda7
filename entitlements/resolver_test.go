package entitlements_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulFidika/accesskit/core"
	"github.com/PaulFidika/accesskit/entitlements"
	memoryentitlements "github.com/PaulFidika/accesskit/entitlements/memory"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func resolver(src entitlements.Source, p entitlements.Policy) *entitlements.Resolver {
	return entitlements.NewResolver(src, entitlements.Options{Policy: p, Now: func() time.Time { return now }})
}

func TestResolveOneTimePaid(t *testing.T) {
	store := memoryentitlements.New()
	store.AddProductPurchase("u1", entitlements.Purchase{ProductID: "P", PurchaseType: entitlements.OneTime, PaymentStatus: "succeeded"})

	d, err := resolver(store, entitlements.Policy{}).Resolve(context.Background(), "u1", "P")
	require.NoError(t, err)
	assert.Equal(t, entitlements.Decision{Allowed: true, Reason: "one_time_paid"}, d)
}

func TestResolveExpiredTrialOnly(t *testing.T) {
	store := memoryentitlements.New()
	end := now.Add(-time.Hour)
	store.AddProductPurchase("u1", entitlements.Purchase{ProductID: "P", PurchaseType: entitlements.Trial, IsTrial: true, TrialEnd: &end})

	d, err := resolver(store, entitlements.Policy{}).Resolve(context.Background(), "u1", "P")
	require.NoError(t, err)
	assert.Equal(t, entitlements.Decision{Allowed: false, Reason: "no_entitlement"}, d)
}

func TestResolveAdminGrantAndDeactivate(t *testing.T) {
	store := memoryentitlements.New()
	ctx := context.Background()
	expired := now.Add(-48 * time.Hour)
	store.AddProductPurchase("u1", entitlements.Purchase{ProductID: "P", PurchaseType: entitlements.Subscription, Status: "active", ExpiresAt: &expired})
	r := resolver(store, entitlements.Policy{})

	_, err := store.Grant(ctx, entitlements.Grant{UserID: "u1", AppID: "P", GrantType: entitlements.GrantSubscription, GrantedBy: "admin-1"})
	require.NoError(t, err)
	d, err := r.Resolve(ctx, "u1", "P")
	require.NoError(t, err)
	assert.Equal(t, "entitlement_subscription", d.Reason)

	ok, err := store.Deactivate(ctx, "u1", "P")
	require.NoError(t, err)
	require.True(t, ok)
	d, err = r.Resolve(ctx, "u1", "P")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	list, err := store.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1, "deactivated rows are kept")
	assert.False(t, list[0].Active)
}

func TestResolveRegrantUpdatesInPlace(t *testing.T) {
	store := memoryentitlements.New()
	ctx := context.Background()
	first, err := store.Grant(ctx, entitlements.Grant{UserID: "u1", AppID: "all", GrantType: entitlements.GrantTrial})
	require.NoError(t, err)
	second, err := store.Grant(ctx, entitlements.Grant{UserID: "u1", AppID: "all", GrantType: entitlements.GrantLifetime})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	d, err := resolver(store, entitlements.Policy{}).Resolve(ctx, "u1", "anything")
	require.NoError(t, err)
	assert.Equal(t, "entitlement_lifetime", d.Reason)
}

func TestResolveFamilySignals(t *testing.T) {
	store := memoryentitlements.New()
	store.AddServicePurchase("u1", entitlements.Purchase{ServiceSlug: "family-plan", PurchaseType: entitlements.OneTime, Status: entitlements.StatusActive, PaymentStatus: "succeeded"})
	store.AddServicePurchase("u3", entitlements.Purchase{ServiceSlug: "family-plan", PurchaseType: entitlements.OneTime, Status: "refunded", PaymentStatus: "succeeded"})
	store.SetFamilyMember("u2", true)
	r := resolver(store, entitlements.Policy{})

	d, err := r.Resolve(context.Background(), "u1", "any-product")
	require.NoError(t, err)
	assert.Equal(t, "family_plan_one_time", d.Reason)

	d, err = r.Resolve(context.Background(), "u2", "any-product")
	require.NoError(t, err)
	assert.Equal(t, "family_subscription_active", d.Reason)

	d, err = r.Resolve(context.Background(), "u3", "any-product")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "no_entitlement", d.Reason)
}

func TestResolveRequiresUser(t *testing.T) {
	_, err := resolver(memoryentitlements.New(), entitlements.Policy{AllowAllAuthenticatedUsers: true}).Resolve(context.Background(), "", "P")
	assert.ErrorIs(t, err, entitlements.ErrMissingUser)
}

// countingSource fails the reads named in fail and counts calls.
type countingSource struct {
	*memoryentitlements.Store
	fail  map[string]bool
	calls int
}

var errDown = errors.New("timeout")

func (c *countingSource) DirectPurchases(ctx context.Context, u, p string) ([]entitlements.Purchase, error) {
	c.calls++
	if c.fail["direct"] {
		return nil, errDown
	}
	return c.Store.DirectPurchases(ctx, u, p)
}

func (c *countingSource) IsFamilySubscriptionMember(ctx context.Context, u string) (bool, error) {
	c.calls++
	if c.fail["family"] {
		return false, errDown
	}
	return c.Store.IsFamilySubscriptionMember(ctx, u)
}

func TestAllowAllAuthenticatedUsers(t *testing.T) {
	src := &countingSource{Store: memoryentitlements.New()}

	d, err := resolver(src, entitlements.Policy{AllowAllAuthenticatedUsers: true}).Resolve(context.Background(), "u1", "P")
	require.NoError(t, err)
	assert.Equal(t, entitlements.Decision{Allowed: true, Reason: "authenticated_user_access"}, d)
	assert.Zero(t, src.calls)

	d, err = resolver(src, entitlements.Policy{AllowAllAuthenticatedUsers: false}).Resolve(context.Background(), "u1", "P")
	require.NoError(t, err)
	assert.Equal(t, entitlements.Decision{Allowed: false, Reason: "no_entitlement"}, d)
	assert.Equal(t, 2, src.calls)
}

func TestStoreErrorFailOpen(t *testing.T) {
	src := &countingSource{Store: memoryentitlements.New(), fail: map[string]bool{"direct": true}}
	d, err := resolver(src, entitlements.Policy{}).Resolve(context.Background(), "u1", "P")
	require.NoError(t, err)
	assert.Equal(t, entitlements.Decision{Allowed: true, Reason: "store_unavailable"}, d)
}

func TestStoreErrorFailClosed(t *testing.T) {
	src := &countingSource{Store: memoryentitlements.New(), fail: map[string]bool{"family": true}}
	_, err := resolver(src, entitlements.Policy{OnStoreError: core.FailClosed}).Resolve(context.Background(), "u1", "P")
	assert.ErrorIs(t, err, entitlements.ErrStoreUnavailable)
}

func TestStoreErrorIgnoredWhenAnotherSignalAllows(t *testing.T) {
	store := memoryentitlements.New()
	_, err := store.Grant(context.Background(), entitlements.Grant{UserID: "u1", AppID: "P", GrantType: entitlements.GrantManual})
	require.NoError(t, err)
	src := &countingSource{Store: store, fail: map[string]bool{"direct": true}}

	d, err := resolver(src, entitlements.Policy{OnStoreError: core.FailClosed}).Resolve(context.Background(), "u1", "P")
	require.NoError(t, err)
	assert.Equal(t, "entitlement_manual", d.Reason)
}
