package pgentitlements

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/PaulFidika/accesskit/entitlements"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads purchase signals and manages the entitlements table.
// The purchase tables belong to the payment webhooks and are never written here.
type Store struct {
	pg     DB
	schema string
	now    func() time.Time
}

func New(pg DB, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "public"
	}
	return &Store{pg: pg, schema: s, now: time.Now}
}

func (s *Store) t(name string) string { return s.schema + "." + name }

// purchaseCols lists the purchase columns qualified by table alias a.
func purchaseCols(a string) string {
	return a + `.purchase_type, COALESCE(` + a + `.status,''), COALESCE(` + a + `.payment_status,''), ` +
		a + `.expires_at, ` + a + `.current_period_end, ` + a + `.grace_period_ends_at, COALESCE(` +
		a + `.is_trial,false), ` + a + `.trial_end`
}

func scanPurchase(rows pgx.Rows, lead *string) (entitlements.Purchase, error) {
	var p entitlements.Purchase
	var typ string
	err := rows.Scan(lead, &typ, &p.Status, &p.PaymentStatus, &p.ExpiresAt,
		&p.CurrentPeriodEnd, &p.GracePeriodEndsAt, &p.IsTrial, &p.TrialEnd)
	p.PurchaseType = entitlements.PurchaseType(typ)
	return p, err
}

func (s *Store) DirectPurchases(ctx context.Context, userID, productRef string) ([]entitlements.Purchase, error) {
	rows, err := s.pg.Query(ctx, `SELECT pp.product_id::text, `+purchaseCols("pp")+` FROM `+s.t("product_purchases")+` pp
		WHERE pp.user_id=$1 AND pp.product_id::text=$2`, userID, productRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []entitlements.Purchase
	for rows.Next() {
		var id string
		p, err := scanPurchase(rows, &id)
		if err != nil {
			return nil, err
		}
		p.ProductID = id
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ServicePurchases(ctx context.Context, userID string, slugs []string) ([]entitlements.Purchase, error) {
	rows, err := s.pg.Query(ctx, `SELECT sv.slug, `+purchaseCols("sp")+`
		FROM `+s.t("service_purchases")+` sp JOIN `+s.t("services")+` sv ON sv.id = sp.service_id
		WHERE sp.user_id=$1 AND sp.status = 'active' AND sv.slug = ANY($2)`, userID, slugs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []entitlements.Purchase
	for rows.Next() {
		var slug string
		p, err := scanPurchase(rows, &slug)
		if err != nil {
			return nil, err
		}
		p.ServiceSlug = slug
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) IsFamilySubscriptionMember(ctx context.Context, userID string) (bool, error) {
	var member bool
	err := s.pg.QueryRow(ctx, `SELECT COALESCE(`+s.t("is_family_subscription_member")+`($1), false)`, userID).Scan(&member)
	return member, err
}

const entitlementCols = `id::text, user_id, app_id, active, expires_at, grant_type, COALESCE(granted_by,''), COALESCE(grant_reason,''), created_at, updated_at`

func scanEntitlement(row pgx.Row) (entitlements.Entitlement, error) {
	var e entitlements.Entitlement
	var gt string
	err := row.Scan(&e.ID, &e.UserID, &e.AppID, &e.Active, &e.ExpiresAt, &gt, &e.GrantedBy, &e.GrantReason, &e.CreatedAt, &e.UpdatedAt)
	e.GrantType = entitlements.GrantType(gt)
	return e, err
}

func (s *Store) list(ctx context.Context, q string, args ...any) ([]entitlements.Entitlement, error) {
	rows, err := s.pg.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []entitlements.Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Entitlements(ctx context.Context, userID, productRef string) ([]entitlements.Entitlement, error) {
	return s.list(ctx, `SELECT `+entitlementCols+` FROM `+s.t("entitlements")+`
		WHERE user_id=$1 AND app_id IN ($2, $3)`, userID, productRef, entitlements.WildcardApp)
}

func (s *Store) ListForUser(ctx context.Context, userID string) ([]entitlements.Entitlement, error) {
	return s.list(ctx, `SELECT `+entitlementCols+` FROM `+s.t("entitlements")+` WHERE user_id=$1 ORDER BY app_id`, userID)
}

// Grant upserts on (user_id, app_id); a re-grant reactivates the existing row.
func (s *Store) Grant(ctx context.Context, g entitlements.Grant) (entitlements.Entitlement, error) {
	if err := g.Validate(); err != nil {
		return entitlements.Entitlement{}, err
	}
	now := s.now().UTC()
	return scanEntitlement(s.pg.QueryRow(ctx, `INSERT INTO `+s.t("entitlements")+`
		(id, user_id, app_id, active, expires_at, grant_type, granted_by, grant_reason, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,$5,$6,$7,$8,$8)
		ON CONFLICT (user_id, app_id) DO UPDATE SET
			active = true,
			expires_at = EXCLUDED.expires_at,
			grant_type = EXCLUDED.grant_type,
			granted_by = EXCLUDED.granted_by,
			grant_reason = EXCLUDED.grant_reason,
			updated_at = EXCLUDED.updated_at
		RETURNING `+entitlementCols,
		uuid.New(), g.UserID, g.AppID, g.ExpiresAt, string(g.GrantType), g.GrantedBy, g.Reason, now))
}

func (s *Store) Deactivate(ctx context.Context, userID, appID string) (bool, error) {
	tag, err := s.pg.Exec(ctx, `UPDATE `+s.t("entitlements")+` SET active=false, updated_at=$3
		WHERE user_id=$1 AND app_id=$2 AND active`, userID, appID, s.now().UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
