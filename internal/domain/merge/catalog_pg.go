package merge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func resolveConn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// pgRelation is a table/foreign-key-column descriptor. All patient relation
// tables share the same count and reassign shape, so one descriptor type
// covers every category.
type pgRelation struct {
	pool   *pgxpool.Pool
	name   string
	table  string
	fk     string
	unique bool
}

func (r *pgRelation) Name() string { return r.name }
func (r *pgRelation) Unique() bool { return r.unique }

func (r *pgRelation) Count(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s = $1`, r.table, r.fk)
	err := resolveConn(ctx, r.pool).QueryRow(ctx, query, patientID).Scan(&n)
	return n, err
}

func (r *pgRelation) Reassign(ctx context.Context, from, to uuid.UUID) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET %s = $2 WHERE %s = $1`, r.table, r.fk, r.fk)
	tag, err := resolveConn(ctx, r.pool).Exec(ctx, query, from, to)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// pgTables lists every patient-referencing table in registration order.
// Adding a category to the system means adding one line here (or registering
// from the owning package at startup).
var pgTables = []struct {
	name   string
	table  string
	fk     string
	unique bool
}{
	{"orders", "orders", "patient_id", false},
	{"invoices", "invoices", "patient_id", false},
	{"payments", "payments", "patient_id", false},
	{"payment_methods", "payment_methods", "patient_id", false},
	{"subscriptions", "subscriptions", "patient_id", false},
	{"clinical_notes", "clinical_notes", "patient_id", false},
	{"prescriptions", "prescriptions", "patient_id", false},
	{"lab_results", "lab_results", "patient_id", false},
	{"documents", "documents", "patient_id", false},
	{"intake_submissions", "intake_submissions", "patient_id", false},
	{"questionnaire_responses", "questionnaire_responses", "patient_id", false},
	{"appointments", "appointments", "patient_id", false},
	{"care_plans", "care_plans", "patient_id", false},
	{"support_tickets", "support_tickets", "patient_id", false},
	{"progress_logs", "progress_logs", "patient_id", false},
	{"ai_conversations", "ai_conversations", "patient_id", false},
	{"messages", "messages", "patient_id", false},
	{"referrals", "referrals", "referred_patient_id", false},
	{"affiliate_credits", "affiliate_credits", "patient_id", false},
	{"discount_usages", "discount_usages", "patient_id", false},
	{"shipping_updates", "shipping_updates", "patient_id", false},
	{"consents", "consents", "patient_id", false},
	{"insurance_policies", "insurance_policies", "patient_id", false},
	{"measurements", "measurements", "patient_id", false},
	{"activity_log", "activity_log", "patient_id", false},
	{"portal_accounts", "portal_accounts", "patient_id", true},
}

// NewPGCatalog builds the catalog over the clinic schema's relation tables.
func NewPGCatalog(pool *pgxpool.Pool) *Catalog {
	c := NewCatalog()
	for _, t := range pgTables {
		c.MustRegister(&pgRelation{pool: pool, name: t.name, table: t.table, fk: t.fk, unique: t.unique})
	}
	return c
}

// PGSubscriptionSource answers the active-subscription question the conflict
// detector asks. Counting rows in subscriptions alone is not enough, since
// cancelled subscriptions stay on the books.
type PGSubscriptionSource struct {
	pool *pgxpool.Pool
}

func NewPGSubscriptionSource(pool *pgxpool.Pool) *PGSubscriptionSource {
	return &PGSubscriptionSource{pool: pool}
}

func (s *PGSubscriptionSource) ActiveCount(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	err := resolveConn(ctx, s.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE patient_id = $1 AND status = 'active'`,
		patientID).Scan(&n)
	return n, err
}
