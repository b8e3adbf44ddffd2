package patient

import (
	"context"
	"errors"

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const patientCols = `id, display_id, first_name, last_name, birth_date, gender,
	phone, email, address_line1, address_line2, city, state, postal_code,
	notes, billing_customer_id, pharmacy_id, created_at, updated_at`

func (r *repoPG) scanRow(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.DisplayID, &p.FirstName, &p.LastName, &p.BirthDate, &p.Gender,
		&p.Phone, &p.Email, &p.AddressLine1, &p.AddressLine2, &p.City, &p.State, &p.PostalCode,
		&p.Notes, &p.BillingCustomerID, &p.PharmacyID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, display_id, first_name, last_name, birth_date, gender,
			phone, email, address_line1, address_line2, city, state, postal_code,
			notes, billing_customer_id, pharmacy_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		p.ID, p.DisplayID, p.FirstName, p.LastName, p.BirthDate, p.Gender,
		p.Phone, p.Email, p.AddressLine1, p.AddressLine2, p.City, p.State, p.PostalCode,
		p.Notes, p.BillingCustomerID, p.PharmacyID)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) GetByDisplayID(ctx context.Context, displayID string) (*Patient, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE display_id = $1`, displayID))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET display_id=$2, first_name=$3, last_name=$4, birth_date=$5, gender=$6,
			phone=$7, email=$8, address_line1=$9, address_line2=$10, city=$11, state=$12,
			postal_code=$13, notes=$14, billing_customer_id=$15, pharmacy_id=$16, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.DisplayID, p.FirstName, p.LastName, p.BirthDate, p.Gender,
		p.Phone, p.Email, p.AddressLine1, p.AddressLine2, p.City, p.State,
		p.PostalCode, p.Notes, p.BillingCustomerID, p.PharmacyID)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) Search(ctx context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	pattern := "%" + query + "%"
	where := `WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR email ILIKE $1 OR display_id ILIKE $1`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients `+where, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients `+where+` ORDER BY last_name, first_name LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return r.collect(rows, total)
}

func (r *repoPG) collect(rows pgx.Rows, total int) ([]*Patient, int, error) {
	var items []*Patient
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
