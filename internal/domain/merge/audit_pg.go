package merge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGAuditRepository stores audit entries in the clinic schema's merge_audit
// table. Counts and the merged profile go into jsonb columns so the entry
// survives schema changes to the relation set.
type PGAuditRepository struct {
	pool *pgxpool.Pool
}

func NewPGAuditRepository(pool *pgxpool.Pool) *PGAuditRepository {
	return &PGAuditRepository{pool: pool}
}

const auditCols = `id, source_patient_id, target_patient_id, actor_id, relation_counts, merged_profile, created_at`

func (r *PGAuditRepository) Create(ctx context.Context, entry *AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	counts, err := json.Marshal(entry.RelationCounts)
	if err != nil {
		return fmt.Errorf("marshal relation counts: %w", err)
	}
	profile, err := json.Marshal(entry.MergedProfile)
	if err != nil {
		return fmt.Errorf("marshal merged profile: %w", err)
	}

	_, err = resolveConn(ctx, r.pool).Exec(ctx, `
		INSERT INTO merge_audit (id, source_patient_id, target_patient_id, actor_id, relation_counts, merged_profile, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.SourcePatientID, entry.TargetPatientID, entry.ActorID, counts, profile, entry.CreatedAt)
	return err
}

func (r *PGAuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*AuditEntry, error) {
	row := resolveConn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+auditCols+` FROM merge_audit WHERE id = $1`, id)
	return scanAuditRow(row)
}

func (r *PGAuditRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*AuditEntry, error) {
	rows, err := resolveConn(ctx, r.pool).Query(ctx, `
		SELECT `+auditCols+` FROM merge_audit
		WHERE source_patient_id = $1 OR target_patient_id = $1
		ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		entry, err := scanAuditRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanAuditRow(row pgx.Row) (*AuditEntry, error) {
	var entry AuditEntry
	var counts, profile []byte
	err := row.Scan(&entry.ID, &entry.SourcePatientID, &entry.TargetPatientID,
		&entry.ActorID, &counts, &profile, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAuditNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(counts, &entry.RelationCounts); err != nil {
		return nil, fmt.Errorf("unmarshal relation counts: %w", err)
	}
	if err := json.Unmarshal(profile, &entry.MergedProfile); err != nil {
		return nil, fmt.Errorf("unmarshal merged profile: %w", err)
	}
	return &entry, nil
}
