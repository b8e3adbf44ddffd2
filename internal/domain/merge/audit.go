package merge

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrAuditNotFound is returned when an audit entry does not exist.
var ErrAuditNotFound = errors.New("merge audit entry not found")

// AuditEntry is the permanent record of one completed merge. Exactly one is
// written per merge, in the same transaction that performs it.
type AuditEntry struct {
	ID              uuid.UUID      `json:"id"`
	SourcePatientID uuid.UUID      `json:"source_patient_id"`
	TargetPatientID uuid.UUID      `json:"target_patient_id"`
	ActorID         string         `json:"actor_id"`
	RelationCounts  map[string]int `json:"relation_counts"`
	MergedProfile   ProfileFields  `json:"merged_profile"`
	CreatedAt       time.Time      `json:"created_at"`
}

// AuditRepository persists merge audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *AuditEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*AuditEntry, error)
	// ListByPatient returns entries where the patient was either side of a
	// merge, newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*AuditEntry, error)
}
