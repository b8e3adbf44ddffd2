// Package merge implements patient record merging: combining two patient
// identities into one by moving every patient-referencing record from the
// source to the target, reconciling the two profiles, and deleting the
// source — atomically, exactly once.
package merge

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/patient"
)

// ConflictKind classifies a detected disagreement between the two patients.
type ConflictKind string

const (
	// ConflictError blocks the merge until resolved out-of-band.
	ConflictError ConflictKind = "error"
	// ConflictWarning is surfaced to the caller but does not block.
	ConflictWarning ConflictKind = "warning"
)

// Conflict is a single detected disagreement between source and target.
type Conflict struct {
	Kind    ConflictKind `json:"kind"`
	Field   string       `json:"field"`
	Message string       `json:"message"`
}

// RelationCount is a per-category census of records referencing a patient.
// Computed fresh on every preview; never stored.
type RelationCount struct {
	Relation string `json:"relation"`
	Count    int    `json:"count"`
}

// ProfileFields is the scalar profile outcome of a merge. It mirrors the
// patient's scalar fields; identifiers and timestamps are excluded because
// the target keeps its own.
type ProfileFields struct {
	DisplayID         *string    `json:"display_id,omitempty"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	BirthDate         *time.Time `json:"birth_date,omitempty"`
	Gender            *string    `json:"gender,omitempty"`
	Phone             *string    `json:"phone,omitempty"`
	Email             *string    `json:"email,omitempty"`
	AddressLine1      *string    `json:"address_line1,omitempty"`
	AddressLine2      *string    `json:"address_line2,omitempty"`
	City              *string    `json:"city,omitempty"`
	State             *string    `json:"state,omitempty"`
	PostalCode        *string    `json:"postal_code,omitempty"`
	Notes             *string    `json:"notes,omitempty"`
	BillingCustomerID *string    `json:"billing_customer_id,omitempty"`
	PharmacyID        *string    `json:"pharmacy_id,omitempty"`
}

// Apply writes the merged profile onto a patient row.
func (f ProfileFields) Apply(p *patient.Patient) {
	p.DisplayID = f.DisplayID
	p.FirstName = f.FirstName
	p.LastName = f.LastName
	p.BirthDate = f.BirthDate
	p.Gender = f.Gender
	p.Phone = f.Phone
	p.Email = f.Email
	p.AddressLine1 = f.AddressLine1
	p.AddressLine2 = f.AddressLine2
	p.City = f.City
	p.State = f.State
	p.PostalCode = f.PostalCode
	p.Notes = f.Notes
	p.BillingCustomerID = f.BillingCustomerID
	p.PharmacyID = f.PharmacyID
}

// PatientWithCounts pairs a patient with its per-relation census.
type PatientWithCounts struct {
	Patient *patient.Patient `json:"patient"`
	Counts  []RelationCount  `json:"counts"`
}

// TotalRecords sums the census across all relation categories.
func (p PatientWithCounts) TotalRecords() int {
	total := 0
	for _, c := range p.Counts {
		total += c.Count
	}
	return total
}

// Preview is the read-only merge assessment returned to the caller. It is
// advisory: the data may change between preview and execute, which is why
// execution recomputes everything fresh.
type Preview struct {
	Source             PatientWithCounts `json:"source"`
	Target             PatientWithCounts `json:"target"`
	MergedProfile      ProfileFields     `json:"merged_profile"`
	TotalRecordsToMove int               `json:"total_records_to_move"`
	Conflicts          []Conflict        `json:"conflicts"`
	CanMerge           bool              `json:"can_merge"`
}

// Result reports what a completed merge actually did.
type Result struct {
	MergedPatientID   uuid.UUID      `json:"merged_patient_id"`
	PerRelationCounts map[string]int `json:"per_relation_counts"`
	AuditEntryID      uuid.UUID      `json:"audit_entry_id"`
}
