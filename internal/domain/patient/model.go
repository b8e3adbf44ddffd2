package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patients table. DisplayID is the human-facing chart
// number shown in the UI; BillingCustomerID and PharmacyID are identifiers
// assigned by the external payment processor and pharmacy system and are
// treated as authoritative once set.
type Patient struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	DisplayID         *string    `db:"display_id" json:"display_id,omitempty"`
	FirstName         string     `db:"first_name" json:"first_name"`
	LastName          string     `db:"last_name" json:"last_name"`
	BirthDate         *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender            *string    `db:"gender" json:"gender,omitempty"`
	Phone             *string    `db:"phone" json:"phone,omitempty"`
	Email             *string    `db:"email" json:"email,omitempty"`
	AddressLine1      *string    `db:"address_line1" json:"address_line1,omitempty"`
	AddressLine2      *string    `db:"address_line2" json:"address_line2,omitempty"`
	City              *string    `db:"city" json:"city,omitempty"`
	State             *string    `db:"state" json:"state,omitempty"`
	PostalCode        *string    `db:"postal_code" json:"postal_code,omitempty"`
	Notes             *string    `db:"notes" json:"notes,omitempty"`
	BillingCustomerID *string    `db:"billing_customer_id" json:"billing_customer_id,omitempty"`
	PharmacyID        *string    `db:"pharmacy_id" json:"pharmacy_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns the display name used in lists and audit output.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}
