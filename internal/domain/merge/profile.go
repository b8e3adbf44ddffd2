package merge

import (
	"github.com/clinicore/clinicore/internal/domain/patient"
)

// Precedence selects which side's value wins when both patients have one.
// The losing side still fills fields the winner left empty.
type Precedence int

const (
	// PreferTarget treats the surviving identity as authoritative.
	PreferTarget Precedence = iota
	// PreferSource treats the absorbed identity as authoritative.
	PreferSource
)

// MergeProfiles computes the scalar profile that results from merging source
// into target. Pure: neither argument is modified, and the same inputs
// always produce the same output. Preview and execution both call this, so
// the caller sees exactly what will be written.
func MergeProfiles(source, target *patient.Patient, precedence Precedence) ProfileFields {
	primary, fallback := target, source
	if precedence == PreferSource {
		primary, fallback = source, target
	}

	return ProfileFields{
		DisplayID:         pickPtr(primary.DisplayID, fallback.DisplayID),
		FirstName:         pickStr(primary.FirstName, fallback.FirstName),
		LastName:          pickStr(primary.LastName, fallback.LastName),
		BirthDate:         pickTime(primary.BirthDate, fallback.BirthDate),
		Gender:            pickPtr(primary.Gender, fallback.Gender),
		Phone:             pickPtr(primary.Phone, fallback.Phone),
		Email:             pickPtr(primary.Email, fallback.Email),
		AddressLine1:      pickPtr(primary.AddressLine1, fallback.AddressLine1),
		AddressLine2:      pickPtr(primary.AddressLine2, fallback.AddressLine2),
		City:              pickPtr(primary.City, fallback.City),
		State:             pickPtr(primary.State, fallback.State),
		PostalCode:        pickPtr(primary.PostalCode, fallback.PostalCode),
		Notes:             mergeNotes(primary.Notes, fallback.Notes),
		BillingCustomerID: pickPtr(primary.BillingCustomerID, fallback.BillingCustomerID),
		PharmacyID:        pickPtr(primary.PharmacyID, fallback.PharmacyID),
	}
}

func pickStr(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}

func pickPtr(primary, fallback *string) *string {
	if primary != nil && *primary != "" {
		return primary
	}
	if fallback != nil && *fallback == "" {
		return nil
	}
	return fallback
}

func pickTime[T any](primary, fallback *T) *T {
	if primary != nil {
		return primary
	}
	return fallback
}

// mergeNotes concatenates free-text notes instead of dropping one side;
// notes are commentary, not an identity field, and losing them silently
// would be data loss.
func mergeNotes(primary, fallback *string) *string {
	switch {
	case primary == nil || *primary == "":
		return pickPtr(fallback, nil)
	case fallback == nil || *fallback == "" || *fallback == *primary:
		return primary
	default:
		combined := *primary + "\n" + *fallback
		return &combined
	}
}
