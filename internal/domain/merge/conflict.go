package merge

import (
	"fmt"

	"github.com/clinicore/clinicore/internal/domain/patient"
)

// DetectionInput carries everything conflict detection needs. It holds plain
// data so detection stays pure and runs identically during preview and inside
// the execution transaction.
type DetectionInput struct {
	Source *patient.Patient
	Target *patient.Patient

	SourceCounts []RelationCount
	TargetCounts []RelationCount

	SourceActiveSubs int
	TargetActiveSubs int

	// UniqueRelations names relations where a patient may hold at most one
	// row, in catalog order.
	UniqueRelations []string
}

// DetectConflicts evaluates all conflict rules against the input. Rules run
// in a fixed order so the returned slice is stable for equal inputs:
// blocking identity conflicts first, then overlap warnings, then scalar
// mismatch warnings, then the zero-record advisory.
func DetectConflicts(in DetectionInput) []Conflict {
	var conflicts []Conflict

	conflicts = append(conflicts, detectIdentityConflicts(in.Source, in.Target)...)

	if in.SourceActiveSubs > 0 && in.TargetActiveSubs > 0 {
		conflicts = append(conflicts, Conflict{
			Kind:  ConflictWarning,
			Field: "subscriptions",
			Message: fmt.Sprintf("both patients have active subscriptions (source %d, target %d); review billing after merge",
				in.SourceActiveSubs, in.TargetActiveSubs),
		})
	}

	conflicts = append(conflicts, detectUniqueOverlaps(in)...)
	conflicts = append(conflicts, detectScalarMismatches(in.Source, in.Target)...)

	if totalCount(in.SourceCounts) == 0 {
		conflicts = append(conflicts, Conflict{
			Kind:    ConflictWarning,
			Field:   "source",
			Message: "source patient has no associated records; merge will only remove the duplicate profile",
		})
	}

	return conflicts
}

// CanMerge reports whether the conflict set contains no blocking errors.
// Warnings never block.
func CanMerge(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Kind == ConflictError {
			return false
		}
	}
	return true
}

// detectIdentityConflicts flags external identifiers that cannot be merged
// automatically. Two distinct billing customers or pharmacy links mean the
// patients are wired to different external accounts, and reassigning records
// would corrupt one of them.
func detectIdentityConflicts(source, target *patient.Patient) []Conflict {
	var conflicts []Conflict
	if bothSetAndDiffer(source.BillingCustomerID, target.BillingCustomerID) {
		conflicts = append(conflicts, Conflict{
			Kind:    ConflictError,
			Field:   "billing_customer_id",
			Message: "patients are linked to different billing customers; unlink one before merging",
		})
	}
	if bothSetAndDiffer(source.PharmacyID, target.PharmacyID) {
		conflicts = append(conflicts, Conflict{
			Kind:    ConflictError,
			Field:   "pharmacy_id",
			Message: "patients are linked to different pharmacies; unlink one before merging",
		})
	}
	return conflicts
}

func detectUniqueOverlaps(in DetectionInput) []Conflict {
	srcByName := countsByName(in.SourceCounts)
	tgtByName := countsByName(in.TargetCounts)

	var conflicts []Conflict
	for _, name := range in.UniqueRelations {
		if srcByName[name] > 0 && tgtByName[name] > 0 {
			conflicts = append(conflicts, Conflict{
				Kind:    ConflictWarning,
				Field:   name,
				Message: fmt.Sprintf("both patients have a %s record; the source record will be moved alongside the target's", name),
			})
		}
	}
	return conflicts
}

// scalarFields lists the profile fields compared for mismatch warnings, in
// report order.
var scalarFields = []struct {
	name string
	get  func(p *patient.Patient) string
}{
	{"display_id", func(p *patient.Patient) string { return deref(p.DisplayID) }},
	{"first_name", func(p *patient.Patient) string { return p.FirstName }},
	{"last_name", func(p *patient.Patient) string { return p.LastName }},
	{"birth_date", func(p *patient.Patient) string {
		if p.BirthDate == nil {
			return ""
		}
		return p.BirthDate.Format("2006-01-02")
	}},
	{"gender", func(p *patient.Patient) string { return deref(p.Gender) }},
	{"phone", func(p *patient.Patient) string { return deref(p.Phone) }},
	{"email", func(p *patient.Patient) string { return deref(p.Email) }},
	{"address_line1", func(p *patient.Patient) string { return deref(p.AddressLine1) }},
	{"city", func(p *patient.Patient) string { return deref(p.City) }},
	{"state", func(p *patient.Patient) string { return deref(p.State) }},
	{"postal_code", func(p *patient.Patient) string { return deref(p.PostalCode) }},
}

func detectScalarMismatches(source, target *patient.Patient) []Conflict {
	var conflicts []Conflict
	for _, f := range scalarFields {
		sv, tv := f.get(source), f.get(target)
		if sv != "" && tv != "" && sv != tv {
			conflicts = append(conflicts, Conflict{
				Kind:    ConflictWarning,
				Field:   f.name,
				Message: fmt.Sprintf("%s differs between patients (source %q, target %q)", f.name, sv, tv),
			})
		}
	}
	return conflicts
}

func bothSetAndDiffer(a, b *string) bool {
	return a != nil && *a != "" && b != nil && *b != "" && *a != *b
}

func countsByName(counts []RelationCount) map[string]int {
	m := make(map[string]int, len(counts))
	for _, c := range counts {
		m[c.Relation] = c.Count
	}
	return m
}

func totalCount(counts []RelationCount) int {
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	return total
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
