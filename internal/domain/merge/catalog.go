package merge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Relation describes one category of records that references a patient by
// foreign key. Other subsystems register their tables here when they add a
// patient-referencing entity; the engine itself never learns table names.
type Relation interface {
	// Name is the stable category identifier used in previews and audit
	// entries ("orders", "invoices", ...).
	Name() string
	// Unique reports whether a patient is expected to have at most one row
	// in this category.
	Unique() bool
	// Count returns the number of rows referencing the given patient.
	Count(ctx context.Context, patientID uuid.UUID) (int, error)
	// Reassign repoints every row referencing from to reference to, and
	// returns the number of rows changed.
	Reassign(ctx context.Context, from, to uuid.UUID) (int64, error)
}

// Catalog is the ordered registry of relation categories. Order is fixed at
// registration time so previews, audit entries, and conflict lists are
// stable.
type Catalog struct {
	relations []Relation
	byName    map[string]Relation
}

func NewCatalog() *Catalog {
	return &Catalog{byName: make(map[string]Relation)}
}

// Register adds a relation category. Names must be unique.
func (c *Catalog) Register(r Relation) error {
	if _, ok := c.byName[r.Name()]; ok {
		return fmt.Errorf("relation %q already registered", r.Name())
	}
	c.relations = append(c.relations, r)
	c.byName[r.Name()] = r
	return nil
}

// MustRegister is Register for static catalogs assembled at startup.
func (c *Catalog) MustRegister(r Relation) {
	if err := c.Register(r); err != nil {
		panic(err)
	}
}

// Relations returns the registered categories in registration order.
func (c *Catalog) Relations() []Relation {
	out := make([]Relation, len(c.relations))
	copy(out, c.relations)
	return out
}

// Len returns the number of registered categories.
func (c *Catalog) Len() int {
	return len(c.relations)
}

// Counts computes the per-category census for one patient, in registration
// order.
func (c *Catalog) Counts(ctx context.Context, patientID uuid.UUID) ([]RelationCount, error) {
	counts := make([]RelationCount, 0, len(c.relations))
	for _, r := range c.relations {
		n, err := r.Count(ctx, patientID)
		if err != nil {
			return nil, fmt.Errorf("count %s for %s: %w", r.Name(), patientID, err)
		}
		counts = append(counts, RelationCount{Relation: r.Name(), Count: n})
	}
	return counts, nil
}
