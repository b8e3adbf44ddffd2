package merge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// memRelation is an in-memory relation backed by a rows map keyed by row id.
type memRelation struct {
	mu     sync.Mutex
	name   string
	unique bool
	rows   map[uuid.UUID]uuid.UUID // row id -> patient id
	err    error

	// reassignStarted/reassignRelease, when set, gate Reassign so tests can
	// hold a merge mid-flight.
	reassignStarted chan struct{}
	reassignRelease chan struct{}
}

func newMemRelation(name string, unique bool) *memRelation {
	return &memRelation{name: name, unique: unique, rows: make(map[uuid.UUID]uuid.UUID)}
}

func (r *memRelation) addRows(patientID uuid.UUID, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < n; i++ {
		r.rows[uuid.New()] = patientID
	}
}

func (r *memRelation) Name() string { return r.name }
func (r *memRelation) Unique() bool { return r.unique }

func (r *memRelation) Count(ctx context.Context, patientID uuid.UUID) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, pid := range r.rows {
		if pid == patientID {
			n++
		}
	}
	return n, nil
}

func (r *memRelation) Reassign(ctx context.Context, from, to uuid.UUID) (int64, error) {
	if r.reassignStarted != nil {
		r.reassignStarted <- struct{}{}
		<-r.reassignRelease
	}
	if r.err != nil {
		return 0, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var moved int64
	for id, pid := range r.rows {
		if pid == from {
			r.rows[id] = to
			moved++
		}
	}
	return moved, nil
}

func (r *memRelation) snapshot() map[uuid.UUID]uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(map[uuid.UUID]uuid.UUID, len(r.rows))
	for k, v := range r.rows {
		cp[k] = v
	}
	return cp
}

func (r *memRelation) restore(snap map[uuid.UUID]uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = make(map[uuid.UUID]uuid.UUID, len(snap))
	for k, v := range snap {
		r.rows[k] = v
	}
}

func TestCatalogRegistrationOrder(t *testing.T) {
	c := NewCatalog()
	c.MustRegister(newMemRelation("orders", false))
	c.MustRegister(newMemRelation("invoices", false))
	c.MustRegister(newMemRelation("portal_accounts", true))

	rels := c.Relations()
	if len(rels) != 3 || c.Len() != 3 {
		t.Fatalf("expected 3 relations, got %d", len(rels))
	}
	for i, want := range []string{"orders", "invoices", "portal_accounts"} {
		if rels[i].Name() != want {
			t.Errorf("position %d: expected %s, got %s", i, want, rels[i].Name())
		}
	}
	if !rels[2].Unique() {
		t.Error("portal_accounts should be unique")
	}
}

func TestCatalogRejectsDuplicateNames(t *testing.T) {
	c := NewCatalog()
	if err := c.Register(newMemRelation("orders", false)); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := c.Register(newMemRelation("orders", false)); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestCatalogCounts(t *testing.T) {
	pid := uuid.New()
	orders := newMemRelation("orders", false)
	orders.addRows(pid, 3)
	invoices := newMemRelation("invoices", false)

	c := NewCatalog()
	c.MustRegister(orders)
	c.MustRegister(invoices)

	counts, err := c.Counts(context.Background(), pid)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	want := []RelationCount{{Relation: "orders", Count: 3}, {Relation: "invoices", Count: 0}}
	if len(counts) != len(want) {
		t.Fatalf("expected %d counts, got %d", len(want), len(counts))
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("count %d: expected %+v, got %+v", i, want[i], counts[i])
		}
	}
}

func TestCatalogCountsPropagatesErrors(t *testing.T) {
	broken := newMemRelation("orders", false)
	broken.err = errors.New("connection reset")

	c := NewCatalog()
	c.MustRegister(broken)

	if _, err := c.Counts(context.Background(), uuid.New()); err == nil {
		t.Error("expected count error to propagate")
	}
}

func TestPGCatalogCoversAllCategories(t *testing.T) {
	// The table descriptor list doubles as the category registry; guard its
	// shape without a database.
	seen := make(map[string]bool, len(pgTables))
	for _, tbl := range pgTables {
		if seen[tbl.name] {
			t.Errorf("duplicate category %s", tbl.name)
		}
		seen[tbl.name] = true
		if tbl.table == "" || tbl.fk == "" {
			t.Errorf("category %s missing table or fk column", tbl.name)
		}
	}
	if len(pgTables) != 26 {
		t.Errorf("expected 26 relation categories, got %d", len(pgTables))
	}
	if !seen["portal_accounts"] {
		t.Error("portal_accounts category missing")
	}
	for _, tbl := range pgTables {
		if tbl.name == "referrals" && tbl.fk != "referred_patient_id" {
			t.Errorf("referrals must key on referred_patient_id, got %s", tbl.fk)
		}
		if tbl.name == "portal_accounts" && !tbl.unique {
			t.Error("portal_accounts must be unique")
		}
	}
}
