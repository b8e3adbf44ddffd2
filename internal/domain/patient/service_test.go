package patient

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Repository --

type mockRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) GetByDisplayID(_ context.Context, displayID string) (*Patient, error) {
	for _, p := range m.patients {
		if p.DisplayID != nil && *p.DisplayID == displayID {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return ErrNotFound
	}
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.patients[id]; !ok {
		return ErrNotFound
	}
	delete(m.patients, id)
	return nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		result = append(result, p)
	}
	return result, len(result), nil
}

func (m *mockRepo) Search(_ context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		if strings.Contains(strings.ToLower(p.FirstName), strings.ToLower(query)) ||
			strings.Contains(strings.ToLower(p.LastName), strings.ToLower(query)) {
			result = append(result, p)
		}
	}
	return result, len(result), nil
}

func strPtr(s string) *string { return &s }

func TestCreatePatient_RequiresName(t *testing.T) {
	svc := NewService(newMockRepo())

	err := svc.CreatePatient(context.Background(), &Patient{FirstName: "Ada"})
	if err == nil {
		t.Error("expected error when last_name is missing")
	}

	err = svc.CreatePatient(context.Background(), &Patient{LastName: "Lovelace"})
	if err == nil {
		t.Error("expected error when first_name is missing")
	}
}

func TestCreatePatient_ValidatesGender(t *testing.T) {
	svc := NewService(newMockRepo())
	p := &Patient{FirstName: "Ada", LastName: "Lovelace", Gender: strPtr("robot")}
	if err := svc.CreatePatient(context.Background(), p); err == nil {
		t.Error("expected error for invalid gender")
	}

	p.Gender = strPtr("female")
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGetPatient_NotFound(t *testing.T) {
	svc := NewService(newMockRepo())
	_, err := svc.GetPatient(context.Background(), uuid.New())
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePatient_RoundTrip(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)

	p := &Patient{FirstName: "Ada", LastName: "Lovelace"}
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("create: %v", err)
	}

	p.Email = strPtr("ada@example.com")
	if err := svc.UpdatePatient(context.Background(), p); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := svc.GetPatient(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Email == nil || *got.Email != "ada@example.com" {
		t.Errorf("expected updated email, got %v", got.Email)
	}
}

func TestSearchPatients_EmptyQueryLists(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	for i := 0; i < 3; i++ {
		p := &Patient{FirstName: "Pat", LastName: "Smith"}
		if err := svc.CreatePatient(context.Background(), p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	items, total, err := svc.SearchPatients(context.Background(), "", 20, 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Errorf("expected 3 patients, got total=%d len=%d", total, len(items))
	}
}

func TestFullName(t *testing.T) {
	p := &Patient{FirstName: "Ada", LastName: "Lovelace"}
	if p.FullName() != "Ada Lovelace" {
		t.Errorf("unexpected full name: %s", p.FullName())
	}
}
