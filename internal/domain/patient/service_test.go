package patient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	byID map[uuid.UUID]*Patient
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	m.byID[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.byID[p.ID]; !ok {
		return ErrNotFound
	}
	m.byID[p.ID] = p
	return nil
}

func (m *mockRepo) List(_ context.Context, _, _ int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.byID {
		out = append(out, p)
	}
	return out, len(out), nil
}

func newTestService() (*Service, *mockRepo) {
	repo := &mockRepo{byID: make(map[uuid.UUID]*Patient)}
	return NewService(repo), repo
}

func validPatient() *Patient {
	return &Patient{
		FirstName:   "Jane",
		LastName:    "Roe",
		Phone:       "555-0100",
		DateOfBirth: time.Date(1986, 3, 14, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if err := svc.Create(ctx, validPatient()); err != nil {
		t.Fatalf("valid patient rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Patient)
	}{
		{"missing first name", func(p *Patient) { p.FirstName = "" }},
		{"missing last name", func(p *Patient) { p.LastName = "" }},
		{"missing phone", func(p *Patient) { p.Phone = "" }},
		{"missing date of birth", func(p *Patient) { p.DateOfBirth = time.Time{} }},
	}
	for _, tc := range cases {
		p := validPatient()
		tc.mutate(p)
		if err := svc.Create(ctx, p); err == nil {
			t.Errorf("%s accepted", tc.name)
		}
	}
}

func TestUpdateRequiresExisting(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p := validPatient()
	if err := svc.Update(ctx, p); err == nil {
		t.Error("update without id accepted")
	}

	p.ID = uuid.New()
	if err := svc.Update(ctx, p); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown patient: err = %v", err)
	}
}

func TestFullNameAndAge(t *testing.T) {
	p := validPatient()
	if p.FullName() != "Jane Roe" {
		t.Errorf("full name = %q", p.FullName())
	}

	ref := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	if got := p.AgeAt(ref); got != 39 {
		t.Errorf("age day before birthday = %d, want 39", got)
	}
	ref = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if got := p.AgeAt(ref); got != 40 {
		t.Errorf("age on birthday = %d, want 40", got)
	}
}
