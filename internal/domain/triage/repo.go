package triage

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no triage result exists for a lookup.
var ErrNotFound = errors.New("triage result not found")

type ResultRepository interface {
	Create(ctx context.Context, r *Result) error
	GetByID(ctx context.Context, id uuid.UUID) (*Result, error)
	// LatestByVisit returns the most recent result for a visit; the
	// latest result is the authoritative one.
	LatestByVisit(ctx context.Context, visitID uuid.UUID) (*Result, error)
	ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*Result, error)
}
