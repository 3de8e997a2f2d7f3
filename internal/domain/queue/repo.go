package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/triage/triage/internal/domain/triage"
)

var ErrNotFound = errors.New("queue entry not found")

// Placement is one (entry, derived position) pair produced by a requeue.
type Placement struct {
	EntryID  uuid.UUID
	Position int
}

// Repository is the persistent queue store. Ordering is the store's job:
// ListWaiting returns entries sorted by (priority asc, checked_in_at asc)
// so the manager never re-sorts.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByVisit(ctx context.Context, visitID uuid.UUID) (*Entry, error)
	ListWaiting(ctx context.Context) ([]*Entry, error)
	SetSeverity(ctx context.Context, visitID uuid.UUID, score int, level triage.SeverityLevel, priority int) error
	SetPlacements(ctx context.Context, placements []Placement) error
	MarkCalled(ctx context.Context, visitID, doctorID uuid.UUID) error
	Remove(ctx context.Context, visitID uuid.UUID) error
}
