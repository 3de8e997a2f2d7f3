package visit

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/triage/triage/internal/domain/triage"
)

var (
	// ErrNotFound is returned when no visit exists for a lookup.
	ErrNotFound = errors.New("visit not found")
	// ErrCompleted is returned for mutations against a completed visit.
	ErrCompleted = errors.New("visit already completed")
)

type Repository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error)
	// SetTriage records the latest authoritative score/level on the visit.
	SetTriage(ctx context.Context, id uuid.UUID, score int, level triage.SeverityLevel) error
	// SetFollowUp records a follow-up note plus the reassessed score/level.
	SetFollowUp(ctx context.Context, id uuid.UUID, note, conditionChange string, score int, level triage.SeverityLevel) error
	// MarkInProgress transitions waiting -> in_progress and assigns the doctor.
	MarkInProgress(ctx context.Context, id, doctorID uuid.UUID) error
	// MarkCompleted transitions to the terminal completed state.
	MarkCompleted(ctx context.Context, id uuid.UUID) error
}
