package doctor

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("doctor not found")

type Repository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	List(ctx context.Context) ([]*Doctor, error)
	// AddDeviceToken appends a push token to the doctor's set; adding an
	// already-registered token is a no-op.
	AddDeviceToken(ctx context.Context, id uuid.UUID, token string) error
	// AllDeviceTokens returns every registered token across all doctors.
	AllDeviceTokens(ctx context.Context) ([]string, error)

	CreateNote(ctx context.Context, n *Note) error
	NotesByVisit(ctx context.Context, visitID uuid.UUID) ([]*Note, error)
}
