package alert

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("alert not found")

type Repository interface {
	Create(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	// ListActive returns unacknowledged alerts, newest first.
	ListActive(ctx context.Context, limit int) ([]*Alert, error)
	// Acknowledge sets the acknowledged flag. Acknowledging an alert that is
	// already acknowledged leaves the original by/at untouched.
	Acknowledge(ctx context.Context, id, doctorID uuid.UUID) (*Alert, error)
}
