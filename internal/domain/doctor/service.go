package doctor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/triage/triage/internal/domain/visit"
)

// QueueCompleter removes a visit from the waiting queue. Satisfied by the
// queue manager; kept narrow so notes don't pull in queue internals.
type QueueCompleter interface {
	Complete(ctx context.Context, visitID uuid.UUID) error
}

type Service struct {
	repo   Repository
	visits visit.Repository
	queue  QueueCompleter
	log    zerolog.Logger
}

func NewService(repo Repository, visits visit.Repository, queue QueueCompleter, log zerolog.Logger) *Service {
	return &Service{repo: repo, visits: visits, queue: queue, log: log}
}

func (s *Service) Create(ctx context.Context, d *Doctor) error {
	if d.FirstName == "" || d.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if d.Email == "" {
		return fmt.Errorf("email is required")
	}
	return s.repo.Create(ctx, d)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Doctor, error) {
	return s.repo.List(ctx)
}

func (s *Service) RegisterDevice(ctx context.Context, doctorID uuid.UUID, token string) error {
	if token == "" {
		return fmt.Errorf("device_token is required")
	}
	return s.repo.AddDeviceToken(ctx, doctorID, token)
}

// SaveNote stores the clinical note and completes the visit: the visit is
// marked completed and leaves the waiting queue. Writing a second note for
// an already-completed visit is allowed (amendments).
func (s *Service) SaveNote(ctx context.Context, n *Note) error {
	if n.VisitID == uuid.Nil {
		return fmt.Errorf("visit_id is required")
	}
	if n.Diagnosis == "" {
		return fmt.Errorf("diagnosis is required")
	}
	if _, err := s.visits.GetByID(ctx, n.VisitID); err != nil {
		return err
	}
	if err := s.repo.CreateNote(ctx, n); err != nil {
		return err
	}

	if err := s.visits.MarkCompleted(ctx, n.VisitID); err != nil && !errors.Is(err, visit.ErrCompleted) {
		return err
	}
	if err := s.queue.Complete(ctx, n.VisitID); err != nil {
		// The note is saved and the visit completed; a queue miss here only
		// means the patient had already been removed.
		s.log.Warn().Err(err).Str("visit_id", n.VisitID.String()).Msg("queue removal after note")
	}
	return nil
}

func (s *Service) NotesByVisit(ctx context.Context, visitID uuid.UUID) ([]*Note, error) {
	return s.repo.NotesByVisit(ctx, visitID)
}
