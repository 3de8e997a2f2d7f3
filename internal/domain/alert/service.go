package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/triage/triage/internal/domain/queue"
	"github.com/triage/triage/internal/domain/triage"
	"github.com/triage/triage/internal/platform/push"
)

// TokenSource yields the device tokens alerts fan out to.
type TokenSource interface {
	AllDeviceTokens(ctx context.Context) ([]string, error)
}

// Refresher pushes a fresh topic snapshot to realtime listeners.
type Refresher interface {
	Refresh(topic string)
}

const fanoutTimeout = 15 * time.Second

// Service persists alerts and fans them out. Persistence is the operation;
// delivery is best-effort and can never fail it.
type Service struct {
	repo   Repository
	tokens TokenSource
	pusher *push.Client
	rt     Refresher
	log    zerolog.Logger
}

func NewService(repo Repository, tokens TokenSource, pusher *push.Client, rt Refresher, log zerolog.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, pusher: pusher, rt: rt, log: log}
}

func (s *Service) NewCritical(ctx context.Context, patientName string, patientID, visitID uuid.UUID, score int, flags []string) (*Alert, error) {
	msg := fmt.Sprintf("%s triaged CRITICAL with score %d. Immediate attention required.", patientName, score)
	return s.create(ctx, TypeNewCritical, msg, patientID, visitID,
		NewCriticalPayload{Score: score, EmergencyFlags: flags})
}

func (s *Service) SeverityChange(ctx context.Context, patientName string, patientID, visitID uuid.UUID, oldLevel, newLevel triage.SeverityLevel, oldScore, newScore int) (*Alert, error) {
	msg := fmt.Sprintf("%s changed from %s to %s (score %d -> %d).",
		patientName, oldLevel, newLevel, oldScore, newScore)
	return s.create(ctx, TypeSeverityChange, msg, patientID, visitID,
		SeverityChangePayload{OldLevel: oldLevel, NewLevel: newLevel, OldScore: oldScore, NewScore: newScore})
}

func (s *Service) VitalDeterioration(ctx context.Context, patientName string, patientID, visitID uuid.UUID, abnormalities []string) (*Alert, error) {
	msg := fmt.Sprintf("%s has abnormal vital signs: %s.", patientName, joinAbnormalities(abnormalities))
	return s.create(ctx, TypeVitalDeterioration, msg, patientID, visitID,
		VitalDeteriorationPayload{Abnormalities: abnormalities})
}

func (s *Service) LongWait(ctx context.Context, patientName string, patientID, visitID uuid.UUID, level triage.SeverityLevel, position, waitedMin int) (*Alert, error) {
	msg := fmt.Sprintf("%s (%s) has been waiting %d minutes at position %d.",
		patientName, level, waitedMin, position)
	return s.create(ctx, TypeLongWait, msg, patientID, visitID,
		LongWaitPayload{WaitedMin: waitedMin, ThresholdMin: queue.LongWaitThreshold(level), Level: level, Position: position})
}

func (s *Service) FollowUpWorsening(ctx context.Context, patientName string, patientID, visitID uuid.UUID, conditionChange string, oldScore, newScore int) (*Alert, error) {
	msg := fmt.Sprintf("%s reports condition %s on follow-up (score %d -> %d).",
		patientName, conditionChange, oldScore, newScore)
	return s.create(ctx, TypeFollowUpWorsening, msg, patientID, visitID,
		FollowUpPayload{ConditionChange: conditionChange, OldScore: oldScore, NewScore: newScore})
}

func (s *Service) Active(ctx context.Context, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListActive(ctx, limit)
}

func (s *Service) Acknowledge(ctx context.Context, id, doctorID uuid.UUID) (*Alert, error) {
	a, err := s.repo.Acknowledge(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}
	s.refresh()
	return a, nil
}

// create persists the alert, then fans out. The fan-out runs on a context
// detached from the request so an aborted request never cuts delivery short,
// and any delivery failure is logged, not returned.
func (s *Service) create(ctx context.Context, t Type, message string, patientID, visitID uuid.UUID, payload interface{}) (*Alert, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	pol := policies[t]
	a := &Alert{
		Type:      t,
		Severity:  ClassifySeverity(t, message),
		Title:     pol.Title,
		Message:   message,
		PatientID: patientID,
		VisitID:   visitID,
		Payload:   raw,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fanoutTimeout)
	defer cancel()
	s.fanout(dctx, a, pol)
	s.refresh()
	return a, nil
}

func (s *Service) fanout(ctx context.Context, a *Alert, pol policy) {
	tokens, err := s.tokens.AllDeviceTokens(ctx)
	if err != nil {
		s.log.Warn().Err(err).Str("alert_id", a.ID.String()).Msg("device token lookup failed")
		return
	}
	if len(tokens) == 0 {
		return
	}
	sent, failed := s.pusher.SendToMany(ctx, tokens, push.Notification{
		Title:    a.Title,
		Body:     a.Message,
		Priority: pol.Priority,
		Sound:    pol.Sound,
		Data: map[string]string{
			"alert_id": a.ID.String(),
			"type":     string(a.Type),
			"visit_id": a.VisitID.String(),
		},
	})
	s.log.Info().
		Str("alert_id", a.ID.String()).
		Str("type", string(a.Type)).
		Int("sent", sent).
		Int("failed", failed).
		Msg("alert fan-out")
}

func (s *Service) refresh() {
	if s.rt != nil {
		s.rt.Refresh("alerts")
	}
}

func joinAbnormalities(abnormalities []string) string {
	if len(abnormalities) == 0 {
		return "unspecified"
	}
	out := abnormalities[0]
	for _, a := range abnormalities[1:] {
		out += "; " + a
	}
	return out
}
