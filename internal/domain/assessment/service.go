// Package assessment wires intake to outcome: it runs the scoring pipeline
// that turns a symptom report into a visit, a triage result, a queue entry
// and whatever alerts the result warrants.
package assessment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/triage/triage/internal/domain/alert"
	"github.com/triage/triage/internal/domain/patient"
	"github.com/triage/triage/internal/domain/queue"
	"github.com/triage/triage/internal/domain/triage"
	"github.com/triage/triage/internal/domain/visit"
)

// scoreDeltaForRequeue is the follow-up score movement that reorders the
// queue even when the severity level stayed the same.
const scoreDeltaForRequeue = 10

// Refresher pushes a fresh topic snapshot to realtime listeners.
type Refresher interface {
	Refresh(topic string)
}

type Service struct {
	patients patient.Repository
	visits   visit.Repository
	results  triage.ResultRepository
	scorer   triage.Scorer
	engine   *triage.Engine
	queue    *queue.Manager
	alerts   *alert.Service
	rt       Refresher
	log      zerolog.Logger
}

func NewService(
	patients patient.Repository,
	visits visit.Repository,
	results triage.ResultRepository,
	scorer triage.Scorer,
	engine *triage.Engine,
	q *queue.Manager,
	alerts *alert.Service,
	rt Refresher,
	log zerolog.Logger,
) *Service {
	return &Service{
		patients: patients,
		visits:   visits,
		results:  results,
		scorer:   scorer,
		engine:   engine,
		queue:    q,
		alerts:   alerts,
		rt:       rt,
		log:      log,
	}
}

// AssessRequest is one intake submission.
type AssessRequest struct {
	PatientID      uuid.UUID     `json:"patient_id"`
	ChiefComplaint string        `json:"chief_complaint"`
	SymptomText    string        `json:"symptom_text"`
	Duration       string        `json:"duration"`
	PainLevel      int           `json:"pain_level"`
	Vitals         triage.Vitals `json:"vitals"`
}

func (r *AssessRequest) validate() error {
	if r.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if strings.TrimSpace(r.SymptomText) == "" {
		return fmt.Errorf("symptom_text is required")
	}
	return nil
}

// AssessResponse carries the outcome of the full intake pipeline.
type AssessResponse struct {
	VisitID    uuid.UUID      `json:"visit_id"`
	Assessment *triage.Result `json:"assessment"`
	QueueEntry *queue.Entry   `json:"queue_entry"`
}

// Assess runs the intake pipeline: create the visit, score it, persist the
// result, enqueue the patient, raise alerts, broadcast. A scoring failure
// aborts before anything reaches the queue.
func (s *Service) Assess(ctx context.Context, req *AssessRequest) (*AssessResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	p, err := s.patients.GetByID(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}

	v := &visit.Visit{
		PatientID:      p.ID,
		ChiefComplaint: req.ChiefComplaint,
		SymptomText:    req.SymptomText,
		Vitals:         req.Vitals,
	}
	if req.Duration != "" {
		v.SymptomDuration = &req.Duration
	}
	if err := s.visits.Create(ctx, v); err != nil {
		return nil, err
	}

	age := p.AgeAt(time.Now())
	input := triage.Input{
		SymptomText:   req.SymptomText,
		Duration:      req.Duration,
		Vitals:        req.Vitals,
		Age:           age,
		PainLevel:     req.PainLevel,
		Comorbidities: p.MedicalHistory,
	}
	a, err := s.scorer.Assess(ctx, input)
	if err != nil {
		return nil, err
	}

	result := &triage.Result{
		VisitID:            v.ID,
		PatientID:          p.ID,
		Score:              a.Score,
		Level:              a.Level,
		Priority:           a.Priority,
		Symptoms:           a.Symptoms,
		EmergencyFlags:     a.EmergencyFlags,
		VitalAbnormalities: a.VitalAbnormalities,
		Reasoning:          a.Reasoning,
		RuleOverride:       a.RuleOverride,
		Recommendation:     a.Recommendation,
	}
	if err := s.results.Create(ctx, result); err != nil {
		return nil, err
	}
	if err := s.visits.SetTriage(ctx, v.ID, a.Score, a.Level); err != nil {
		return nil, err
	}

	entry := &queue.Entry{
		VisitID:        v.ID,
		PatientID:      p.ID,
		PatientName:    p.FullName(),
		Age:            age,
		Score:          a.Score,
		Level:          a.Level,
		ChiefComplaint: req.ChiefComplaint,
		SymptomSummary: req.SymptomText,
		Vitals:         req.Vitals,
		EmergencyFlags: a.EmergencyFlags,
	}
	if err := s.queue.Enqueue(ctx, entry); err != nil {
		return nil, err
	}

	s.raiseIntakeAlerts(ctx, p, v.ID, a)
	s.rt.Refresh("queue")

	s.log.Info().
		Str("visit_id", v.ID.String()).
		Int("score", a.Score).
		Str("level", string(a.Level)).
		Bool("override", a.RuleOverride).
		Msg("assessment complete")
	return &AssessResponse{VisitID: v.ID, Assessment: result, QueueEntry: entry}, nil
}

// raiseIntakeAlerts fires the conditional intake alerts. Alert failures are
// logged only: the assessment has already succeeded.
func (s *Service) raiseIntakeAlerts(ctx context.Context, p *patient.Patient, visitID uuid.UUID, a *triage.Assessment) {
	if a.Level == triage.LevelCritical {
		if _, err := s.alerts.NewCritical(ctx, p.FullName(), p.ID, visitID, a.Score, a.EmergencyFlags); err != nil {
			s.log.Error().Err(err).Str("visit_id", visitID.String()).Msg("new_critical alert failed")
		}
	}
	if len(a.VitalAbnormalities) > 0 {
		if _, err := s.alerts.VitalDeterioration(ctx, p.FullName(), p.ID, visitID, a.VitalAbnormalities); err != nil {
			s.log.Error().Err(err).Str("visit_id", visitID.String()).Msg("vital_deterioration alert failed")
		}
	}
}

// FollowUpRequest is a patient-reported update on an open visit.
type FollowUpRequest struct {
	VisitID         uuid.UUID `json:"visit_id"`
	FollowUpNote    string    `json:"follow_up_note"`
	ConditionChange string    `json:"condition_change"`
}

func (r *FollowUpRequest) validate() error {
	if r.VisitID == uuid.Nil {
		return fmt.Errorf("visit_id is required")
	}
	switch r.ConditionChange {
	case triage.ConditionWorsened, triage.ConditionImproved, triage.ConditionSame:
		return nil
	default:
		return fmt.Errorf("condition_change must be worsened, improved or same")
	}
}

// FollowUpResponse carries the reassessment outcome.
type FollowUpResponse struct {
	VisitID      uuid.UUID            `json:"visit_id"`
	Reassessment *triage.Reassessment `json:"reassessment"`
	QueueUpdated bool                 `json:"queue_updated"`
}

// FollowUp reassesses an open visit from a follow-up report. The queue is
// reordered when the severity level changed or the score moved by more than
// scoreDeltaForRequeue.
func (s *Service) FollowUp(ctx context.Context, req *FollowUpRequest) (*FollowUpResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	v, err := s.visits.GetByID(ctx, req.VisitID)
	if err != nil {
		return nil, err
	}
	if v.Status == visit.StatusCompleted {
		return nil, visit.ErrCompleted
	}
	if v.TriageScore == nil || v.SeverityLevel == nil {
		return nil, fmt.Errorf("visit has no triage result to reassess")
	}
	oldScore, oldLevel := *v.TriageScore, *v.SeverityLevel

	re := s.engine.Reassess(oldScore, req.FollowUpNote, req.ConditionChange)

	result := &triage.Result{
		VisitID:        v.ID,
		PatientID:      v.PatientID,
		Score:          re.Score,
		Level:          re.Level,
		Priority:       re.Priority,
		Symptoms:       re.Symptoms,
		EmergencyFlags: re.EmergencyFlags,
		Reasoning:      re.Reasoning,
		Recommendation: triage.RecommendationForLevel(re.Level),
	}
	if err := s.results.Create(ctx, result); err != nil {
		return nil, err
	}
	if err := s.visits.SetFollowUp(ctx, v.ID, req.FollowUpNote, req.ConditionChange, re.Score, re.Level); err != nil {
		return nil, err
	}

	levelChanged := re.Level != oldLevel
	delta := re.Score - oldScore
	if delta < 0 {
		delta = -delta
	}
	queueUpdated := false
	if levelChanged || delta > scoreDeltaForRequeue {
		if _, err := s.queue.UpdateSeverity(ctx, v.ID, re.Score, re.Level); err != nil {
			// The patient may already have been called; the reassessment
			// itself still stands.
			s.log.Warn().Err(err).Str("visit_id", v.ID.String()).Msg("queue severity update failed")
		} else {
			queueUpdated = true
		}
	}

	s.raiseFollowUpAlerts(ctx, v, re, req.ConditionChange, oldLevel, oldScore)
	s.rt.Refresh("queue")

	s.log.Info().
		Str("visit_id", v.ID.String()).
		Int("score", re.Score).
		Int("change", re.ScoreChange).
		Str("level", string(re.Level)).
		Msg("follow-up reassessment")
	return &FollowUpResponse{VisitID: v.ID, Reassessment: re, QueueUpdated: queueUpdated}, nil
}

func (s *Service) raiseFollowUpAlerts(ctx context.Context, v *visit.Visit, re *triage.Reassessment, conditionChange string, oldLevel triage.SeverityLevel, oldScore int) {
	p, err := s.patients.GetByID(ctx, v.PatientID)
	if err != nil {
		s.log.Error().Err(err).Str("visit_id", v.ID.String()).Msg("patient lookup for alerts failed")
		return
	}
	name := p.FullName()

	if conditionChange == triage.ConditionWorsened {
		if _, err := s.alerts.FollowUpWorsening(ctx, name, p.ID, v.ID, conditionChange, oldScore, re.Score); err != nil {
			s.log.Error().Err(err).Str("visit_id", v.ID.String()).Msg("follow_up_worsening alert failed")
		}
	}
	if re.Level != oldLevel {
		if re.Level == triage.LevelCritical {
			if _, err := s.alerts.NewCritical(ctx, name, p.ID, v.ID, re.Score, re.EmergencyFlags); err != nil {
				s.log.Error().Err(err).Str("visit_id", v.ID.String()).Msg("new_critical alert failed")
			}
		} else {
			if _, err := s.alerts.SeverityChange(ctx, name, p.ID, v.ID, oldLevel, re.Level, oldScore, re.Score); err != nil {
				s.log.Error().Err(err).Str("visit_id", v.ID.String()).Msg("severity_change alert failed")
			}
		}
	}
}

// Result returns the latest triage result for a visit.
func (s *Service) Result(ctx context.Context, visitID uuid.UUID) (*triage.Result, error) {
	return s.results.LatestByVisit(ctx, visitID)
}
