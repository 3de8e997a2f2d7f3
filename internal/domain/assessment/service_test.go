package assessment

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/triage/triage/internal/domain/alert"
	"github.com/triage/triage/internal/domain/patient"
	"github.com/triage/triage/internal/domain/queue"
	"github.com/triage/triage/internal/domain/triage"
	"github.com/triage/triage/internal/domain/visit"
	"github.com/triage/triage/internal/platform/push"
)

// -- In-memory stores --

type memPatients struct {
	byID map[uuid.UUID]*patient.Patient
}

func (m *memPatients) Create(_ context.Context, p *patient.Patient) error {
	p.ID = uuid.New()
	m.byID[p.ID] = p
	return nil
}

func (m *memPatients) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, patient.ErrNotFound
	}
	return p, nil
}

func (m *memPatients) Update(_ context.Context, p *patient.Patient) error {
	if _, ok := m.byID[p.ID]; !ok {
		return patient.ErrNotFound
	}
	m.byID[p.ID] = p
	return nil
}

func (m *memPatients) List(_ context.Context, _, _ int) ([]*patient.Patient, int, error) {
	var out []*patient.Patient
	for _, p := range m.byID {
		out = append(out, p)
	}
	return out, len(out), nil
}

type memVisits struct {
	byID map[uuid.UUID]*visit.Visit
}

func (m *memVisits) Create(_ context.Context, v *visit.Visit) error {
	v.ID = uuid.New()
	v.Status = visit.StatusWaiting
	v.CreatedAt = time.Now()
	m.byID[v.ID] = v
	return nil
}

func (m *memVisits) GetByID(_ context.Context, id uuid.UUID) (*visit.Visit, error) {
	v, ok := m.byID[id]
	if !ok {
		return nil, visit.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memVisits) ListByPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]*visit.Visit, int, error) {
	var out []*visit.Visit
	for _, v := range m.byID {
		if v.PatientID == patientID {
			out = append(out, v)
		}
	}
	return out, len(out), nil
}

func (m *memVisits) SetTriage(_ context.Context, id uuid.UUID, score int, level triage.SeverityLevel) error {
	v, ok := m.byID[id]
	if !ok {
		return visit.ErrNotFound
	}
	v.TriageScore = &score
	v.SeverityLevel = &level
	return nil
}

func (m *memVisits) SetFollowUp(_ context.Context, id uuid.UUID, note, conditionChange string, score int, level triage.SeverityLevel) error {
	v, ok := m.byID[id]
	if !ok {
		return visit.ErrNotFound
	}
	if v.Status == visit.StatusCompleted {
		return visit.ErrCompleted
	}
	v.FollowUpNote = &note
	v.ConditionChange = &conditionChange
	v.TriageScore = &score
	v.SeverityLevel = &level
	return nil
}

func (m *memVisits) MarkInProgress(_ context.Context, id, doctorID uuid.UUID) error {
	v, ok := m.byID[id]
	if !ok {
		return visit.ErrNotFound
	}
	v.Status = visit.StatusInProgress
	v.AssignedDoctorID = &doctorID
	return nil
}

func (m *memVisits) MarkCompleted(_ context.Context, id uuid.UUID) error {
	v, ok := m.byID[id]
	if !ok {
		return visit.ErrNotFound
	}
	v.Status = visit.StatusCompleted
	return nil
}

type memResults struct {
	results []*triage.Result
}

func (m *memResults) Create(_ context.Context, r *triage.Result) error {
	r.ID = uuid.New()
	r.CreatedAt = time.Now()
	m.results = append(m.results, r)
	return nil
}

func (m *memResults) GetByID(_ context.Context, id uuid.UUID) (*triage.Result, error) {
	for _, r := range m.results {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, triage.ErrNotFound
}

func (m *memResults) LatestByVisit(_ context.Context, visitID uuid.UUID) (*triage.Result, error) {
	for i := len(m.results) - 1; i >= 0; i-- {
		if m.results[i].VisitID == visitID {
			return m.results[i], nil
		}
	}
	return nil, triage.ErrNotFound
}

func (m *memResults) ListByVisit(_ context.Context, visitID uuid.UUID) ([]*triage.Result, error) {
	var out []*triage.Result
	for _, r := range m.results {
		if r.VisitID == visitID {
			out = append(out, r)
		}
	}
	return out, nil
}

type memQueue struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*queue.Entry
}

func newMemQueue() *memQueue {
	return &memQueue{entries: make(map[uuid.UUID]*queue.Entry)}
}

func (m *memQueue) Create(_ context.Context, e *queue.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.New()
	e.Status = queue.StatusWaiting
	e.CheckedInAt = time.Now()
	cp := *e
	m.entries[e.VisitID] = &cp
	return nil
}

func (m *memQueue) GetByVisit(_ context.Context, visitID uuid.UUID) (*queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[visitID]
	if !ok {
		return nil, queue.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memQueue) ListWaiting(_ context.Context) ([]*queue.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*queue.Entry
	for _, e := range m.entries {
		if e.Status == queue.StatusWaiting {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].CheckedInAt.Before(out[j].CheckedInAt)
	})
	return out, nil
}

func (m *memQueue) SetSeverity(_ context.Context, visitID uuid.UUID, score int, level triage.SeverityLevel, priority int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[visitID]
	if !ok {
		return queue.ErrNotFound
	}
	e.Score, e.Level, e.Priority = score, level, priority
	return nil
}

func (m *memQueue) SetPlacements(_ context.Context, placements []queue.Placement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range placements {
		for _, e := range m.entries {
			if e.ID == p.EntryID {
				e.Position = p.Position
			}
		}
	}
	return nil
}

func (m *memQueue) MarkCalled(_ context.Context, visitID, doctorID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[visitID]
	if !ok || e.Status != queue.StatusWaiting {
		return queue.ErrNotFound
	}
	now := time.Now()
	e.Status = queue.StatusCalled
	e.CalledAt = &now
	e.AssignedDoctorID = &doctorID
	return nil
}

func (m *memQueue) Remove(_ context.Context, visitID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[visitID]; !ok {
		return queue.ErrNotFound
	}
	delete(m.entries, visitID)
	return nil
}

type memAlerts struct {
	alerts []*alert.Alert
}

func (m *memAlerts) Create(_ context.Context, a *alert.Alert) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	cp := *a
	m.alerts = append(m.alerts, &cp)
	return nil
}

func (m *memAlerts) GetByID(_ context.Context, id uuid.UUID) (*alert.Alert, error) {
	for _, a := range m.alerts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, alert.ErrNotFound
}

func (m *memAlerts) ListActive(_ context.Context, _ int) ([]*alert.Alert, error) {
	var out []*alert.Alert
	for _, a := range m.alerts {
		if !a.Acknowledged {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAlerts) Acknowledge(_ context.Context, id, doctorID uuid.UUID) (*alert.Alert, error) {
	for _, a := range m.alerts {
		if a.ID == id {
			if !a.Acknowledged {
				now := time.Now()
				a.Acknowledged = true
				a.AcknowledgedBy = &doctorID
				a.AcknowledgedAt = &now
			}
			return a, nil
		}
	}
	return nil, alert.ErrNotFound
}

func (m *memAlerts) ofType(t alert.Type) []*alert.Alert {
	var out []*alert.Alert
	for _, a := range m.alerts {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

type noTokens struct{}

func (noTokens) AllDeviceTokens(_ context.Context) ([]string, error) { return nil, nil }

type stubScorer struct {
	result *triage.Assessment
	err    error
}

func (s *stubScorer) Assess(_ context.Context, _ triage.Input) (*triage.Assessment, error) {
	return s.result, s.err
}

type recordingRefresher struct {
	topics []string
}

func (r *recordingRefresher) Refresh(topic string) { r.topics = append(r.topics, topic) }

type fixture struct {
	svc      *Service
	patients *memPatients
	visits   *memVisits
	results  *memResults
	qrepo    *memQueue
	alerts   *memAlerts
	rt       *recordingRefresher
	patient  *patient.Patient
}

func newFixture(t *testing.T, scorer triage.Scorer) *fixture {
	t.Helper()
	log := zerolog.Nop()
	patients := &memPatients{byID: make(map[uuid.UUID]*patient.Patient)}
	visits := &memVisits{byID: make(map[uuid.UUID]*visit.Visit)}
	results := &memResults{}
	qrepo := newMemQueue()
	alertStore := &memAlerts{}
	rt := &recordingRefresher{}

	p := &patient.Patient{
		FirstName:      "Jane",
		LastName:       "Roe",
		Phone:          "555-0100",
		DateOfBirth:    time.Now().AddDate(-40, 0, 0),
		MedicalHistory: []string{"hypertension"},
	}
	patients.Create(context.Background(), p)

	pusher := push.NewClient(push.Config{}, log)
	alertSvc := alert.NewService(alertStore, noTokens{}, pusher, nil, log)
	mgr := queue.NewManager(qrepo, log)
	engine := triage.NewEngine()
	if scorer == nil {
		scorer = triage.EngineScorer(engine)
	}

	svc := NewService(patients, visits, results, scorer, engine, mgr, alertSvc, rt, log)
	return &fixture{
		svc: svc, patients: patients, visits: visits, results: results,
		qrepo: qrepo, alerts: alertStore, rt: rt, patient: p,
	}
}

func TestAssessPipeline(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	resp, err := fx.svc.Assess(ctx, &AssessRequest{
		PatientID:      fx.patient.ID,
		ChiefComplaint: "fever",
		SymptomText:    "high fever",
	})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	// Rule engine scores "high fever" at 46 moderate.
	if resp.Assessment.Score != 46 || resp.Assessment.Level != triage.LevelModerate {
		t.Errorf("assessment = %d/%s", resp.Assessment.Score, resp.Assessment.Level)
	}

	v, err := fx.visits.GetByID(ctx, resp.VisitID)
	if err != nil {
		t.Fatalf("visit not created: %v", err)
	}
	if v.TriageScore == nil || *v.TriageScore != 46 {
		t.Error("visit missing triage score")
	}

	if resp.QueueEntry.Position != 1 {
		t.Errorf("position = %d, want 1", resp.QueueEntry.Position)
	}
	if resp.QueueEntry.EstimatedWaitMin != 15 {
		t.Errorf("wait = %d, want 15 (moderate base)", resp.QueueEntry.EstimatedWaitMin)
	}
	if resp.QueueEntry.PatientName != "Jane Roe" {
		t.Errorf("patient name = %q", resp.QueueEntry.PatientName)
	}

	if _, err := fx.svc.Result(ctx, resp.VisitID); err != nil {
		t.Errorf("result not persisted: %v", err)
	}
	if len(fx.rt.topics) == 0 || fx.rt.topics[len(fx.rt.topics)-1] != "queue" {
		t.Errorf("queue topic not refreshed: %v", fx.rt.topics)
	}
	if len(fx.alerts.alerts) != 0 {
		t.Errorf("moderate intake raised %d alerts, want none", len(fx.alerts.alerts))
	}
}

func TestAssessCriticalRaisesAlerts(t *testing.T) {
	fx := newFixture(t, nil)

	// Critical by score, not keyword override, so vital abnormalities
	// survive into the assessment.
	resp, err := fx.svc.Assess(context.Background(), &AssessRequest{
		PatientID:   fx.patient.ID,
		SymptomText: "patient had a stroke",
		Vitals:      triage.Vitals{Temperature: f(40.0), OxygenSaturation: f(85)},
	})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if resp.Assessment.Level != triage.LevelCritical {
		t.Fatalf("level = %s, want critical", resp.Assessment.Level)
	}

	if got := fx.alerts.ofType(alert.TypeNewCritical); len(got) != 1 {
		t.Errorf("new_critical alerts = %d, want 1", len(got))
	}
	if got := fx.alerts.ofType(alert.TypeVitalDeterioration); len(got) != 1 {
		t.Errorf("vital_deterioration alerts = %d, want 1", len(got))
	}
}

func TestAssessAbnormalVitalAlwaysAlerts(t *testing.T) {
	fx := newFixture(t, nil)

	// A mildly elevated temperature is only a moderate-tier abnormality,
	// and the visit itself is not critical. The vital alert must fire
	// anyway: any abnormality list is reportable, not just the critical
	// tier.
	resp, err := fx.svc.Assess(context.Background(), &AssessRequest{
		PatientID:   fx.patient.ID,
		SymptomText: "persistent cough",
		Vitals:      triage.Vitals{Temperature: f(38.5)},
	})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	if resp.Assessment.Level == triage.LevelCritical {
		t.Fatalf("level = %s, want non-critical", resp.Assessment.Level)
	}
	if len(resp.Assessment.VitalAbnormalities) != 1 {
		t.Fatalf("abnormalities = %v, want one", resp.Assessment.VitalAbnormalities)
	}

	if got := fx.alerts.ofType(alert.TypeNewCritical); len(got) != 0 {
		t.Errorf("new_critical alerts = %d, want 0", len(got))
	}
	got := fx.alerts.ofType(alert.TypeVitalDeterioration)
	if len(got) != 1 {
		t.Fatalf("vital_deterioration alerts = %d, want 1", len(got))
	}
	if !strings.Contains(got[0].Message, "Abnormal temperature: 38.5") {
		t.Errorf("alert message = %q, want the measured abnormality", got[0].Message)
	}
}

func TestAssessScoringFailureAborts(t *testing.T) {
	scoreErr := &triage.ScoreError{Provider: "openai", Err: errors.New("upstream down")}
	fx := newFixture(t, &stubScorer{err: scoreErr})

	_, err := fx.svc.Assess(context.Background(), &AssessRequest{
		PatientID:   fx.patient.ID,
		SymptomText: "headache",
	})
	var se *triage.ScoreError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *ScoreError", err)
	}

	waiting, _ := fx.qrepo.ListWaiting(context.Background())
	if len(waiting) != 0 {
		t.Error("scoring failure must not enqueue the patient")
	}
	if len(fx.results.results) != 0 {
		t.Error("scoring failure must not persist a result")
	}
}

func TestAssessValidation(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	if _, err := fx.svc.Assess(ctx, &AssessRequest{PatientID: fx.patient.ID}); err == nil {
		t.Error("empty symptom text accepted")
	}
	if _, err := fx.svc.Assess(ctx, &AssessRequest{SymptomText: "fever"}); err == nil {
		t.Error("missing patient id accepted")
	}
	if _, err := fx.svc.Assess(ctx, &AssessRequest{
		PatientID:   uuid.New(),
		SymptomText: "fever",
	}); !errors.Is(err, patient.ErrNotFound) {
		t.Errorf("unknown patient: err = %v", err)
	}
}

func TestFollowUpWorsenedReordersAndAlerts(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	// "high fever" + temp 40 scores 55 moderate.
	resp, err := fx.svc.Assess(ctx, &AssessRequest{
		PatientID:   fx.patient.ID,
		SymptomText: "high fever",
		Vitals:      triage.Vitals{Temperature: f(40.0)},
	})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	// Worsened: 55 + 20 = 75 critical. Level change forces a requeue.
	fu, err := fx.svc.FollowUp(ctx, &FollowUpRequest{
		VisitID:         resp.VisitID,
		FollowUpNote:    "pain is much worse now",
		ConditionChange: triage.ConditionWorsened,
	})
	if err != nil {
		t.Fatalf("FollowUp: %v", err)
	}
	if fu.Reassessment.Score != 75 || fu.Reassessment.Level != triage.LevelCritical {
		t.Errorf("reassessment = %d/%s", fu.Reassessment.Score, fu.Reassessment.Level)
	}
	if !fu.QueueUpdated {
		t.Error("level change must reorder the queue")
	}

	e, err := fx.qrepo.GetByVisit(ctx, resp.VisitID)
	if err != nil {
		t.Fatalf("queue entry: %v", err)
	}
	if e.Priority != 1 || e.Score != 75 {
		t.Errorf("entry priority=%d score=%d", e.Priority, e.Score)
	}

	if got := fx.alerts.ofType(alert.TypeFollowUpWorsening); len(got) != 1 {
		t.Errorf("follow_up_worsening alerts = %d, want 1", len(got))
	}
	// Escalation into critical raises new_critical, not severity_change.
	if got := fx.alerts.ofType(alert.TypeNewCritical); len(got) != 1 {
		t.Errorf("new_critical alerts = %d, want 1", len(got))
	}
	if got := fx.alerts.ofType(alert.TypeSeverityChange); len(got) != 0 {
		t.Errorf("severity_change alerts = %d, want 0", len(got))
	}

	v, _ := fx.visits.GetByID(ctx, resp.VisitID)
	if v.FollowUpNote == nil || *v.FollowUpNote != "pain is much worse now" {
		t.Error("follow-up note not recorded on visit")
	}
}

func TestFollowUpSameSkipsRequeue(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	resp, err := fx.svc.Assess(ctx, &AssessRequest{
		PatientID:   fx.patient.ID,
		SymptomText: "high fever",
	})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}

	fu, err := fx.svc.FollowUp(ctx, &FollowUpRequest{
		VisitID:         resp.VisitID,
		FollowUpNote:    "about the same",
		ConditionChange: triage.ConditionSame,
	})
	if err != nil {
		t.Fatalf("FollowUp: %v", err)
	}
	if fu.QueueUpdated {
		t.Error("unchanged condition must not reorder the queue")
	}
	if fu.Reassessment.ScoreChange != 0 {
		t.Errorf("score change = %d, want 0", fu.Reassessment.ScoreChange)
	}
	if len(fx.alerts.alerts) != 0 {
		t.Errorf("unchanged follow-up raised %d alerts", len(fx.alerts.alerts))
	}
}

func TestFollowUpCompletedVisitRejected(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	resp, err := fx.svc.Assess(ctx, &AssessRequest{
		PatientID:   fx.patient.ID,
		SymptomText: "high fever",
	})
	if err != nil {
		t.Fatalf("Assess: %v", err)
	}
	fx.visits.MarkCompleted(ctx, resp.VisitID)

	_, err = fx.svc.FollowUp(ctx, &FollowUpRequest{
		VisitID:         resp.VisitID,
		ConditionChange: triage.ConditionWorsened,
	})
	if !errors.Is(err, visit.ErrCompleted) {
		t.Errorf("err = %v, want ErrCompleted", err)
	}
}

func TestFollowUpWithoutTriageRejected(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	v := &visit.Visit{PatientID: fx.patient.ID, SymptomText: "fever"}
	fx.visits.Create(ctx, v)

	_, err := fx.svc.FollowUp(ctx, &FollowUpRequest{
		VisitID:         v.ID,
		ConditionChange: triage.ConditionImproved,
	})
	if err == nil {
		t.Error("follow-up on never-assessed visit accepted")
	}
}

func TestFollowUpValidation(t *testing.T) {
	fx := newFixture(t, nil)

	_, err := fx.svc.FollowUp(context.Background(), &FollowUpRequest{
		VisitID:         uuid.New(),
		ConditionChange: "fluctuating",
	})
	if err == nil {
		t.Error("invalid condition_change accepted")
	}
}

func f(v float64) *float64 { return &v }
