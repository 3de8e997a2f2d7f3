package visit

import (
	"time"

	"github.com/google/uuid"

	"github.com/triage/triage/internal/domain/triage"
)

// Status of a clinical encounter. Completed is terminal: a completed visit
// never re-enters the queue.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Visit maps to the visits table: one clinical encounter from intake to
// completion. TriageScore/SeverityLevel mirror the latest triage result.
type Visit struct {
	ID               uuid.UUID            `db:"id" json:"id"`
	PatientID        uuid.UUID            `db:"patient_id" json:"patient_id"`
	ChiefComplaint   string               `db:"chief_complaint" json:"chief_complaint"`
	SymptomText      string               `db:"symptom_text" json:"symptom_text"`
	SymptomDuration  *string              `db:"symptom_duration" json:"symptom_duration,omitempty"`
	Vitals           triage.Vitals        `db:"vitals" json:"vitals"`
	Status           Status               `db:"status" json:"status"`
	TriageScore      *int                 `db:"triage_score" json:"triage_score,omitempty"`
	SeverityLevel    *triage.SeverityLevel `db:"severity_level" json:"severity_level,omitempty"`
	AssignedDoctorID *uuid.UUID           `db:"assigned_doctor_id" json:"assigned_doctor_id,omitempty"`
	FollowUpNote     *string              `db:"follow_up_note" json:"follow_up_note,omitempty"`
	ConditionChange  *string              `db:"condition_change" json:"condition_change,omitempty"`
	CreatedAt        time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time            `db:"updated_at" json:"updated_at"`
	CompletedAt      *time.Time           `db:"completed_at" json:"completed_at,omitempty"`
}
