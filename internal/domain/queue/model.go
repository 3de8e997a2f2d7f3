package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/triage/triage/internal/domain/triage"
)

// Status of a queue entry. Completed entries are removed, not kept.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusCalled  Status = "called"
)

// maxSummaryLen bounds the symptom summary carried on a queue card.
const maxSummaryLen = 200

// Entry is one patient waiting to be seen. Position and EstimatedWaitMin
// are derived: they are recomputed from scratch on every queue mutation and
// persisted only as a display snapshot.
type Entry struct {
	ID               uuid.UUID            `db:"id" json:"id"`
	VisitID          uuid.UUID            `db:"visit_id" json:"visit_id"`
	PatientID        uuid.UUID            `db:"patient_id" json:"patient_id"`
	PatientName      string               `db:"patient_name" json:"patient_name"`
	Age              int                  `db:"age" json:"age"`
	Score            int                  `db:"score" json:"score"`
	Level            triage.SeverityLevel `db:"level" json:"level"`
	Priority         int                  `db:"priority" json:"priority"`
	ChiefComplaint   string               `db:"chief_complaint" json:"chief_complaint"`
	SymptomSummary   string               `db:"symptom_summary" json:"symptom_summary"`
	Vitals           triage.Vitals        `db:"vitals" json:"vitals"`
	EmergencyFlags   []string             `db:"emergency_flags" json:"emergency_flags,omitempty"`
	Position         int                  `db:"position" json:"position"`
	EstimatedWaitMin int                  `db:"estimated_wait_min" json:"estimated_wait_min"`
	Status           Status               `db:"status" json:"status"`
	CheckedInAt      time.Time            `db:"checked_in_at" json:"checked_in_at"`
	CalledAt         *time.Time           `db:"called_at" json:"called_at,omitempty"`
	AssignedDoctorID *uuid.UUID           `db:"assigned_doctor_id" json:"assigned_doctor_id,omitempty"`
}

// WaitedMinutes is the whole minutes since check-in.
func (e *Entry) WaitedMinutes(now time.Time) int {
	return int(now.Sub(e.CheckedInAt).Minutes())
}

// Summarize truncates free-form symptom text for the queue card. The bound
// is in runes so multibyte text is never cut mid-character.
func Summarize(symptomText string) string {
	if len(symptomText) <= maxSummaryLen {
		return symptomText
	}
	runes := []rune(symptomText)
	if len(runes) <= maxSummaryLen {
		return symptomText
	}
	return string(runes[:maxSummaryLen-3]) + "..."
}

// baseWaitMin is the per-level base wait estimate in minutes; each patient
// ahead adds ten more.
var baseWaitMin = map[triage.SeverityLevel]int{
	triage.LevelCritical: 0,
	triage.LevelModerate: 15,
	triage.LevelNormal:   30,
}

const perPatientAheadMin = 10

// EstimateWait computes the displayed wait for an arriving patient of the
// given level with the given number of higher-priority patients ahead.
func EstimateWait(level triage.SeverityLevel, ahead int) int {
	return baseWaitMin[level] + perPatientAheadMin*ahead
}

// AheadOf counts the waiting entries an arrival of the given level queues
// behind. Critical patients wait behind nobody; moderate patients behind
// criticals only; normal patients behind criticals and moderates. Same-level
// entries never count.
func AheadOf(level triage.SeverityLevel, waiting []*Entry) int {
	if level == triage.LevelCritical {
		return 0
	}
	ahead := 0
	for _, e := range waiting {
		switch e.Level {
		case triage.LevelCritical:
			ahead++
		case triage.LevelModerate:
			if level == triage.LevelNormal {
				ahead++
			}
		}
	}
	return ahead
}

// longWaitMin is the per-level threshold beyond which a waiting patient
// counts as waiting too long.
var longWaitMin = map[triage.SeverityLevel]int{
	triage.LevelCritical: 5,
	triage.LevelModerate: 30,
	triage.LevelNormal:   60,
}

// LongWaitThreshold returns the long-wait threshold in minutes for a level.
func LongWaitThreshold(level triage.SeverityLevel) int {
	return longWaitMin[level]
}

// LongWait flags one waiting entry past its level's threshold.
type LongWait struct {
	Entry      *Entry `json:"entry"`
	WaitedMin  int    `json:"waited_min"`
	OverdueMin int    `json:"overdue_min"`
}

// Statistics is a point-in-time summary of the waiting queue, including the
// full ordered snapshot the summary was computed from.
type Statistics struct {
	TotalWaiting   int      `json:"total_waiting"`
	CriticalCount  int      `json:"critical_count"`
	ModerateCount  int      `json:"moderate_count"`
	NormalCount    int      `json:"normal_count"`
	AverageWaitMin float64  `json:"average_wait_min"`
	LongestWaitMin int      `json:"longest_wait_min"`
	Queue          []*Entry `json:"queue"`
}
