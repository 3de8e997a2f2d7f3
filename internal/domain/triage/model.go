package triage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SeverityLevel is the coarse urgency bucket derived from a numeric score.
type SeverityLevel string

const (
	LevelNormal   SeverityLevel = "normal"
	LevelModerate SeverityLevel = "moderate"
	LevelCritical SeverityLevel = "critical"
)

// Score thresholds. A score of ModerateMin is moderate, CriticalMin is
// critical; the boundaries are exact.
const (
	ModerateMin = 40
	CriticalMin = 70
)

// ClassifyScore maps a 0-100 severity score onto a severity level.
func ClassifyScore(score int) SeverityLevel {
	switch {
	case score >= CriticalMin:
		return LevelCritical
	case score >= ModerateMin:
		return LevelModerate
	default:
		return LevelNormal
	}
}

// PriorityForLevel is the single source of truth for queue priority.
// Scorers may report their own priority; it is always discarded in favour
// of this mapping so level and priority can never disagree.
func PriorityForLevel(level SeverityLevel) int {
	switch level {
	case LevelCritical:
		return 1
	case LevelModerate:
		return 2
	default:
		return 3
	}
}

// RecommendationForLevel returns the standard clinician-facing
// recommendation text for a severity level.
func RecommendationForLevel(level SeverityLevel) string {
	switch level {
	case LevelCritical:
		return "Immediate medical attention required. Priority patient."
	case LevelModerate:
		return "Medical evaluation needed soon. Moderate priority."
	default:
		return "Standard consultation. Can wait for available slot."
	}
}

// Vitals is one set of vital sign measurements. All fields are optional;
// absent vitals contribute nothing to the severity score.
type Vitals struct {
	Temperature            *float64 `json:"temperature,omitempty"`
	HeartRate              *float64 `json:"heart_rate,omitempty"`
	BloodPressureSystolic  *float64 `json:"blood_pressure_systolic,omitempty"`
	BloodPressureDiastolic *float64 `json:"blood_pressure_diastolic,omitempty"`
	RespiratoryRate        *float64 `json:"respiratory_rate,omitempty"`
	OxygenSaturation       *float64 `json:"oxygen_saturation,omitempty"`
}

// Values returns the vitals that were actually measured, keyed by the
// canonical vital name used in the threshold table.
func (v Vitals) Values() map[string]float64 {
	out := make(map[string]float64)
	if v.Temperature != nil {
		out["temperature"] = *v.Temperature
	}
	if v.HeartRate != nil {
		out["heart_rate"] = *v.HeartRate
	}
	if v.BloodPressureSystolic != nil {
		out["blood_pressure_systolic"] = *v.BloodPressureSystolic
	}
	if v.BloodPressureDiastolic != nil {
		out["blood_pressure_diastolic"] = *v.BloodPressureDiastolic
	}
	if v.RespiratoryRate != nil {
		out["respiratory_rate"] = *v.RespiratoryRate
	}
	if v.OxygenSaturation != nil {
		out["oxygen_saturation"] = *v.OxygenSaturation
	}
	return out
}

// Input is everything a scorer may consider for one assessment.
type Input struct {
	SymptomText   string   `json:"symptom_text"`
	Duration      string   `json:"duration,omitempty"`
	Vitals        Vitals   `json:"vitals"`
	Age           int      `json:"age,omitempty"`
	PainLevel     int      `json:"pain_level,omitempty"`
	Comorbidities []string `json:"comorbidities,omitempty"`
}

// ConditionChange values accepted on follow-up assessments.
const (
	ConditionWorsened = "worsened"
	ConditionImproved = "improved"
	ConditionSame     = "same"
)

// Assessment is the outcome of scoring one Input.
type Assessment struct {
	Score              int           `json:"severity_score"`
	Level              SeverityLevel `json:"severity_level"`
	Priority           int           `json:"priority"`
	Symptoms           []string      `json:"symptoms_detected"`
	EmergencyFlags     []string      `json:"emergency_flags"`
	VitalAbnormalities []string      `json:"vital_abnormalities"`
	Reasoning          string        `json:"reasoning"`
	RuleOverride       bool          `json:"rule_based_override"`
	Recommendation     string        `json:"recommendation"`
}

// Reassessment is the outcome of re-scoring a visit on follow-up.
type Reassessment struct {
	Score          int           `json:"severity_score"`
	Level          SeverityLevel `json:"severity_level"`
	Priority       int           `json:"priority"`
	Symptoms       []string      `json:"symptoms_detected"`
	EmergencyFlags []string      `json:"emergency_flags"`
	Reasoning      string        `json:"reasoning"`
	ScoreChange    int           `json:"score_change"`
}

// Result is one persisted triage assessment snapshot. A visit accumulates
// a Result per assessment; the latest is authoritative.
type Result struct {
	ID                 uuid.UUID     `db:"id" json:"id"`
	VisitID            uuid.UUID     `db:"visit_id" json:"visit_id"`
	PatientID          uuid.UUID     `db:"patient_id" json:"patient_id"`
	Score              int           `db:"score" json:"severity_score"`
	Level              SeverityLevel `db:"level" json:"severity_level"`
	Priority           int           `db:"priority" json:"priority"`
	Symptoms           []string      `db:"symptoms" json:"symptoms_detected"`
	EmergencyFlags     []string      `db:"emergency_flags" json:"emergency_flags"`
	VitalAbnormalities []string      `db:"vital_abnormalities" json:"vital_abnormalities"`
	Reasoning          string        `db:"reasoning" json:"reasoning"`
	RuleOverride       bool          `db:"rule_override" json:"rule_based_override"`
	Recommendation     string        `db:"recommendation" json:"recommendation"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
}

// ScoreError reports an upstream scoring failure (timeout, transport error,
// malformed or out-of-schema response). It is never converted into a
// guessed assessment.
type ScoreError struct {
	Provider string
	Err      error
}

func (e *ScoreError) Error() string {
	return fmt.Sprintf("remote scoring via %s failed: %v", e.Provider, e.Err)
}

func (e *ScoreError) Unwrap() error { return e.Err }
