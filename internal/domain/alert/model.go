package alert

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/triage/triage/internal/domain/triage"
)

// Type discriminates alert payloads and drives the delivery policy.
type Type string

const (
	TypeSeverityChange     Type = "severity_change"
	TypeNewCritical        Type = "new_critical"
	TypeVitalDeterioration Type = "vital_deterioration"
	TypeLongWait           Type = "long_wait"
	TypeFollowUpWorsening  Type = "follow_up_worsening"
)

// Severity of the alert itself (distinct from patient severity).
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is a persisted clinician notification. Alerts are never deleted;
// acknowledgement is one-way.
type Alert struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	Type           Type            `db:"type" json:"type"`
	Severity       Severity        `db:"severity" json:"severity"`
	Title          string          `db:"title" json:"title"`
	Message        string          `db:"message" json:"message"`
	PatientID      uuid.UUID       `db:"patient_id" json:"patient_id"`
	VisitID        uuid.UUID       `db:"visit_id" json:"visit_id"`
	Payload        json.RawMessage `db:"payload" json:"payload,omitempty"`
	Acknowledged   bool            `db:"acknowledged" json:"acknowledged"`
	AcknowledgedBy *uuid.UUID      `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time      `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Payload variants, one per alert type. The alert's Type field is the tag.

type NewCriticalPayload struct {
	Score          int      `json:"score"`
	EmergencyFlags []string `json:"emergency_flags,omitempty"`
}

type SeverityChangePayload struct {
	OldLevel triage.SeverityLevel `json:"old_level"`
	NewLevel triage.SeverityLevel `json:"new_level"`
	OldScore int                  `json:"old_score"`
	NewScore int                  `json:"new_score"`
}

type VitalDeteriorationPayload struct {
	Abnormalities []string `json:"abnormalities"`
}

type LongWaitPayload struct {
	WaitedMin    int                  `json:"waited_min"`
	ThresholdMin int                  `json:"threshold_min"`
	Level        triage.SeverityLevel `json:"level"`
	Position     int                  `json:"position"`
}

type FollowUpPayload struct {
	ConditionChange string `json:"condition_change"`
	OldScore        int    `json:"old_score"`
	NewScore        int    `json:"new_score"`
}

// policy is how one alert type is presented and delivered.
type policy struct {
	Title    string
	Priority string
	Sound    string
}

var policies = map[Type]policy{
	TypeNewCritical:        {Title: "Critical Patient", Priority: "high", Sound: "critical_alert"},
	TypeSeverityChange:     {Title: "Severity Change", Priority: "high", Sound: "default"},
	TypeVitalDeterioration: {Title: "Vital Signs Alert", Priority: "high", Sound: "critical_alert"},
	TypeLongWait:           {Title: "Long Wait", Priority: "normal", Sound: "default"},
	TypeFollowUpWorsening:  {Title: "Patient Worsening", Priority: "high", Sound: "default"},
}

// ClassifySeverity derives the alert severity from its type and message:
// critical when the type mentions critical or the message mentions an
// emergency, high for high-priority types, medium otherwise.
func ClassifySeverity(t Type, message string) Severity {
	if strings.Contains(string(t), "critical") ||
		strings.Contains(strings.ToLower(message), "emergency") {
		return SeverityCritical
	}
	if policies[t].Priority == "high" {
		return SeverityHigh
	}
	return SeverityMedium
}
