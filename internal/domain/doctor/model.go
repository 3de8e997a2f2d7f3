package doctor

import (
	"time"

	"github.com/google/uuid"
)

// Doctor is a clinician profile. DeviceTokens are the push targets used by
// alert fan-out; a token registered twice is stored once.
type Doctor struct {
	ID           uuid.UUID `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Specialty    string    `db:"specialty" json:"specialty"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone,omitempty"`
	DeviceTokens []string  `db:"device_tokens" json:"device_tokens,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (d *Doctor) FullName() string {
	return d.FirstName + " " + d.LastName
}

// Note is the clinical record a doctor writes when finishing a visit.
// Saving a note completes the visit.
type Note struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	VisitID          uuid.UUID  `db:"visit_id" json:"visit_id"`
	DoctorID         uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Diagnosis        string     `db:"diagnosis" json:"diagnosis"`
	TreatmentPlan    string     `db:"treatment_plan" json:"treatment_plan,omitempty"`
	Prescriptions    []string   `db:"prescriptions" json:"prescriptions,omitempty"`
	FollowUpRequired bool       `db:"follow_up_required" json:"follow_up_required"`
	FollowUpDate     *time.Time `db:"follow_up_date" json:"follow_up_date,omitempty"`
	Notes            string     `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}
