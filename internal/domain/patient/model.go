package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patients table. Demographics and history change only
// through an explicit update.
type Patient struct {
	ID               uuid.UUID `db:"id" json:"id"`
	FirstName        string    `db:"first_name" json:"first_name"`
	LastName         string    `db:"last_name" json:"last_name"`
	Email            *string   `db:"email" json:"email,omitempty"`
	Phone            string    `db:"phone" json:"phone"`
	DateOfBirth      time.Time `db:"date_of_birth" json:"date_of_birth"`
	Gender           string    `db:"gender" json:"gender"`
	BloodType        *string   `db:"blood_type" json:"blood_type,omitempty"`
	Address          *string   `db:"address" json:"address,omitempty"`
	EmergencyContact *string   `db:"emergency_contact" json:"emergency_contact,omitempty"`
	MedicalHistory   []string  `db:"medical_history" json:"medical_history"`
	Allergies        []string  `db:"allergies" json:"allergies"`
	Medications      []string  `db:"medications" json:"current_medications"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns the display name used on queue entries and alerts.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// AgeAt returns the patient's age in whole years at the given time.
func (p *Patient) AgeAt(t time.Time) int {
	years := t.Year() - p.DateOfBirth.Year()
	anniversary := p.DateOfBirth.AddDate(years, 0, 0)
	if anniversary.After(t) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
