package visit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/triage/triage/internal/domain/triage"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const visitCols = `id, patient_id, chief_complaint, symptom_text, symptom_duration, vitals,
	status, triage_score, severity_level, assigned_doctor_id, follow_up_note, condition_change,
	created_at, updated_at, completed_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	var vitals []byte
	err := row.Scan(&v.ID, &v.PatientID, &v.ChiefComplaint, &v.SymptomText, &v.SymptomDuration,
		&vitals, &v.Status, &v.TriageScore, &v.SeverityLevel, &v.AssignedDoctorID,
		&v.FollowUpNote, &v.ConditionChange, &v.CreatedAt, &v.UpdatedAt, &v.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(vitals, &v.Vitals); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	if v.Status == "" {
		v.Status = StatusWaiting
	}
	vitals, err := json.Marshal(v.Vitals)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO visits (id, patient_id, chief_complaint, symptom_text, symptom_duration, vitals, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		v.ID, v.PatientID, v.ChiefComplaint, v.SymptomText, v.SymptomDuration, vitals, v.Status).
		Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return scanVisit(r.pool.QueryRow(ctx, `SELECT `+visitCols+` FROM visits WHERE id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM visits WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+visitCols+` FROM visits WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var visits []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		visits = append(visits, v)
	}
	return visits, total, rows.Err()
}

func (r *repoPG) SetTriage(ctx context.Context, id uuid.UUID, score int, level triage.SeverityLevel) error {
	return r.guardedUpdate(ctx, id, `
		UPDATE visits SET triage_score=$2, severity_level=$3, updated_at=NOW()
		WHERE id = $1 AND status <> 'completed'`, score, level)
}

func (r *repoPG) SetFollowUp(ctx context.Context, id uuid.UUID, note, conditionChange string, score int, level triage.SeverityLevel) error {
	return r.guardedUpdate(ctx, id, `
		UPDATE visits SET follow_up_note=$2, condition_change=$3, triage_score=$4,
			severity_level=$5, updated_at=NOW()
		WHERE id = $1 AND status <> 'completed'`, note, conditionChange, score, level)
}

func (r *repoPG) MarkInProgress(ctx context.Context, id, doctorID uuid.UUID) error {
	return r.guardedUpdate(ctx, id, `
		UPDATE visits SET status='in_progress', assigned_doctor_id=$2, updated_at=NOW()
		WHERE id = $1 AND status <> 'completed'`, doctorID)
}

func (r *repoPG) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return r.guardedUpdate(ctx, id, `
		UPDATE visits SET status='completed', completed_at=NOW(), updated_at=NOW()
		WHERE id = $1 AND status <> 'completed'`)
}

// guardedUpdate runs an update that excludes completed visits, then
// distinguishes "missing" from "already completed" for the error surface.
func (r *repoPG) guardedUpdate(ctx context.Context, id uuid.UUID, sql string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, sql, append([]interface{}{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status Status
	err = r.pool.QueryRow(ctx, `SELECT status FROM visits WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status == StatusCompleted {
		return ErrCompleted
	}
	return ErrNotFound
}
