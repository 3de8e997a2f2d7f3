package queue

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

const entryCols = `id, visit_id, patient_id, patient_name, age, score, level, priority,
	chief_complaint, symptom_summary, vitals, emergency_flags, position, estimated_wait_min,
	status, checked_in_at, called_at, assigned_doctor_id`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var vitals, flags []byte
	err := row.Scan(&e.ID, &e.VisitID, &e.PatientID, &e.PatientName, &e.Age, &e.Score,
		&e.Level, &e.Priority, &e.ChiefComplaint, &e.SymptomSummary, &vitals, &flags,
		&e.Position, &e.EstimatedWaitMin, &e.Status, &e.CheckedInAt, &e.CalledAt,
		&e.AssignedDoctorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(vitals, &e.Vitals); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(flags, &e.EmergencyFlags); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	if e.Status == "" {
		e.Status = StatusWaiting
	}
	vitals, err := json.Marshal(e.Vitals)
	if err != nil {
		return err
	}
	flags := e.EmergencyFlags
	if flags == nil {
		flags = []string{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO queue_entries (id, visit_id, patient_id, patient_name, age, score, level,
			priority, chief_complaint, symptom_summary, vitals, emergency_flags, position,
			estimated_wait_min, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING checked_in_at`,
		e.ID, e.VisitID, e.PatientID, e.PatientName, e.Age, e.Score, e.Level, e.Priority,
		e.ChiefComplaint, e.SymptomSummary, vitals, flagsJSON, e.Position, e.EstimatedWaitMin,
		e.Status).
		Scan(&e.CheckedInAt)
}

func (r *repoPG) GetByVisit(ctx context.Context, visitID uuid.UUID) (*Entry, error) {
	return scanEntry(r.pool.QueryRow(ctx,
		`SELECT `+entryCols+` FROM queue_entries WHERE visit_id = $1`, visitID))
}

func (r *repoPG) ListWaiting(ctx context.Context) ([]*Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryCols+` FROM queue_entries
		WHERE status = 'waiting'
		ORDER BY priority ASC, checked_in_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repoPG) SetSeverity(ctx context.Context, visitID uuid.UUID, score int, level triage.SeverityLevel, priority int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_entries SET score=$2, level=$3, priority=$4 WHERE visit_id = $1`,
		visitID, score, level, priority)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) SetPlacements(ctx context.Context, placements []Placement) error {
	if len(placements) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range placements {
		batch.Queue(`UPDATE queue_entries SET position=$2 WHERE id=$1`,
			p.EntryID, p.Position)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

func (r *repoPG) MarkCalled(ctx context.Context, visitID, doctorID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE queue_entries SET status='called', called_at=NOW(), assigned_doctor_id=$2
		WHERE visit_id = $1 AND status = 'waiting'`, visitID, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Remove(ctx context.Context, visitID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM queue_entries WHERE visit_id = $1`, visitID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
