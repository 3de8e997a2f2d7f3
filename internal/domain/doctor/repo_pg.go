package doctor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const doctorCols = `id, first_name, last_name, specialty, email, phone, device_tokens, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var tokens []byte
	err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.Specialty, &d.Email, &d.Phone,
		&tokens, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(tokens, &d.DeviceTokens); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	tokens, err := marshalList(d.DeviceTokens)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO doctors (id, first_name, last_name, specialty, email, phone, device_tokens)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		d.ID, d.FirstName, d.LastName, d.Specialty, d.Email, d.Phone, tokens).
		Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.pool.QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context) ([]*Doctor, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+doctorCols+` FROM doctors ORDER BY last_name, first_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var doctors []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		doctors = append(doctors, d)
	}
	return doctors, rows.Err()
}

func (r *repoPG) AddDeviceToken(ctx context.Context, id uuid.UUID, token string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET device_tokens = device_tokens || to_jsonb($2::text), updated_at = NOW()
		WHERE id = $1 AND NOT device_tokens @> to_jsonb($2::text)`, id, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the token is already registered or the doctor is missing.
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (r *repoPG) AllDeviceTokens(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT jsonb_array_elements_text(device_tokens) FROM doctors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *repoPG) CreateNote(ctx context.Context, n *Note) error {
	n.ID = uuid.New()
	prescriptions, err := marshalList(n.Prescriptions)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO doctor_notes (id, visit_id, doctor_id, diagnosis, treatment_plan,
			prescriptions, follow_up_required, follow_up_date, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		n.ID, n.VisitID, n.DoctorID, n.Diagnosis, n.TreatmentPlan,
		prescriptions, n.FollowUpRequired, n.FollowUpDate, n.Notes).
		Scan(&n.CreatedAt)
}

func (r *repoPG) NotesByVisit(ctx context.Context, visitID uuid.UUID) ([]*Note, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, visit_id, doctor_id, diagnosis, treatment_plan, prescriptions,
			follow_up_required, follow_up_date, notes, created_at
		FROM doctor_notes WHERE visit_id = $1 ORDER BY created_at DESC`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		var n Note
		var prescriptions []byte
		if err := rows.Scan(&n.ID, &n.VisitID, &n.DoctorID, &n.Diagnosis, &n.TreatmentPlan,
			&prescriptions, &n.FollowUpRequired, &n.FollowUpDate, &n.Notes, &n.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(prescriptions, &n.Prescriptions); err != nil {
			return nil, err
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}

func marshalList(list []string) ([]byte, error) {
	if list == nil {
		list = []string{}
	}
	return json.Marshal(list)
}
