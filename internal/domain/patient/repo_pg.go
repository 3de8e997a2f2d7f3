package patient

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

const patientCols = `id, first_name, last_name, email, phone, date_of_birth, gender,
	blood_type, address, emergency_contact, medical_history, allergies, medications,
	created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var history, allergies, medications []byte
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.DateOfBirth,
		&p.Gender, &p.BloodType, &p.Address, &p.EmergencyContact,
		&history, &allergies, &medications, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(history, &p.MedicalHistory); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(allergies, &p.Allergies); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(medications, &p.Medications); err != nil {
		return nil, err
	}
	return &p, nil
}

func marshalList(list []string) []byte {
	if list == nil {
		list = []string{}
	}
	data, _ := json.Marshal(list)
	return data
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, first_name, last_name, email, phone, date_of_birth, gender,
			blood_type, address, emergency_contact, medical_history, allergies, medications)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.DateOfBirth, p.Gender,
		p.BloodType, p.Address, p.EmergencyContact,
		marshalList(p.MedicalHistory), marshalList(p.Allergies), marshalList(p.Medications)).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patients SET first_name=$2, last_name=$3, email=$4, phone=$5, date_of_birth=$6,
			gender=$7, blood_type=$8, address=$9, emergency_contact=$10,
			medical_history=$11, allergies=$12, medications=$13, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.DateOfBirth,
		p.Gender, p.BloodType, p.Address, p.EmergencyContact,
		marshalList(p.MedicalHistory), marshalList(p.Allergies), marshalList(p.Medications))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+patientCols+` FROM patients ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		patients = append(patients, p)
	}
	return patients, total, rows.Err()
}
