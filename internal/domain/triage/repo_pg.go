package triage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type resultRepoPG struct{ pool *pgxpool.Pool }

func NewResultRepoPG(pool *pgxpool.Pool) ResultRepository {
	return &resultRepoPG{pool: pool}
}

const resultCols = `id, visit_id, patient_id, score, level, priority, symptoms,
	emergency_flags, vital_abnormalities, reasoning, rule_override, recommendation, created_at`

func scanResult(row pgx.Row) (*Result, error) {
	var r Result
	var symptoms, flags, abnormalities []byte
	err := row.Scan(&r.ID, &r.VisitID, &r.PatientID, &r.Score, &r.Level, &r.Priority,
		&symptoms, &flags, &abnormalities, &r.Reasoning, &r.RuleOverride, &r.Recommendation, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(symptoms, &r.Symptoms); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(flags, &r.EmergencyFlags); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(abnormalities, &r.VitalAbnormalities); err != nil {
		return nil, err
	}
	return &r, nil
}

func marshalList(list []string) []byte {
	if list == nil {
		list = []string{}
	}
	data, _ := json.Marshal(list)
	return data
}

func (repo *resultRepoPG) Create(ctx context.Context, r *Result) error {
	r.ID = uuid.New()
	return repo.pool.QueryRow(ctx, `
		INSERT INTO triage_results (id, visit_id, patient_id, score, level, priority,
			symptoms, emergency_flags, vital_abnormalities, reasoning, rule_override, recommendation)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at`,
		r.ID, r.VisitID, r.PatientID, r.Score, r.Level, r.Priority,
		marshalList(r.Symptoms), marshalList(r.EmergencyFlags), marshalList(r.VitalAbnormalities),
		r.Reasoning, r.RuleOverride, r.Recommendation).Scan(&r.CreatedAt)
}

func (repo *resultRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Result, error) {
	return scanResult(repo.pool.QueryRow(ctx,
		`SELECT `+resultCols+` FROM triage_results WHERE id = $1`, id))
}

func (repo *resultRepoPG) LatestByVisit(ctx context.Context, visitID uuid.UUID) (*Result, error) {
	return scanResult(repo.pool.QueryRow(ctx,
		`SELECT `+resultCols+` FROM triage_results WHERE visit_id = $1
		 ORDER BY created_at DESC LIMIT 1`, visitID))
}

func (repo *resultRepoPG) ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*Result, error) {
	rows, err := repo.pool.Query(ctx,
		`SELECT `+resultCols+` FROM triage_results WHERE visit_id = $1 ORDER BY created_at ASC`, visitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
