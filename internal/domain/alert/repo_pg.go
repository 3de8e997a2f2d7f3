package alert

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const alertCols = `id, type, severity, title, message, patient_id, visit_id, payload,
	acknowledged, acknowledged_by, acknowledged_at, created_at`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.Type, &a.Severity, &a.Title, &a.Message, &a.PatientID,
		&a.VisitID, &a.Payload, &a.Acknowledged, &a.AcknowledgedBy, &a.AcknowledgedAt,
		&a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Alert) error {
	a.ID = uuid.New()
	payload := a.Payload
	if payload == nil {
		payload = []byte("{}")
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO alerts (id, type, severity, title, message, patient_id, visit_id, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		a.ID, a.Type, a.Severity, a.Title, a.Message, a.PatientID, a.VisitID, payload).
		Scan(&a.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return scanAlert(r.pool.QueryRow(ctx, `SELECT `+alertCols+` FROM alerts WHERE id = $1`, id))
}

func (r *repoPG) ListActive(ctx context.Context, limit int) ([]*Alert, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+alertCols+` FROM alerts
		WHERE NOT acknowledged
		ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (r *repoPG) Acknowledge(ctx context.Context, id, doctorID uuid.UUID) (*Alert, error) {
	// Idempotent: only the first acknowledgement records by/at.
	_, err := r.pool.Exec(ctx, `
		UPDATE alerts SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = NOW()
		WHERE id = $1 AND NOT acknowledged`, id, doctorID)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}
