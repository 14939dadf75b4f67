package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Builder-Lawyers/hub-provisioner/internal/domain/consts"
	"github.com/Builder-Lawyers/hub-provisioner/internal/infra/db"
	"github.com/google/uuid"
)

type StepRepo struct {
	tx DBTX
}

func NewStepRepo(tx DBTX) *StepRepo {
	return &StepRepo{tx: tx}
}

func (r *StepRepo) RecordStep(ctx context.Context, customerID uuid.UUID, runID string, step consts.Step, outcome consts.StepOutcome, detail string) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO control.customer_steps (customer_id, run_id, step, outcome, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`, customerID, runID, step, outcome, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("err recording step %s, %w", step, err)
	}
	return nil
}

func (r *StepRepo) ListSteps(ctx context.Context, customerID uuid.UUID) ([]db.CustomerStep, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, customer_id, run_id, step, outcome, detail, created_at
		FROM control.customer_steps WHERE customer_id = $1 ORDER BY id`, customerID)
	if err != nil {
		return nil, fmt.Errorf("err listing steps, %w", err)
	}
	defer rows.Close()

	var steps []db.CustomerStep
	for rows.Next() {
		var s db.CustomerStep
		if err = rows.Scan(&s.ID, &s.CustomerID, &s.RunID, &s.Step, &s.Outcome, &s.Detail, &s.CreatedAt); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}
