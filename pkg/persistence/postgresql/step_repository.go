package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agridesk/agridesk/pkg/models"
	"github.com/agridesk/agridesk/pkg/persistence"
	"github.com/google/uuid"
)

// StepRepository handles onboarding step database operations.
type StepRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepRepository creates a new step repository.
func NewStepRepository(db *sql.DB, logger *slog.Logger) *StepRepository {
	return &StepRepository{db: db, logger: logger}
}

const stepColumns = `
	id
  , workflow_id
  , step_number
  , step_name
  , step_status
  , step_data
  , validation_errors
  , completed_at
`

func (r *StepRepository) GetByID(ctx context.Context, id string) (*models.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM onboarding_steps WHERE id = $1`

	step, err := scanStep(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return step, nil
}

func (r *StepRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM onboarding_steps WHERE workflow_id = $1 ORDER BY step_number`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.Step, 0)

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}

		steps = append(steps, step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

func (r *StepRepository) CountByWorkflow(ctx context.Context, workflowID string) (int, error) {
	var count int

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM onboarding_steps WHERE workflow_id = $1`, workflowID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count steps: %w", err)
	}

	return count, nil
}

// ReplaceForWorkflow deletes the workflow's steps and bulk-inserts the given
// set in one transaction, returning how many rows were actually inserted.
// Callers use that count, not len(steps), as the workflow's total_steps.
func (r *StepRepository) ReplaceForWorkflow(ctx context.Context, workflowID string, steps []*models.Step) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `DELETE FROM onboarding_steps WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete existing steps: %w", err)
	}

	inserted := 0

	for _, step := range steps {
		if step.ID == "" {
			var id uuid.UUID

			id, err = uuid.NewV7()
			if err != nil {
				return 0, fmt.Errorf("failed to generate step ID: %w", err)
			}

			step.ID = id.String()
		}

		step.WorkflowID = workflowID

		var stepDataJSON, validationJSON []byte

		stepDataJSON, err = json.Marshal(step.StepData)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal step data: %w", err)
		}

		validationJSON, err = json.Marshal(step.ValidationErrors)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal validation errors: %w", err)
		}

		var result sql.Result

		result, err = tx.ExecContext(ctx, `
			INSERT INTO onboarding_steps (id, workflow_id, step_number, step_name, step_status, step_data, validation_errors, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			step.ID,
			step.WorkflowID,
			step.StepNumber,
			step.StepName,
			step.StepStatus,
			stepDataJSON,
			validationJSON,
			step.CompletedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert step %d: %w", step.StepNumber, err)
		}

		var affected int64

		affected, err = result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}

		inserted += int(affected)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return inserted, nil
}

func (r *StepRepository) Update(ctx context.Context, step *models.Step) error {
	stepDataJSON, err := json.Marshal(step.StepData)
	if err != nil {
		return fmt.Errorf("failed to marshal step data: %w", err)
	}

	validationJSON, err := json.Marshal(step.ValidationErrors)
	if err != nil {
		return fmt.Errorf("failed to marshal validation errors: %w", err)
	}

	query := `
		UPDATE onboarding_steps
		SET step_status = $2, step_data = $3, validation_errors = $4, completed_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		step.ID,
		step.StepStatus,
		stepDataJSON,
		validationJSON,
		step.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update step: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return &persistence.StepError{Op: "Update", WorkflowID: step.WorkflowID, StepID: step.ID, Err: persistence.ErrStepNotFound}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStep(row rowScanner) (*models.Step, error) {
	var (
		step           models.Step
		stepDataJSON   []byte
		validationJSON []byte
	)

	err := row.Scan(
		&step.ID,
		&step.WorkflowID,
		&step.StepNumber,
		&step.StepName,
		&step.StepStatus,
		&stepDataJSON,
		&validationJSON,
		&step.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan step: %w", err)
	}

	if len(stepDataJSON) > 0 {
		err = json.Unmarshal(stepDataJSON, &step.StepData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step data: %w", err)
		}
	}

	if len(validationJSON) > 0 {
		err = json.Unmarshal(validationJSON, &step.ValidationErrors)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal validation errors: %w", err)
		}
	}

	return &step, nil
}
