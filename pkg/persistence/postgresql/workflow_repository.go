package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agridesk/agridesk/pkg/models"
	"github.com/agridesk/agridesk/pkg/persistence"
	"github.com/google/uuid"
)

// WorkflowRepository handles onboarding workflow database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , tenant_id
  , current_step
  , total_steps
  , status
  , started_at
  , completed_at
  , metadata
`

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM onboarding_workflows WHERE id = $1`

	return r.scanWorkflow(r.db.QueryRowContext(ctx, query, id))
}

// FindActiveByTenant returns the tenant's open workflow, or (nil, nil) when
// every workflow of the tenant is completed. The partial unique index
// guarantees there is at most one such row.
func (r *WorkflowRepository) FindActiveByTenant(ctx context.Context, tenantID string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM onboarding_workflows WHERE tenant_id = $1 AND status <> 'completed'`

	return r.scanWorkflow(r.db.QueryRowContext(ctx, query, tenantID))
}

// ListStale returns non-completed workflows started before the cutoff.
func (r *WorkflowRepository) ListStale(ctx context.Context, startedBefore time.Time) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM onboarding_workflows
		WHERE status <> 'completed' AND started_at < $1
		ORDER BY started_at`

	rows, err := r.db.QueryContext(ctx, query, startedBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale workflows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		var (
			workflow     models.Workflow
			metadataJSON []byte
		)

		err := rows.Scan(
			&workflow.ID,
			&workflow.TenantID,
			&workflow.CurrentStep,
			&workflow.TotalSteps,
			&workflow.Status,
			&workflow.StartedAt,
			&workflow.CompletedAt,
			&metadataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		if len(metadataJSON) > 0 {
			err = json.Unmarshal(metadataJSON, &workflow.Metadata)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		workflows = append(workflows, &workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// Save inserts or updates a workflow. Inserting a second open workflow for
// the same tenant trips the partial unique index and is reported as
// ErrActiveWorkflowExists.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	if workflow.StartedAt.IsZero() {
		workflow.StartedAt = time.Now().UTC()
	}

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	metadataJSON, err := json.Marshal(workflow.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO onboarding_workflows (id, tenant_id, current_step, total_steps, status, started_at, completed_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			current_step = EXCLUDED.current_step,
			total_steps = EXCLUDED.total_steps,
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			metadata = EXCLUDED.metadata
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.TenantID,
		workflow.CurrentStep,
		workflow.TotalSteps,
		workflow.Status,
		workflow.StartedAt,
		workflow.CompletedAt,
		metadataJSON,
	)
	if err != nil {
		if isUniqueViolation(err, "idx_onboarding_workflows_active_tenant") {
			return persistence.NewWorkflowError("Save", workflow.ID, persistence.ErrActiveWorkflowExists)
		}

		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

// Delete removes a workflow and, via cascade, its steps. Used to roll back
// a freshly created workflow whose step materialization failed.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM onboarding_workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) scanWorkflow(row *sql.Row) (*models.Workflow, error) {
	var (
		workflow     models.Workflow
		metadataJSON []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.TenantID,
		&workflow.CurrentStep,
		&workflow.TotalSteps,
		&workflow.Status,
		&workflow.StartedAt,
		&workflow.CompletedAt,
		&metadataJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	if len(metadataJSON) > 0 {
		err = json.Unmarshal(metadataJSON, &workflow.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &workflow, nil
}
