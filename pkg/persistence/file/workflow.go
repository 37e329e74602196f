package file

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/agridesk/agridesk/pkg/models"
	"github.com/agridesk/agridesk/pkg/persistence"
	"github.com/google/uuid"
)

// WorkflowRepository handles onboarding workflow file operations.
type WorkflowRepository struct {
	root string
	mu   *sync.Mutex
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string, mu *sync.Mutex) *WorkflowRepository {
	return &WorkflowRepository{root: root, mu: mu}
}

func (wr *WorkflowRepository) dir() string {
	return path.Join(wr.root, "workflows")
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	found, err := readEntity(wr.dir(), id, &workflow)
	if err != nil || !found {
		return nil, err
	}

	return &workflow, nil
}

// FindActiveByTenant returns the tenant's non-completed workflow, or
// (nil, nil) when none exists.
func (wr *WorkflowRepository) FindActiveByTenant(ctx context.Context, tenantID string) (*models.Workflow, error) {
	ids, err := listIDs(wr.dir())
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		workflow, err := wr.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if workflow != nil && workflow.TenantID == tenantID && workflow.Active() {
			return workflow, nil
		}
	}

	return nil, nil
}

// ListStale returns non-completed workflows started before the cutoff.
func (wr *WorkflowRepository) ListStale(ctx context.Context, startedBefore time.Time) ([]*models.Workflow, error) {
	ids, err := listIDs(wr.dir())
	if err != nil {
		return nil, err
	}

	stale := make([]*models.Workflow, 0)

	for _, id := range ids {
		workflow, err := wr.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if workflow != nil && workflow.Active() && workflow.StartedAt.Before(startedBefore) {
			stale = append(stale, workflow)
		}
	}

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].StartedAt.Before(stale[j].StartedAt)
	})

	return stale, nil
}

// Save saves a workflow, enforcing the one-active-workflow-per-tenant rule
// the way the database partial unique index does.
func (wr *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	if workflow.Active() {
		existing, err := wr.FindActiveByTenant(ctx, workflow.TenantID)
		if err != nil {
			return fmt.Errorf("failed to check active workflow uniqueness: %w", err)
		}

		if existing != nil && existing.ID != workflow.ID {
			return persistence.NewWorkflowError("Save", workflow.ID, persistence.ErrActiveWorkflowExists)
		}
	}

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

	return writeEntity(wr.dir(), workflow.ID, workflow)
}

// Delete removes a workflow and its steps.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	err := removeEntity(wr.dir(), id)
	if err != nil {
		return err
	}

	// Steps cascade the way the database foreign key does.
	stepDir := path.Join(wr.root, "steps")

	stepIDs, err := listIDs(stepDir)
	if err != nil {
		return err
	}

	for _, stepID := range stepIDs {
		var step models.Step

		found, err := readEntity(stepDir, stepID, &step)
		if err != nil {
			return err
		}

		if found && step.WorkflowID == id {
			err = removeEntity(stepDir, stepID)
			if err != nil {
				return err
			}
		}
	}

	return nil
}
