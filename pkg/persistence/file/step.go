package file

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/agridesk/agridesk/pkg/models"
	"github.com/agridesk/agridesk/pkg/persistence"
	"github.com/google/uuid"
)

// StepRepository handles onboarding step file operations.
type StepRepository struct {
	root string
	mu   *sync.Mutex
}

// NewStepRepository creates a new step repository.
func NewStepRepository(root string, mu *sync.Mutex) *StepRepository {
	return &StepRepository{root: root, mu: mu}
}

func (sr *StepRepository) dir() string {
	return path.Join(sr.root, "steps")
}

// GetByID retrieves a step by its ID from the file system.
func (sr *StepRepository) GetByID(_ context.Context, id string) (*models.Step, error) {
	var step models.Step

	found, err := readEntity(sr.dir(), id, &step)
	if err != nil || !found {
		return nil, err
	}

	return &step, nil
}

// ListByWorkflow returns the workflow's steps ordered by step number.
func (sr *StepRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Step, error) {
	ids, err := listIDs(sr.dir())
	if err != nil {
		return nil, err
	}

	steps := make([]*models.Step, 0)

	for _, id := range ids {
		step, err := sr.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if step != nil && step.WorkflowID == workflowID {
			steps = append(steps, step)
		}
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].StepNumber < steps[j].StepNumber
	})

	return steps, nil
}

func (sr *StepRepository) CountByWorkflow(ctx context.Context, workflowID string) (int, error) {
	steps, err := sr.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return 0, err
	}

	return len(steps), nil
}

// ReplaceForWorkflow deletes the workflow's steps and writes the given set,
// returning how many were persisted. A mid-write failure removes the steps
// already written, so the workflow never keeps a partial set.
func (sr *StepRepository) ReplaceForWorkflow(ctx context.Context, workflowID string, steps []*models.Step) (int, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	existing, err := sr.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return 0, err
	}

	for _, step := range existing {
		err = removeEntity(sr.dir(), step.ID)
		if err != nil {
			return 0, err
		}
	}

	written := make([]string, 0, len(steps))

	for _, step := range steps {
		if step.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				sr.discard(written)

				return 0, fmt.Errorf("failed to generate step ID: %w", err)
			}

			step.ID = id.String()
		}

		step.WorkflowID = workflowID

		err = writeEntity(sr.dir(), step.ID, step)
		if err != nil {
			sr.discard(written)

			return 0, err
		}

		written = append(written, step.ID)
	}

	return len(written), nil
}

// discard best-effort removes the given step files.
func (sr *StepRepository) discard(ids []string) {
	for _, id := range ids {
		_ = removeEntity(sr.dir(), id)
	}
}

// Update persists changes to an existing step.
func (sr *StepRepository) Update(ctx context.Context, step *models.Step) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	existing, err := sr.GetByID(ctx, step.ID)
	if err != nil {
		return err
	}

	if existing == nil {
		return &persistence.StepError{Op: "Update", WorkflowID: step.WorkflowID, StepID: step.ID, Err: persistence.ErrStepNotFound}
	}

	return writeEntity(sr.dir(), step.ID, step)
}
