package file

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/agridesk/agridesk/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedWorkflow(t *testing.T, p *Persistence, tenantID string) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{
		TenantID:    tenantID,
		CurrentStep: 1,
		Status:      models.WorkflowStatusInProgress,
	}
	require.NoError(t, p.WorkflowRepository().Save(context.Background(), workflow))

	return workflow
}

func TestWorkflowRepository_DeleteCascadesSteps(t *testing.T) {
	p := NewPersistence(t.TempDir()).(*Persistence)
	workflow := seedWorkflow(t, p, "tenant-1")

	_, err := p.StepRepository().ReplaceForWorkflow(context.Background(), workflow.ID, []*models.Step{
		{StepNumber: 1, StepName: "farm_profile", StepStatus: models.StepStatusInProgress},
		{StepNumber: 2, StepName: "invite_team", StepStatus: models.StepStatusPending},
	})
	require.NoError(t, err)

	require.NoError(t, p.WorkflowRepository().Delete(context.Background(), workflow.ID))

	gone, err := p.WorkflowRepository().GetByID(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	count, err := p.StepRepository().CountByWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWorkflowRepository_ConcurrentSaveAndDelete(t *testing.T) {
	p := NewPersistence(t.TempDir()).(*Persistence)
	victim := seedWorkflow(t, p, "tenant-0")

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		assert.NoError(t, p.WorkflowRepository().Delete(context.Background(), victim.ID))
	}()

	for i := 1; i <= 4; i++ {
		wg.Add(1)

		go func(tenantID string) {
			defer wg.Done()

			workflow := &models.Workflow{
				TenantID:    tenantID,
				CurrentStep: 1,
				Status:      models.WorkflowStatusInProgress,
			}
			assert.NoError(t, p.WorkflowRepository().Save(context.Background(), workflow))
		}(fmt.Sprintf("tenant-%d", i))
	}

	wg.Wait()

	gone, err := p.WorkflowRepository().GetByID(context.Background(), victim.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	for i := 1; i <= 4; i++ {
		active, err := p.WorkflowRepository().FindActiveByTenant(context.Background(), fmt.Sprintf("tenant-%d", i))
		require.NoError(t, err)
		assert.NotNil(t, active)
	}
}

func TestStepRepository_ReplaceForWorkflow_NoPartialSetOnFailure(t *testing.T) {
	p := NewPersistence(t.TempDir()).(*Persistence)
	workflow := seedWorkflow(t, p, "tenant-1")

	_, err := p.StepRepository().ReplaceForWorkflow(context.Background(), workflow.ID, []*models.Step{
		{StepNumber: 1, StepName: "farm_profile", StepStatus: models.StepStatusInProgress},
		{StepNumber: 2, StepName: "invite_team", StepStatus: models.StepStatusPending},
	})
	require.NoError(t, err)

	// The second step's ID points into a directory that does not exist, so
	// its write fails after the first step already landed.
	count, err := p.StepRepository().ReplaceForWorkflow(context.Background(), workflow.ID, []*models.Step{
		{ID: "step-ok", StepNumber: 1, StepName: "farm_profile", StepStatus: models.StepStatusInProgress},
		{ID: "no-such-dir/step", StepNumber: 2, StepName: "invite_team", StepStatus: models.StepStatusPending},
	})
	require.Error(t, err)
	assert.Zero(t, count)

	// No partial step set survives the failed replace.
	steps, err := p.StepRepository().ListByWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)
}
