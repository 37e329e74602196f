package onboarding

import (
	"context"
	"testing"

	"github.com/agridesk/agridesk/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWorkflow(t *testing.T) (*Service, *StartResult) {
	t.Helper()

	service, p, root := newTestService(t)
	tenant := seedTenant(t, p, models.PlanStarter, models.TenantTypeStandard)
	seedTemplates(t, root, universalTemplates()...)

	result, err := service.StartOrResume(context.Background(), tenant.ID, false)
	require.NoError(t, err)

	return service, result
}

func TestUpdateStep_MergesDataWithoutReplacing(t *testing.T) {
	service, result := startWorkflow(t)
	step := result.Steps[0]

	_, err := service.UpdateStep(context.Background(), step.ID, UpdateStepRequest{
		Data: map[string]any{"farm_name": "Green Valley"},
	})
	require.NoError(t, err)

	updated, err := service.UpdateStep(context.Background(), step.ID, UpdateStepRequest{
		Data: map[string]any{"region": "north"},
	})
	require.NoError(t, err)

	// Both patches and the template default survive.
	assert.Equal(t, "Green Valley", updated.StepData["farm_name"])
	assert.Equal(t, "north", updated.StepData["region"])
	assert.Equal(t, "fill in your farm details", updated.StepData["hint"])
	assert.NotEmpty(t, updated.StepData["last_updated"])
}

func TestUpdateStep_NilDataStillStampsTimestamp(t *testing.T) {
	service, result := startWorkflow(t)

	inProgress := models.StepStatusInProgress
	updated, err := service.UpdateStep(context.Background(), result.Steps[1].ID, UpdateStepRequest{
		Status: &inProgress,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StepStatusInProgress, updated.StepStatus)
	assert.NotEmpty(t, updated.StepData["last_updated"])
}

func TestUpdateStep_CompletionStampsAndReopeningClears(t *testing.T) {
	service, result := startWorkflow(t)
	step := result.Steps[0]

	completed := models.StepStatusCompleted
	updated, err := service.UpdateStep(context.Background(), step.ID, UpdateStepRequest{Status: &completed})
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)

	inProgress := models.StepStatusInProgress
	reopened, err := service.UpdateStep(context.Background(), step.ID, UpdateStepRequest{Status: &inProgress})
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)
}

func TestUpdateStep_AdvancesCurrentStep(t *testing.T) {
	service, result := startWorkflow(t)

	completed := models.StepStatusCompleted
	_, err := service.UpdateStep(context.Background(), result.Steps[0].ID, UpdateStepRequest{Status: &completed})
	require.NoError(t, err)

	workflow, _, err := service.GetWorkflow(context.Background(), result.Workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, workflow.CurrentStep)
}

func TestUpdateStep_NonLinearProgressAllowed(t *testing.T) {
	service, result := startWorkflow(t)

	// Two steps in progress at once is fine; onboarding is not a strict
	// sequence.
	inProgress := models.StepStatusInProgress
	for _, step := range result.Steps[:2] {
		_, err := service.UpdateStep(context.Background(), step.ID, UpdateStepRequest{Status: &inProgress})
		require.NoError(t, err)
	}

	// Completing a later step before an earlier one is also fine.
	completed := models.StepStatusCompleted
	_, err := service.UpdateStep(context.Background(), result.Steps[2].ID, UpdateStepRequest{Status: &completed})
	require.NoError(t, err)

	workflow, _, err := service.GetWorkflow(context.Background(), result.Workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, workflow.CurrentStep, "current step stays on the lowest open step")
}

func TestUpdateStep_InvalidStatusRejected(t *testing.T) {
	service, result := startWorkflow(t)

	bogus := models.StepStatus("paused")
	_, err := service.UpdateStep(context.Background(), result.Steps[0].ID, UpdateStepRequest{Status: &bogus})

	assert.ErrorIs(t, err, ErrInvalidStepStatus)
}

func TestUpdateStep_UnknownStep(t *testing.T) {
	service, _ := startWorkflow(t)

	_, err := service.UpdateStep(context.Background(), "no-such-step", UpdateStepRequest{})

	assert.ErrorIs(t, err, ErrStepNotFound)
}

func TestUpdateStep_CompletedWorkflowRejected(t *testing.T) {
	service, result := startWorkflow(t)

	completed := models.StepStatusCompleted
	for _, step := range result.Steps[:2] {
		_, err := service.UpdateStep(context.Background(), step.ID, UpdateStepRequest{Status: &completed})
		require.NoError(t, err)
	}

	_, err := service.Complete(context.Background(), result.Workflow.ID)
	require.NoError(t, err)

	_, err = service.UpdateStep(context.Background(), result.Steps[2].ID, UpdateStepRequest{Status: &completed})
	assert.ErrorIs(t, err, ErrWorkflowCompleted)
}

func schemaTemplates() []*models.StepTemplate {
	return []*models.StepTemplate{
		{
			ID: "tpl-1", StepNumber: 1, StepName: "farm_profile", IsRequired: true,
			ValidationSchema: map[string]any{
				"type":     "object",
				"required": []any{"farm_name"},
				"properties": map[string]any{
					"farm_name": map[string]any{"type": "string", "minLength": 2},
				},
			},
		},
	}
}

func TestUpdateStep_SchemaRejectionLeavesStepFailed(t *testing.T) {
	service, p, root := newTestService(t)
	tenant := seedTenant(t, p, models.PlanStarter, models.TenantTypeStandard)
	seedTemplates(t, root, schemaTemplates()...)

	result, err := service.StartOrResume(context.Background(), tenant.ID, false)
	require.NoError(t, err)

	completed := models.StepStatusCompleted
	_, err = service.UpdateStep(context.Background(), result.Steps[0].ID, UpdateStepRequest{Status: &completed})

	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	// The rejection is persisted: the step is failed with violations.
	_, steps, err := service.GetWorkflow(context.Background(), result.Workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusFailed, steps[0].StepStatus)
	assert.NotEmpty(t, steps[0].ValidationErrors)
	assert.Nil(t, steps[0].CompletedAt)
}

func TestUpdateStep_RetryClearsValidationErrors(t *testing.T) {
	service, p, root := newTestService(t)
	tenant := seedTenant(t, p, models.PlanStarter, models.TenantTypeStandard)
	seedTemplates(t, root, schemaTemplates()...)

	result, err := service.StartOrResume(context.Background(), tenant.ID, false)
	require.NoError(t, err)

	stepID := result.Steps[0].ID
	completed := models.StepStatusCompleted

	_, err = service.UpdateStep(context.Background(), stepID, UpdateStepRequest{Status: &completed})
	require.Error(t, err)

	pending := models.StepStatusPending
	retried, err := service.UpdateStep(context.Background(), stepID, UpdateStepRequest{Status: &pending})
	require.NoError(t, err)
	assert.Empty(t, retried.ValidationErrors)

	// With valid data the completion now passes.
	done, err := service.UpdateStep(context.Background(), stepID, UpdateStepRequest{
		Status: &completed,
		Data:   map[string]any{"farm_name": "Green Valley"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusCompleted, done.StepStatus)
	assert.NotNil(t, done.CompletedAt)
}
