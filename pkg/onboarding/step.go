package onboarding

import (
	"context"
	"fmt"
	"time"

	"github.com/agridesk/agridesk/pkg/events"
	"github.com/agridesk/agridesk/pkg/models"
	"github.com/agridesk/agridesk/pkg/otelhelper"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

// UpdateStepRequest is a partial update: a nil Status keeps the current
// status, and Data is merged into the existing data bag, not swapped in.
type UpdateStepRequest struct {
	Status *models.StepStatus
	Data   map[string]any
}

// UpdateStep applies a partial update to one step.
//
// Completing a step validates the merged data against the template's
// validation schema; a rejected completion leaves the step failed with the
// violations recorded. Moving a failed step back to pending clears the
// recorded violations, which is the retry path. Moving any step out of
// completed clears its completion timestamp.
func (s *Service) UpdateStep(ctx context.Context, stepID string, req UpdateStepRequest) (*models.Step, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "onboarding.update_step",
		attribute.String(otelhelper.StepIDKey, stepID),
	)
	defer span.End()

	step, err := s.persistence.StepRepository().GetByID(ctx, stepID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to load step: %w", err)
	}

	if step == nil {
		return nil, ErrStepNotFound
	}

	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, step.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	if workflow.Status == models.WorkflowStatusCompleted {
		return nil, ErrWorkflowCompleted
	}

	span.SetAttributes(
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.StepNameKey, step.StepName),
	)

	now := time.Now().UTC()
	step.MergeData(req.Data, now)

	if req.Status != nil {
		err = s.applyStatus(ctx, step, *req.Status, now)
		if err != nil {
			// A validation rejection is persisted so the portal can show
			// the violations; other errors are not.
			if IsValidationError(err) {
				saveErr := s.persistence.StepRepository().Update(ctx, step)
				if saveErr != nil {
					return nil, fmt.Errorf("failed to record validation failure: %w", saveErr)
				}

				s.publishStepFailed(ctx, workflow, step)
			}

			return nil, err
		}
	}

	err = s.persistence.StepRepository().Update(ctx, step)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to update step: %w", err)
	}

	err = s.advanceWorkflow(ctx, workflow)
	if err != nil {
		return nil, err
	}

	if step.StepStatus == models.StepStatusCompleted {
		s.publish(ctx, workflow.TenantID, events.StepCompleted{
			BaseEvent:  events.NewBaseEvent(events.StepCompletedEvent, workflow.TenantID),
			WorkflowID: workflow.ID,
			StepID:     step.ID,
			StepNumber: step.StepNumber,
			StepName:   step.StepName,
		})
	}

	return step, nil
}

func (s *Service) applyStatus(ctx context.Context, step *models.Step, status models.StepStatus, now time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStepStatus, status)
	}

	// failed -> pending is the retry transition; stale violations would
	// otherwise stick to the retried step.
	if step.StepStatus == models.StepStatusFailed && status == models.StepStatusPending {
		step.ValidationErrors = nil
	}

	if status == models.StepStatusCompleted {
		violations, err := s.validateStepData(ctx, step)
		if err != nil {
			return err
		}

		if len(violations) > 0 {
			step.StepStatus = models.StepStatusFailed
			step.ValidationErrors = violations
			step.CompletedAt = nil

			return &ValidationError{StepID: step.ID, Violations: violations}
		}

		step.ValidationErrors = nil
		step.CompletedAt = &now
	} else {
		step.CompletedAt = nil
	}

	step.StepStatus = status

	return nil
}

// validateStepData checks the step's merged data against the template
// schema for its step number. No template or no schema means no validation.
func (s *Service) validateStepData(ctx context.Context, step *models.Step) ([]string, error) {
	templates, err := s.persistence.TemplateRepository().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load step templates: %w", err)
	}

	var schema map[string]any

	for _, template := range templates {
		if template.StepNumber == step.StepNumber && len(template.ValidationSchema) > 0 {
			schema = template.ValidationSchema

			break
		}
	}

	if schema == nil {
		return nil, nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(step.StepData),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate validation schema: %w", err)
	}

	if result.Valid() {
		return nil, nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, violation := range result.Errors() {
		violations = append(violations, violation.String())
	}

	return violations, nil
}

// advanceWorkflow recomputes current_step as the lowest open step number.
// With every step finished it parks on the last step; completion itself is
// an explicit call, not a side effect of a step update.
func (s *Service) advanceWorkflow(ctx context.Context, workflow *models.Workflow) error {
	steps, err := s.persistence.StepRepository().ListByWorkflow(ctx, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to load steps: %w", err)
	}

	current := 0

	for _, step := range steps {
		if !step.StepStatus.Terminal() {
			current = step.StepNumber

			break
		}
	}

	if current == 0 && len(steps) > 0 {
		current = steps[len(steps)-1].StepNumber
	}

	if current == 0 {
		current = 1
	}

	if workflow.CurrentStep == current {
		return nil
	}

	workflow.CurrentStep = current

	err = s.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return fmt.Errorf("failed to advance workflow: %w", err)
	}

	return nil
}

func (s *Service) publishStepFailed(ctx context.Context, workflow *models.Workflow, step *models.Step) {
	s.publish(ctx, workflow.TenantID, events.StepFailed{
		BaseEvent:        events.NewBaseEvent(events.StepFailedEvent, workflow.TenantID),
		WorkflowID:       workflow.ID,
		StepID:           step.ID,
		StepNumber:       step.StepNumber,
		StepName:         step.StepName,
		ValidationErrors: step.ValidationErrors,
	})
}
