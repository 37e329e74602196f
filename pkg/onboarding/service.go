package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agridesk/agridesk/pkg/eventbus"
	"github.com/agridesk/agridesk/pkg/events"
	"github.com/agridesk/agridesk/pkg/models"
	"github.com/agridesk/agridesk/pkg/otelhelper"
	"github.com/agridesk/agridesk/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Service orchestrates onboarding workflows.
type Service struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewService creates an onboarding service. The publisher and tracer may be
// nil; events and spans are then skipped.
func NewService(p persistence.Persistence, publisher eventbus.EventPublisher, tracer trace.Tracer, logger *slog.Logger) *Service {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("onboarding")
	}

	return &Service{
		persistence: p,
		publisher:   publisher,
		tracer:      tracer,
		logger:      logger,
	}
}

// StartResult is the outcome of StartOrResume.
type StartResult struct {
	Workflow *models.Workflow `json:"workflow"`
	Steps    []*models.Step   `json:"steps"`
	Resumed  bool             `json:"resumed"`
}

// StartOrResume returns the tenant's open onboarding workflow, creating one
// when none exists. forceNew abandons any open workflow and starts over.
//
// A resumed workflow keeps its steps untouched; a resumed workflow that
// somehow has zero steps gets them re-materialized under its existing ID.
// When two callers race to create, the loser hits the one-active-workflow
// constraint and falls back to resuming the winner's workflow.
func (s *Service) StartOrResume(ctx context.Context, tenantID string, forceNew bool) (*StartResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "onboarding.start_or_resume",
		attribute.String(otelhelper.TenantIDKey, tenantID),
	)
	defer span.End()

	tenant, err := s.persistence.TenantRepository().GetByID(ctx, tenantID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	if tenant == nil {
		return nil, ErrTenantNotFound
	}

	existing, err := s.persistence.WorkflowRepository().FindActiveByTenant(ctx, tenantID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to look up active workflow: %w", err)
	}

	if existing != nil {
		if !forceNew {
			return s.resume(ctx, tenant, existing)
		}

		// The one-active-workflow constraint means the old run must go
		// before a fresh one can exist.
		err = s.persistence.WorkflowRepository().Delete(ctx, existing.ID)
		if err != nil {
			otelhelper.SetError(span, err)

			return nil, fmt.Errorf("failed to discard workflow %s: %w", existing.ID, err)
		}

		s.logger.InfoContext(ctx, "Discarded open workflow for forced restart",
			"tenant_id", tenantID, "workflow_id", existing.ID)
	}

	result, err := s.startNew(ctx, tenant)
	if err != nil {
		if persistence.IsActiveWorkflowExists(err) {
			// Lost a create/create race; the other caller's workflow is
			// the one to resume.
			return s.resumeAfterConflict(ctx, tenant)
		}

		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowIDKey, result.Workflow.ID))

	return result, nil
}

func (s *Service) startNew(ctx context.Context, tenant *models.Tenant) (*StartResult, error) {
	workflow := &models.Workflow{
		TenantID:    tenant.ID,
		CurrentStep: 1,
		Status:      models.WorkflowStatusInProgress,
		StartedAt:   time.Now().UTC(),
	}

	err := s.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, err
	}

	steps, total, err := s.materializeSteps(ctx, tenant, workflow.ID)
	if err != nil {
		// The workflow was created in this call, so it is safe to roll it
		// back; a resumed workflow is never deleted.
		deleteErr := s.persistence.WorkflowRepository().Delete(ctx, workflow.ID)
		if deleteErr != nil {
			s.logger.WarnContext(ctx, "Failed to roll back workflow after step materialization failure",
				"workflow_id", workflow.ID, "error", deleteErr)
		}

		return nil, fmt.Errorf("failed to materialize steps: %w", err)
	}

	workflow.TotalSteps = total

	err = s.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		// Same rollback as above: the workflow must not survive with a
		// step count it never recorded.
		deleteErr := s.persistence.WorkflowRepository().Delete(ctx, workflow.ID)
		if deleteErr != nil {
			s.logger.WarnContext(ctx, "Failed to roll back workflow after step count failure",
				"workflow_id", workflow.ID, "error", deleteErr)
		}

		return nil, fmt.Errorf("failed to record step count: %w", err)
	}

	s.logger.InfoContext(ctx, "Onboarding workflow started",
		"tenant_id", tenant.ID, "workflow_id", workflow.ID, "total_steps", total)

	s.publish(ctx, tenant.ID, events.WorkflowStarted{
		BaseEvent:  events.NewBaseEvent(events.WorkflowStartedEvent, tenant.ID),
		WorkflowID: workflow.ID,
		TotalSteps: total,
	})

	return &StartResult{Workflow: workflow, Steps: steps, Resumed: false}, nil
}

func (s *Service) resume(ctx context.Context, tenant *models.Tenant, workflow *models.Workflow) (*StartResult, error) {
	steps, err := s.persistence.StepRepository().ListByWorkflow(ctx, workflow.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}

	rematerialized := false

	if len(steps) == 0 {
		// A workflow without steps is unusable; rebuild them under the
		// existing workflow ID rather than abandoning the run.
		steps, workflow.TotalSteps, err = s.materializeSteps(ctx, tenant, workflow.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to re-materialize steps: %w", err)
		}

		err = s.persistence.WorkflowRepository().Save(ctx, workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to record step count: %w", err)
		}

		rematerialized = true
	}

	// The persisted step set is authoritative; a crash between writing the
	// steps and recording their count leaves total_steps stale, so resume
	// heals it.
	if !rematerialized && workflow.TotalSteps != len(steps) {
		workflow.TotalSteps = len(steps)

		err = s.persistence.WorkflowRepository().Save(ctx, workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to correct step count: %w", err)
		}
	}

	s.logger.InfoContext(ctx, "Onboarding workflow resumed",
		"tenant_id", tenant.ID,
		"workflow_id", workflow.ID,
		"current_step", workflow.CurrentStep,
		"rematerialized", rematerialized,
	)

	s.publish(ctx, tenant.ID, events.WorkflowResumed{
		BaseEvent:      events.NewBaseEvent(events.WorkflowResumedEvent, tenant.ID),
		WorkflowID:     workflow.ID,
		CurrentStep:    workflow.CurrentStep,
		Rematerialized: rematerialized,
	})

	return &StartResult{Workflow: workflow, Steps: steps, Resumed: true}, nil
}

func (s *Service) resumeAfterConflict(ctx context.Context, tenant *models.Tenant) (*StartResult, error) {
	existing, err := s.persistence.WorkflowRepository().FindActiveByTenant(ctx, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active workflow after conflict: %w", err)
	}

	if existing == nil {
		// The winner completed or deleted its workflow between the
		// conflict and this lookup. Rare enough to surface.
		return nil, fmt.Errorf("active workflow vanished after create conflict for tenant %s", tenant.ID)
	}

	return s.resume(ctx, tenant, existing)
}

// materializeSteps builds the workflow's steps from the template catalog,
// scoped to the tenant's plan and type, and returns the steps with the count
// actually persisted. The persisted count is authoritative for total_steps.
func (s *Service) materializeSteps(ctx context.Context, tenant *models.Tenant, workflowID string) ([]*models.Step, int, error) {
	templates, err := s.persistence.TemplateRepository().ListActive(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load step templates: %w", err)
	}

	applicable := models.FilterTemplates(templates, tenant.SubscriptionPlan, tenant.Type)

	steps := make([]*models.Step, 0, len(applicable))
	for i, template := range applicable {
		data := make(map[string]any, len(template.DefaultData))
		for k, v := range template.DefaultData {
			data[k] = v
		}

		// FilterTemplates sorts by step number; the first step starts out
		// in progress, the rest wait.
		status := models.StepStatusPending
		if i == 0 {
			status = models.StepStatusInProgress
		}

		steps = append(steps, &models.Step{
			WorkflowID: workflowID,
			StepNumber: template.StepNumber,
			StepName:   template.StepName,
			StepStatus: status,
			StepData:   data,
		})
	}

	total, err := s.persistence.StepRepository().ReplaceForWorkflow(ctx, workflowID, steps)
	if err != nil {
		return nil, 0, err
	}

	return steps, total, nil
}

// GetWorkflow returns a workflow with its steps.
func (s *Service) GetWorkflow(ctx context.Context, workflowID string) (*models.Workflow, []*models.Step, error) {
	workflow, err := s.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	if workflow == nil {
		return nil, nil, ErrWorkflowNotFound
	}

	steps, err := s.persistence.StepRepository().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load steps: %w", err)
	}

	return workflow, steps, nil
}

// GetActiveWorkflow returns the tenant's open workflow with its steps, or
// ErrWorkflowNotFound when onboarding has not started or already finished.
func (s *Service) GetActiveWorkflow(ctx context.Context, tenantID string) (*models.Workflow, []*models.Step, error) {
	workflow, err := s.persistence.WorkflowRepository().FindActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up active workflow: %w", err)
	}

	if workflow == nil {
		return nil, nil, ErrWorkflowNotFound
	}

	steps, err := s.persistence.StepRepository().ListByWorkflow(ctx, workflow.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load steps: %w", err)
	}

	return workflow, steps, nil
}

// Complete marks the workflow completed once every required step is
// finished. Optional steps may remain open.
func (s *Service) Complete(ctx context.Context, workflowID string) (*models.Workflow, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "onboarding.complete",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
	)
	defer span.End()

	workflow, steps, err := s.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusCompleted {
		return workflow, nil
	}

	optional, err := s.optionalStepNumbers(ctx)
	if err != nil {
		return nil, err
	}

	for _, step := range steps {
		if !step.StepStatus.Terminal() && !optional[step.StepNumber] {
			return nil, fmt.Errorf("step %d (%s): %w", step.StepNumber, step.StepName, ErrStepsIncomplete)
		}
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusCompleted
	workflow.CompletedAt = &now

	err = s.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to complete workflow: %w", err)
	}

	s.logger.InfoContext(ctx, "Onboarding workflow completed",
		"tenant_id", workflow.TenantID, "workflow_id", workflow.ID)

	s.publish(ctx, workflow.TenantID, events.WorkflowCompleted{
		BaseEvent:  events.NewBaseEvent(events.WorkflowCompletedEvent, workflow.TenantID),
		WorkflowID: workflow.ID,
		Duration:   now.Sub(workflow.StartedAt),
	})

	return workflow, nil
}

// optionalStepNumbers returns the step numbers the catalog marks optional.
// Steps whose template vanished from the catalog count as required.
func (s *Service) optionalStepNumbers(ctx context.Context) (map[int]bool, error) {
	templates, err := s.persistence.TemplateRepository().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load step templates: %w", err)
	}

	optional := make(map[int]bool)

	for _, template := range templates {
		if !template.IsRequired {
			optional[template.StepNumber] = true
		}
	}

	return optional, nil
}

func (s *Service) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	err := s.publisher.Publish(ctx, key, event)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
