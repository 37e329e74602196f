package provision

import (
	"context"
	"log/slog"
	"time"

	"github.com/agridesk/agridesk/pkg/eventbus"
	"github.com/agridesk/agridesk/pkg/events"
	"github.com/agridesk/agridesk/pkg/identity"
	"github.com/agridesk/agridesk/pkg/models"
	"github.com/agridesk/agridesk/pkg/otelhelper"
	"github.com/agridesk/agridesk/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const compensationTimeout = 30 * time.Second

// Service runs the tenant provisioning saga.
type Service struct {
	persistence persistence.Persistence
	identity    identity.Provisioner
	publisher   eventbus.EventPublisher
	validator   *validator.Validate
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewService creates a provisioning service. The publisher and tracer may
// be nil; events and spans are then skipped.
func NewService(
	p persistence.Persistence,
	provisioner identity.Provisioner,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Service {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("provision")
	}

	return &Service{
		persistence: p,
		identity:    provisioner,
		publisher:   publisher,
		validator:   validator.New(),
		tracer:      tracer,
		logger:      logger,
	}
}

// Request describes one tenant to provision.
type Request struct {
	RequesterID   string `validate:"required"`
	RequesterRole string `validate:"required"`

	Name             string `validate:"required,min=2"`
	Slug             string `validate:"required"`
	Type             models.TenantType
	Status           models.TenantStatus
	SubscriptionPlan models.SubscriptionPlan
	OwnerEmail       string `validate:"required,email"`
	OwnerName        string `validate:"required"`
	OwnerPhone       string

	// LimitOverrides replaces the plan's default capacity limits field by
	// field; zero fields keep the plan default.
	LimitOverrides models.CapacityLimits

	Metadata map[string]any
}

// Result is the outcome of a successful saga run.
type Result struct {
	Tenant       *models.Tenant       `json:"tenant"`
	Identity     *models.Identity     `json:"identity"`
	Relationship *models.Relationship `json:"relationship"`
	Message      string               `json:"message"`
}

// Provision runs the saga: tenant row, then admin identity, then the
// identity-tenant relationship. On failure, completed stages are rolled back
// in reverse order on a context detached from the request, so a cancelled
// request cannot also cancel its own cleanup.
func (s *Service) Provision(ctx context.Context, req Request) (*Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "provision.tenant",
		attribute.String(otelhelper.TenantSlugKey, req.Slug),
		attribute.String(otelhelper.RequesterIDKey, req.RequesterID),
	)
	defer span.End()

	err := s.validateRequest(req)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	// Stage 1: tenant row. The unique slug index rejects duplicates before
	// any external side effect happens.
	tenant := s.buildTenant(req)

	err = s.persistence.TenantRepository().Save(ctx, tenant)
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.SagaStageKey, StageTenant))
		s.publishFailure(ctx, tenant, StageTenant, err, nil)

		return nil, &Error{Stage: StageTenant, Code: CodeTenant, Err: err}
	}

	span.SetAttributes(attribute.String(otelhelper.TenantIDKey, tenant.ID))

	// Stage 2: admin identity on the external service.
	password, err := identity.GenerateTemporaryPassword(16)
	if err != nil {
		failures := s.compensate(ctx, tenant, nil)
		s.publishFailure(ctx, tenant, StageIdentity, err, failures)

		return nil, &Error{Stage: StageIdentity, Code: CodeIdentity, Err: err, CompensationFailures: failures}
	}

	admin, err := s.identity.EnsureIdentity(ctx, identity.EnsureRequest{
		Email:             req.OwnerEmail,
		DisplayName:       req.OwnerName,
		Phone:             req.OwnerPhone,
		TemporaryPassword: password,
	})
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.SagaStageKey, StageIdentity))

		failures := s.compensate(ctx, tenant, nil)
		s.publishFailure(ctx, tenant, StageIdentity, err, failures)

		return nil, &Error{Stage: StageIdentity, Code: CodeIdentity, Err: err, CompensationFailures: failures}
	}

	span.SetAttributes(attribute.String(otelhelper.IdentityIDKey, admin.ID))

	// Stage 3: bind the identity to the tenant as its admin. Upsert keyed
	// on (identity, tenant) keeps replays from duplicating the binding.
	relationship, err := s.persistence.RelationshipRepository().Upsert(ctx, &models.Relationship{
		IdentityID: admin.ID,
		TenantID:   tenant.ID,
		Role:       models.RoleTenantAdmin,
		Active:     true,
	})
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.SagaStageKey, StageRelationship))

		failures := s.compensate(ctx, tenant, admin)
		s.publishFailure(ctx, tenant, StageRelationship, err, failures)

		return nil, &Error{Stage: StageRelationship, Code: CodeRelationship, Err: err, CompensationFailures: failures}
	}

	s.logger.InfoContext(ctx, "Tenant provisioned",
		"tenant_id", tenant.ID,
		"slug", tenant.Slug,
		"identity_id", admin.ID,
		"requester_id", req.RequesterID,
	)

	s.publish(ctx, tenant.ID, events.TenantProvisioned{
		BaseEvent:  events.NewBaseEvent(events.TenantProvisionedEvent, tenant.ID),
		TenantSlug: tenant.Slug,
		IdentityID: admin.ID,
		Plan:       string(tenant.SubscriptionPlan),
	})

	return &Result{
		Tenant:       tenant,
		Identity:     admin,
		Relationship: relationship,
		Message:      "tenant provisioned successfully",
	}, nil
}

func (s *Service) validateRequest(req Request) error {
	err := s.validator.Struct(req)
	if err != nil {
		return &Error{Stage: StageTenant, Code: CodeMissingFields, Err: ErrInvalidRequest}
	}

	if !models.ValidSlug(req.Slug) {
		return &Error{Stage: StageTenant, Code: CodeMissingFields, Err: ErrInvalidSlug}
	}

	if req.Status != "" && !req.Status.Valid() {
		return &Error{Stage: StageTenant, Code: CodeMissingFields, Err: ErrInvalidStatus}
	}

	if !models.CanProvision(req.RequesterRole) {
		return &Error{Stage: StageTenant, Code: CodeForbidden, Err: ErrForbidden}
	}

	return nil
}

func (s *Service) buildTenant(req Request) *models.Tenant {
	plan := req.SubscriptionPlan
	if plan == "" {
		plan = models.DefaultPlan
	}

	tenantType := req.Type
	if tenantType == "" {
		tenantType = models.TenantTypeStandard
	}

	status := req.Status
	if status == "" {
		status = models.TenantStatusTrial
	}

	return &models.Tenant{
		Name:             req.Name,
		Slug:             req.Slug,
		Type:             tenantType,
		Status:           status,
		SubscriptionPlan: plan,
		OwnerEmail:       req.OwnerEmail,
		OwnerName:        req.OwnerName,
		OwnerPhone:       req.OwnerPhone,
		Limits:           models.PlanLimits(plan).Override(req.LimitOverrides),
		Metadata:         req.Metadata,
	}
}

// compensate rolls back completed stages in reverse order. It runs on a
// detached context so a cancelled or timed-out request still gets cleaned
// up. Failures are logged and returned, never retried here.
func (s *Service) compensate(ctx context.Context, tenant *models.Tenant, admin *models.Identity) []string {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	var failures []string

	if admin != nil {
		err := s.persistence.RelationshipRepository().DeleteByTenant(detached, tenant.ID)
		if err != nil {
			s.logger.WarnContext(detached, "Compensation failed to delete relationships",
				"tenant_id", tenant.ID, "error", err)

			failures = append(failures, "relationships for tenant "+tenant.ID)
		}

		err = s.identity.DeleteIdentity(detached, admin.ID)
		if err != nil {
			s.logger.WarnContext(detached, "Compensation failed to delete identity",
				"identity_id", admin.ID, "tenant_id", tenant.ID, "error", err)

			failures = append(failures, "identity "+admin.ID)
		}
	}

	err := s.persistence.TenantRepository().Delete(detached, tenant.ID)
	if err != nil {
		s.logger.WarnContext(detached, "Compensation failed to delete tenant",
			"tenant_id", tenant.ID, "error", err)

		failures = append(failures, "tenant "+tenant.ID)
	}

	return failures
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

func (s *Service) publishFailure(ctx context.Context, tenant *models.Tenant, stage string, cause error, failures []string) {
	s.publish(ctx, tenant.Slug, events.TenantProvisioningFailed{
		BaseEvent:   events.NewBaseEvent(events.TenantProvisioningFailedEvent, tenant.ID),
		FailedStage: stage,
		Error:       cause.Error(),
		Compensated: len(failures) == 0,
	})
}
