package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/agridesk/agridesk/pkg/idempotency"
	"github.com/agridesk/agridesk/pkg/models"
	"github.com/agridesk/agridesk/pkg/onboarding"
	"github.com/agridesk/agridesk/pkg/persistence"
	"github.com/agridesk/agridesk/pkg/provision"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Requester headers set by the API gateway after authentication.
const (
	HeaderRequesterID   = "X-Requester-ID"
	HeaderRequesterRole = "X-Requester-Role"
	HeaderIdempotency   = "Idempotency-Key"
)

type APIHandlers struct {
	provisionService  *provision.Service
	onboardingService *onboarding.Service
	idempotencyStore  idempotency.Store
	persistence       persistence.Persistence
	validator         *validator.Validate
	logger            *slog.Logger
}

func NewAPIHandlers(
	provisionService *provision.Service,
	onboardingService *onboarding.Service,
	idempotencyStore idempotency.Store,
	p persistence.Persistence,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		provisionService:  provisionService,
		onboardingService: onboardingService,
		idempotencyStore:  idempotencyStore,
		persistence:       p,
		validator:         validator,
		logger:            logger,
	}
}

// ProvisionTenant runs the provisioning saga. With an Idempotency-Key
// header, a repeated request replays the stored outcome instead of running
// the saga again.
func (h *APIHandlers) ProvisionTenant(c fiber.Ctx) error {
	requesterID := c.Get(HeaderRequesterID)
	requesterRole := c.Get(HeaderRequesterRole)

	if requesterID == "" || requesterRole == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "requester identity headers are required",
			Code:  provision.CodeMissingFields,
		})
	}

	idempotencyKey := c.Get(HeaderIdempotency)

	if idempotencyKey != "" {
		record, err := h.idempotencyStore.Get(c.Context(), idempotencyKey)
		if err != nil {
			h.logger.WarnContext(c.Context(), "Idempotency lookup failed", "error", err)
		} else if record != nil {
			c.Set("X-Idempotent-Replay", "true")

			return c.Status(record.StatusCode).Send(record.Body)
		}
	}

	var req ProvisionTenantRequest

	err := c.Bind().Body(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err = h.validator.Struct(req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: err.Error(),
			Code:  provision.CodeMissingFields,
		})
	}

	metadata := req.Metadata
	if idempotencyKey != "" {
		// The key is kept on the tenant for audit, independent of the
		// replay store.
		metadata = make(map[string]any, len(req.Metadata)+1)
		for k, v := range req.Metadata {
			metadata[k] = v
		}

		metadata["idempotency_key"] = idempotencyKey
	}

	provisionReq := provision.Request{
		RequesterID:      requesterID,
		RequesterRole:    requesterRole,
		Name:             req.Name,
		Slug:             req.Slug,
		Type:             models.TenantType(req.Type),
		Status:           models.TenantStatus(req.Status),
		SubscriptionPlan: models.SubscriptionPlan(req.SubscriptionPlan),
		OwnerEmail:       req.OwnerEmail,
		OwnerName:        req.OwnerName,
		OwnerPhone:       req.OwnerPhone,
		Metadata:         metadata,
	}

	if req.Limits != nil {
		provisionReq.LimitOverrides = *req.Limits
	}

	result, err := h.provisionService.Provision(c.Context(), provisionReq)
	if err != nil {
		return handleProvisionError(c, err)
	}

	if idempotencyKey != "" {
		body, marshalErr := json.Marshal(result)
		if marshalErr == nil {
			storeErr := h.idempotencyStore.Put(c.Context(), &idempotency.Record{
				Key:        idempotencyKey,
				StatusCode: fiber.StatusCreated,
				Body:       body,
			})
			if storeErr != nil {
				h.logger.WarnContext(c.Context(), "Failed to store idempotency record", "error", storeErr)
			}
		}
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *APIHandlers) GetTenant(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Tenant ID is required")
	}

	tenant, err := h.persistence.TenantRepository().GetByID(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	if tenant == nil {
		return notFound(c, "Tenant not found")
	}

	return c.JSON(tenant)
}

// StartOnboarding starts or resumes the tenant's onboarding workflow.
// Resuming answers 200; a fresh workflow answers 201.
func (h *APIHandlers) StartOnboarding(c fiber.Ctx) error {
	var req StartOnboardingRequest

	err := c.Bind().Body(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, "tenant_id is required")
	}

	result, err := h.onboardingService.StartOrResume(c.Context(), req.TenantID, req.ForceNew)
	if err != nil {
		return handleOnboardingError(c, err)
	}

	status := fiber.StatusCreated
	if result.Resumed {
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(WorkflowResponse{
		Workflow: result.Workflow,
		Steps:    result.Steps,
		Resumed:  result.Resumed,
	})
}

func (h *APIHandlers) GetOnboardingWorkflow(c fiber.Ctx) error {
	workflow, steps, err := h.onboardingService.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleOnboardingError(c, err)
	}

	return c.JSON(WorkflowResponse{Workflow: workflow, Steps: steps})
}

func (h *APIHandlers) GetTenantOnboarding(c fiber.Ctx) error {
	workflow, steps, err := h.onboardingService.GetActiveWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleOnboardingError(c, err)
	}

	return c.JSON(WorkflowResponse{Workflow: workflow, Steps: steps})
}

// UpdateStep applies a partial update to one onboarding step.
func (h *APIHandlers) UpdateStep(c fiber.Ctx) error {
	var req UpdateStepRequest

	err := c.Bind().Body(&req)
	if err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	update := onboarding.UpdateStepRequest{Data: req.Data}

	if req.Status != nil {
		status := models.StepStatus(*req.Status)
		update.Status = &status
	}

	step, err := h.onboardingService.UpdateStep(c.Context(), c.Params("id"), update)
	if err != nil {
		return handleOnboardingError(c, err)
	}

	return c.JSON(step)
}

// CompleteOnboarding marks the workflow completed once required steps are
// finished.
func (h *APIHandlers) CompleteOnboarding(c fiber.Ctx) error {
	workflow, err := h.onboardingService.Complete(c.Context(), c.Params("id"))
	if err != nil {
		return handleOnboardingError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	detail := "Persistence layer is healthy"

	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		status = "unhealthy"
		httpStatus = http.StatusInternalServerError
		detail = "Persistence layer is unhealthy: " + err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checks": fiber.Map{
			"persistence": detail,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
