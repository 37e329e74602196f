// Package web provides the HTTP handlers for tenant provisioning and
// onboarding.
package web

import "github.com/agridesk/agridesk/pkg/models"

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ProvisionTenantRequest is the body of POST /tenants/provision. The
// requester's identity and role arrive in headers, not the body. Status
// defaults to trial and limits default from the subscription plan; supplied
// limit fields override the plan defaults individually.
type ProvisionTenantRequest struct {
	Name             string                 `json:"name"              validate:"required,min=2"`
	Slug             string                 `json:"slug"              validate:"required"`
	Type             string                 `json:"type,omitempty"`
	Status           string                 `json:"status,omitempty"`
	SubscriptionPlan string                 `json:"subscription_plan,omitempty"`
	OwnerEmail       string                 `json:"owner_email"       validate:"required,email"`
	OwnerName        string                 `json:"owner_name"        validate:"required"`
	OwnerPhone       string                 `json:"owner_phone,omitempty"`
	Limits           *models.CapacityLimits `json:"limits,omitempty"`
	Metadata         map[string]any         `json:"metadata,omitempty"`
}

// StartOnboardingRequest is the body of POST /onboarding/start. ForceNew
// abandons any open workflow and starts onboarding over.
type StartOnboardingRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	ForceNew bool   `json:"force_new,omitempty"`
}

// UpdateStepRequest is the body of PATCH /onboarding/steps/:id. Both fields
// are optional; data is merged into the step's existing data.
type UpdateStepRequest struct {
	Status *string        `json:"status,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// WorkflowResponse bundles a workflow with its steps.
type WorkflowResponse struct {
	Workflow *models.Workflow `json:"workflow"`
	Steps    []*models.Step   `json:"steps"`
	Resumed  bool             `json:"resumed,omitempty"`
}
