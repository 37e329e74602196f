// Package events defines event types for tenant provisioning and onboarding
// lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the single topic every provisioning and onboarding event is
// published to.
const Topic = "agridesk.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Provisioning lifecycle events.
	TenantProvisionedEvent        EventType = "tenant.provisioned"
	TenantProvisioningFailedEvent EventType = "tenant.provisioning.failed"

	// Onboarding workflow lifecycle events.
	WorkflowStartedEvent   EventType = "workflow.started"
	WorkflowResumedEvent   EventType = "workflow.resumed"
	WorkflowCompletedEvent EventType = "workflow.completed"
	WorkflowReminderEvent  EventType = "workflow.reminder"

	// Step lifecycle events.
	StepCompletedEvent EventType = "step.completed"
	StepFailedEvent    EventType = "step.failed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type TenantProvisioned struct {
	BaseEvent

	TenantSlug string `json:"tenant_slug"`
	IdentityID string `json:"identity_id"`
	Plan       string `json:"plan"`
}

func (e TenantProvisioned) GetType() EventType {
	return TenantProvisionedEvent
}

type TenantProvisioningFailed struct {
	BaseEvent

	FailedStage string `json:"failed_stage"`
	Error       string `json:"error"`
	Compensated bool   `json:"compensated"`
}

func (e TenantProvisioningFailed) GetType() EventType {
	return TenantProvisioningFailedEvent
}

type WorkflowStarted struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
	TotalSteps int    `json:"total_steps"`
}

func (e WorkflowStarted) GetType() EventType {
	return WorkflowStartedEvent
}

type WorkflowResumed struct {
	BaseEvent

	WorkflowID     string `json:"workflow_id"`
	CurrentStep    int    `json:"current_step"`
	Rematerialized bool   `json:"rematerialized"`
}

func (e WorkflowResumed) GetType() EventType {
	return WorkflowResumedEvent
}

type WorkflowCompleted struct {
	BaseEvent

	WorkflowID string        `json:"workflow_id"`
	Duration   time.Duration `json:"duration"`
}

func (e WorkflowCompleted) GetType() EventType {
	return WorkflowCompletedEvent
}

// WorkflowReminder is emitted by the reminder scanner for workflows that
// have been open with no progress beyond the stale threshold.
type WorkflowReminder struct {
	BaseEvent

	WorkflowID  string    `json:"workflow_id"`
	CurrentStep int       `json:"current_step"`
	TotalSteps  int       `json:"total_steps"`
	StartedAt   time.Time `json:"started_at"`
}

func (e WorkflowReminder) GetType() EventType {
	return WorkflowReminderEvent
}

type StepCompleted struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
	StepID     string `json:"step_id"`
	StepNumber int    `json:"step_number"`
	StepName   string `json:"step_name"`
}

func (e StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepFailed struct {
	BaseEvent

	WorkflowID       string   `json:"workflow_id"`
	StepID           string   `json:"step_id"`
	StepNumber       int      `json:"step_number"`
	StepName         string   `json:"step_name"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
}

func (e StepFailed) GetType() EventType {
	return StepFailedEvent
}

func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
		Metadata:  make(map[string]any),
	}
}
