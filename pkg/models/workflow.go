package models

import "time"

// WorkflowStatus represents the lifecycle state of an onboarding workflow.
type WorkflowStatus string

const (
	WorkflowStatusPending    WorkflowStatus = "pending"
	WorkflowStatusInProgress WorkflowStatus = "in_progress"
	WorkflowStatusCompleted  WorkflowStatus = "completed"
	WorkflowStatusFailed     WorkflowStatus = "failed"
)

// Workflow is one onboarding run for exactly one tenant. TotalSteps is
// recomputed from the Step rows actually persisted, never trusted from the
// template count alone.
type Workflow struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"     validate:"required"`
	CurrentStep int            `json:"current_step"` // 1-based
	TotalSteps  int            `json:"total_steps"`
	Status      WorkflowStatus `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Active reports whether the workflow is still open for onboarding work.
// A failed workflow is considered active so a later call can resume it.
func (w *Workflow) Active() bool {
	return w.Status != WorkflowStatusCompleted
}
