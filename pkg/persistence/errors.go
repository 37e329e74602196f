// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTenantNotFound indicates a tenant was not found by the given identifier.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrDuplicateSlug indicates a tenant with the same slug already exists.
	ErrDuplicateSlug = errors.New("tenant slug already exists")

	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrActiveWorkflowExists indicates the tenant already has a non-completed
	// workflow; the unique constraint turned a create/create race into this
	// conflict so the caller can fall back to the resume path.
	ErrActiveWorkflowExists = errors.New("active workflow already exists for tenant")

	// ErrStepNotFound indicates a step was not found by the given identifier.
	ErrStepNotFound = errors.New("step not found")

	// ErrRelationshipNotFound indicates no binding exists for the given pair.
	ErrRelationshipNotFound = errors.New("relationship not found")
)

// TenantError wraps tenant-related errors with additional context.
type TenantError struct {
	Op       string // Operation being performed (e.g., "Save", "Delete")
	TenantID string
	Err      error
}

func (e *TenantError) Error() string {
	return fmt.Sprintf("%s operation failed for tenant %s: %v", e.Op, e.TenantID, e.Err)
}

func (e *TenantError) Unwrap() error {
	return e.Err
}

func (e *TenantError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTenantError creates a new tenant error with context.
func NewTenantError(op, tenantID string, err error) *TenantError {
	return &TenantError{Op: op, TenantID: tenantID, Err: err}
}

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{Op: op, WorkflowID: workflowID, Err: err}
}

// StepError wraps step-related errors with additional context.
type StepError struct {
	Op         string
	WorkflowID string
	StepID     string
	Err        error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s operation failed for step %s in workflow %s: %v", e.Op, e.StepID, e.WorkflowID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsTenantNotFound checks if an error indicates a tenant was not found.
func IsTenantNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound)
}

// IsDuplicateSlug checks if an error indicates a slug conflict.
func IsDuplicateSlug(err error) bool {
	return errors.Is(err, ErrDuplicateSlug)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsActiveWorkflowExists checks if an error indicates the tenant already has
// an active workflow.
func IsActiveWorkflowExists(err error) bool {
	return errors.Is(err, ErrActiveWorkflowExists)
}

// IsStepNotFound checks if an error indicates a step was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}
