// Package onboarding orchestrates tenant onboarding workflows: one open
// workflow per tenant, materialized from the step template catalog, driven
// forward step by step until completion.
package onboarding

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantNotFound indicates the tenant to onboard does not exist.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrWorkflowNotFound indicates no workflow exists for the identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrStepNotFound indicates no step exists for the identifier.
	ErrStepNotFound = errors.New("step not found")

	// ErrInvalidStepStatus indicates an update named an unknown status value.
	ErrInvalidStepStatus = errors.New("invalid step status")

	// ErrStepsIncomplete indicates completion was requested while required
	// steps are still open.
	ErrStepsIncomplete = errors.New("required steps are not finished")

	// ErrWorkflowCompleted indicates an update targeted a workflow that has
	// already been completed.
	ErrWorkflowCompleted = errors.New("workflow already completed")
)

// ValidationError reports a step completion rejected by the template's
// validation schema. The step is left in failed status with the violations
// stored on it.
type ValidationError struct {
	StepID     string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("step %s failed validation: %d violation(s)", e.StepID, len(e.Violations))
}

// IsNotFound checks if an error should map to HTTP 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrStepNotFound)
}

// IsValidationError checks if an error is a schema validation rejection.
func IsValidationError(err error) bool {
	var ve *ValidationError

	return errors.As(err, &ve)
}

// IsConflictError checks if an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrStepsIncomplete) || errors.Is(err, ErrWorkflowCompleted)
}
