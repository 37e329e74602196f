// Package provision implements the tenant provisioning saga: tenant row,
// admin identity on the external identity service, and the identity-tenant
// relationship, with best-effort rollback of completed stages on failure.
package provision

import (
	"errors"
	"fmt"
	"strings"
)

// Machine-readable error codes surfaced to API clients.
const (
	CodeMissingFields = "MISSING_FIELDS"
	CodeForbidden     = "FORBIDDEN"
	CodeTenant        = "TENANT_CREATION_ERROR"
	CodeIdentity      = "ADMIN_USER_CREATION_ERROR"
	CodeRelationship  = "USER_TENANT_RELATIONSHIP_ERROR"
)

// Saga stages, in execution order.
const (
	StageTenant       = "tenant"
	StageIdentity     = "identity"
	StageRelationship = "relationship"
)

var (
	// ErrInvalidRequest indicates the request failed validation.
	ErrInvalidRequest = errors.New("invalid provisioning request")

	// ErrInvalidSlug indicates the slug is not URL-safe.
	ErrInvalidSlug = errors.New("slug must be 2-63 lowercase alphanumeric characters with single hyphens")

	// ErrInvalidStatus indicates an unknown tenant status was requested.
	ErrInvalidStatus = errors.New("unknown tenant status")

	// ErrForbidden indicates the requester's role may not provision tenants.
	ErrForbidden = errors.New("requester role may not provision tenants")
)

// Error is a failed saga run. Stage names the step that failed; any stages
// completed before it have been compensated, best effort. Compensation
// failures are carried so callers can surface orphaned-resource warnings.
type Error struct {
	Stage                string
	Code                 string
	Err                  error
	CompensationFailures []string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("provisioning failed at %s stage: %v", e.Stage, e.Err)

	if len(e.CompensationFailures) > 0 {
		msg += "; compensation incomplete: " + strings.Join(e.CompensationFailures, "; ")
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrInvalidSlug) || errors.Is(err, ErrInvalidStatus)
}

// IsForbidden checks if an error should map to HTTP 403.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// ErrorCode extracts the machine code from a saga error, or empty.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ""
}
