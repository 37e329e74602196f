// Package identity integrates with the external identity service that owns
// user accounts. Tenant provisioning delegates account creation and the
// compensating deletion here.
package identity

import (
	"context"

	"github.com/agridesk/agridesk/pkg/models"
)

// EnsureRequest describes the admin account to create or reuse.
type EnsureRequest struct {
	Email       string `json:"email"        validate:"required,email"`
	DisplayName string `json:"display_name" validate:"required"`
	Phone       string `json:"phone,omitempty"`
	// TemporaryPassword is generated by the caller when the identity
	// service requires one on creation.
	TemporaryPassword string `json:"temporary_password,omitempty"`
}

// Provisioner creates and removes identities on the external service.
//
// EnsureIdentity is idempotent on email: when an account already exists the
// existing identity is returned instead of an error, so a retried
// provisioning request converges on the same identity.
type Provisioner interface {
	EnsureIdentity(ctx context.Context, req EnsureRequest) (*models.Identity, error)
	// DeleteIdentity is the compensation for EnsureIdentity. Deleting an
	// identity that no longer exists is not an error.
	DeleteIdentity(ctx context.Context, identityID string) error
}
