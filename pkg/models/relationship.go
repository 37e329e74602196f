package models

import "time"

// Role names used on identity-to-tenant relationships and on callers of
// the provisioning API.
const (
	RoleTenantAdmin  = "tenant_admin"
	RoleSuperAdmin   = "super_admin"
	RoleSupportAdmin = "support_admin"
	RoleMember       = "member"
)

// ProvisioningRoles are the only caller roles allowed to provision tenants.
var ProvisioningRoles = []string{RoleSuperAdmin, RoleSupportAdmin}

// Relationship binds one Identity to one Tenant with a role. At most one
// active relationship exists per (identity, tenant); repeated provisioning
// attempts update the row instead of duplicating it.
type Relationship struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	TenantID   string    `json:"tenant_id"`
	Role       string    `json:"role"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CanProvision reports whether the given caller role may invoke tenant
// provisioning.
func CanProvision(role string) bool {
	for _, r := range ProvisioningRoles {
		if r == role {
			return true
		}
	}

	return false
}
