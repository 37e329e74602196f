// Package models defines the core domain models for tenant provisioning and onboarding.
package models

import (
	"regexp"
	"time"
)

// TenantStatus represents the lifecycle state of a tenant account.
type TenantStatus string

const (
	TenantStatusTrial           TenantStatus = "trial"
	TenantStatusActive          TenantStatus = "active"
	TenantStatusSuspended       TenantStatus = "suspended"
	TenantStatusCancelled       TenantStatus = "cancelled"
	TenantStatusArchived        TenantStatus = "archived"
	TenantStatusPendingApproval TenantStatus = "pending_approval"
)

// Valid reports whether s is a known tenant status.
func (s TenantStatus) Valid() bool {
	switch s {
	case TenantStatusTrial, TenantStatusActive, TenantStatusSuspended,
		TenantStatusCancelled, TenantStatusArchived, TenantStatusPendingApproval:
		return true
	}

	return false
}

// TenantType categorizes the kind of organization behind a tenant.
type TenantType string

const (
	TenantTypeStandard    TenantType = "standard"
	TenantTypeCooperative TenantType = "cooperative"
	TenantTypeDealer      TenantType = "dealer_network"
	TenantTypeEnterprise  TenantType = "enterprise"
)

// SubscriptionPlan is the commercial tier a tenant subscribes to.
type SubscriptionPlan string

const (
	PlanStarter      SubscriptionPlan = "starter"
	PlanGrowth       SubscriptionPlan = "growth"
	PlanProfessional SubscriptionPlan = "professional"
	PlanEnterprise   SubscriptionPlan = "enterprise"
)

// DefaultPlan is the lowest tier, assigned when a provisioning request
// does not name a plan.
const DefaultPlan = PlanStarter

// CapacityLimits holds the numeric quotas attached to a tenant.
type CapacityLimits struct {
	MaxFarmers        int `json:"max_farmers"`
	MaxDealers        int `json:"max_dealers"`
	MaxProducts       int `json:"max_products"`
	MaxStorageMB      int `json:"max_storage_mb"`
	MaxAPICallsPerDay int `json:"max_api_calls_per_day"`
}

// PlanLimits returns the default capacity limits for a subscription plan.
// Unknown plans get the starter limits.
func PlanLimits(plan SubscriptionPlan) CapacityLimits {
	switch plan {
	case PlanGrowth:
		return CapacityLimits{MaxFarmers: 500, MaxDealers: 25, MaxProducts: 200, MaxStorageMB: 5120, MaxAPICallsPerDay: 50000}
	case PlanProfessional:
		return CapacityLimits{MaxFarmers: 5000, MaxDealers: 100, MaxProducts: 1000, MaxStorageMB: 20480, MaxAPICallsPerDay: 250000}
	case PlanEnterprise:
		return CapacityLimits{MaxFarmers: 50000, MaxDealers: 1000, MaxProducts: 10000, MaxStorageMB: 102400, MaxAPICallsPerDay: 2000000}
	default:
		return CapacityLimits{MaxFarmers: 50, MaxDealers: 5, MaxProducts: 25, MaxStorageMB: 512, MaxAPICallsPerDay: 5000}
	}
}

// Override returns l with o's non-zero fields applied on top.
func (l CapacityLimits) Override(o CapacityLimits) CapacityLimits {
	if o.MaxFarmers > 0 {
		l.MaxFarmers = o.MaxFarmers
	}

	if o.MaxDealers > 0 {
		l.MaxDealers = o.MaxDealers
	}

	if o.MaxProducts > 0 {
		l.MaxProducts = o.MaxProducts
	}

	if o.MaxStorageMB > 0 {
		l.MaxStorageMB = o.MaxStorageMB
	}

	if o.MaxAPICallsPerDay > 0 {
		l.MaxAPICallsPerDay = o.MaxAPICallsPerDay
	}

	return l
}

// Tenant represents one organizational customer account.
type Tenant struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"              validate:"required,min=2"`
	Slug             string           `json:"slug"              validate:"required"`
	Type             TenantType       `json:"type"`
	Status           TenantStatus     `json:"status"`
	SubscriptionPlan SubscriptionPlan `json:"subscription_plan"`
	OwnerEmail       string           `json:"owner_email"       validate:"required,email"`
	OwnerName        string           `json:"owner_name"        validate:"required"`
	OwnerPhone       string           `json:"owner_phone,omitempty"`
	Limits           CapacityLimits   `json:"limits"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidSlug reports whether s is a usable URL-safe tenant slug.
func ValidSlug(s string) bool {
	return len(s) >= 2 && len(s) <= 63 && slugPattern.MatchString(s)
}
