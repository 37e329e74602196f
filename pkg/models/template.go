package models

import "sort"

// StepTemplate is a versioned catalog definition used to materialize Steps
// for a new workflow. Templates are read-only at workflow-creation time.
type StepTemplate struct {
	ID            string         `json:"id"`
	Version       int            `json:"version"`
	StepNumber    int            `json:"step_number"`
	StepName      string         `json:"step_name"`
	EstimatedTime string         `json:"estimated_time,omitempty"`
	IsRequired    bool           `json:"is_required"`
	HelpText      string         `json:"help_text,omitempty"`
	DefaultData   map[string]any `json:"default_data,omitempty"`
	// ValidationSchema is a JSON Schema applied to step data on completion.
	ValidationSchema map[string]any `json:"validation_schema,omitempty"`
	// Empty scoping lists mean the template applies universally.
	SubscriptionPlans []SubscriptionPlan `json:"subscription_plans,omitempty"`
	TenantTypes       []TenantType       `json:"tenant_types,omitempty"`
}

// AppliesTo reports whether the template is in scope for the given plan and
// tenant type. An empty scoping list matches everything.
func (t *StepTemplate) AppliesTo(plan SubscriptionPlan, tenantType TenantType) bool {
	return containsOrEmpty(t.SubscriptionPlans, plan) && containsOrEmpty(t.TenantTypes, tenantType)
}

func containsOrEmpty[T comparable](list []T, v T) bool {
	if len(list) == 0 {
		return true
	}

	for _, item := range list {
		if item == v {
			return true
		}
	}

	return false
}

// FilterTemplates returns the templates applicable to the tenant's plan and
// type, ordered by step number. When scoped filtering matches nothing the
// full set is returned instead (fail-open), so an over-restrictive catalog
// can never block onboarding entirely.
func FilterTemplates(templates []*StepTemplate, plan SubscriptionPlan, tenantType TenantType) []*StepTemplate {
	filtered := make([]*StepTemplate, 0, len(templates))

	for _, t := range templates {
		if t.AppliesTo(plan, tenantType) {
			filtered = append(filtered, t)
		}
	}

	if len(filtered) == 0 {
		filtered = append(filtered, templates...)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].StepNumber < filtered[j].StepNumber
	})

	return filtered
}
