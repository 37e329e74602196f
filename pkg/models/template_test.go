package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalogFixture() []*StepTemplate {
	return []*StepTemplate{
		{ID: "t3", StepNumber: 3, StepName: "Invite your team"},
		{ID: "t1", StepNumber: 1, StepName: "Company profile"},
		{
			ID:                "t2",
			StepNumber:        2,
			StepName:          "Connect dealer network",
			SubscriptionPlans: []SubscriptionPlan{PlanProfessional, PlanEnterprise},
			TenantTypes:       []TenantType{TenantTypeDealer},
		},
	}
}

func TestStepTemplate_AppliesTo(t *testing.T) {
	universal := &StepTemplate{StepNumber: 1}
	scoped := &StepTemplate{
		StepNumber:        2,
		SubscriptionPlans: []SubscriptionPlan{PlanEnterprise},
		TenantTypes:       []TenantType{TenantTypeDealer},
	}

	assert.True(t, universal.AppliesTo(PlanStarter, TenantTypeStandard))
	assert.True(t, scoped.AppliesTo(PlanEnterprise, TenantTypeDealer))
	assert.False(t, scoped.AppliesTo(PlanEnterprise, TenantTypeStandard))
	assert.False(t, scoped.AppliesTo(PlanStarter, TenantTypeDealer))
}

func TestFilterTemplates_ScopedMatch(t *testing.T) {
	filtered := FilterTemplates(catalogFixture(), PlanEnterprise, TenantTypeDealer)

	require.Len(t, filtered, 3)

	// Ordered by step number regardless of catalog order.
	assert.Equal(t, []string{"t1", "t2", "t3"}, []string{filtered[0].ID, filtered[1].ID, filtered[2].ID})
}

func TestFilterTemplates_ScopedOut(t *testing.T) {
	filtered := FilterTemplates(catalogFixture(), PlanStarter, TenantTypeStandard)

	require.Len(t, filtered, 2)
	assert.Equal(t, "t1", filtered[0].ID)
	assert.Equal(t, "t3", filtered[1].ID)
}

// An over-restrictive catalog must never block onboarding: when nothing
// matches, the whole set is used.
func TestFilterTemplates_FailOpen(t *testing.T) {
	catalog := []*StepTemplate{
		{ID: "t1", StepNumber: 1, SubscriptionPlans: []SubscriptionPlan{PlanEnterprise}},
		{ID: "t2", StepNumber: 2, SubscriptionPlans: []SubscriptionPlan{PlanEnterprise}},
	}

	filtered := FilterTemplates(catalog, PlanStarter, TenantTypeStandard)

	require.Len(t, filtered, 2)
	assert.Equal(t, "t1", filtered[0].ID)
}

func TestFilterTemplates_EmptyCatalog(t *testing.T) {
	assert.Empty(t, FilterTemplates(nil, PlanStarter, TenantTypeStandard))
}
