// Package persistence provides the data storage abstraction layer for
// tenants, onboarding workflows, steps and templates.
package persistence

import (
	"context"
	"time"

	"github.com/agridesk/agridesk/pkg/models"
)

type Persistence interface {
	TenantRepository() TenantRepository
	WorkflowRepository() WorkflowRepository
	StepRepository() StepRepository
	TemplateRepository() TemplateRepository
	RelationshipRepository() RelationshipRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// TenantRepository stores tenant rows. GetByID and GetBySlug return
// (nil, nil) when no row exists.
type TenantRepository interface {
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	// Save inserts or updates a tenant. Inserting a duplicate slug fails
	// with ErrDuplicateSlug before any other side effect.
	Save(ctx context.Context, tenant *models.Tenant) error
	// Delete hard-deletes a tenant row. Only the provisioning saga's
	// compensation path uses this; admin flows archive instead.
	Delete(ctx context.Context, id string) error
}

// WorkflowRepository stores onboarding workflow rows.
type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	// FindActiveByTenant returns the tenant's non-completed workflow, or
	// (nil, nil) when none exists.
	FindActiveByTenant(ctx context.Context, tenantID string) (*models.Workflow, error)
	// ListStale returns non-completed workflows started before the cutoff,
	// for reminder scanning.
	ListStale(ctx context.Context, startedBefore time.Time) ([]*models.Workflow, error)
	// Save inserts or updates a workflow. Inserting a second active
	// workflow for the same tenant fails with ErrActiveWorkflowExists.
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// StepRepository stores step rows. Steps are created exclusively through
// ReplaceForWorkflow; there is deliberately no single-step insert.
type StepRepository interface {
	GetByID(ctx context.Context, id string) (*models.Step, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Step, error)
	CountByWorkflow(ctx context.Context, workflowID string) (int, error)
	// ReplaceForWorkflow deletes every step of the workflow and bulk-inserts
	// the given steps, returning how many rows were actually persisted.
	ReplaceForWorkflow(ctx context.Context, workflowID string, steps []*models.Step) (int, error)
	Update(ctx context.Context, step *models.Step) error
}

// TemplateRepository reads the step template catalog. The catalog is
// read-only from this core's point of view.
type TemplateRepository interface {
	ListActive(ctx context.Context) ([]*models.StepTemplate, error)
}

// RelationshipRepository stores identity-to-tenant bindings.
type RelationshipRepository interface {
	GetByIdentityAndTenant(ctx context.Context, identityID, tenantID string) (*models.Relationship, error)
	// Upsert creates or updates the binding keyed on (identity, tenant) and
	// returns the persisted row, so callers get an explicit success signal
	// rather than inferring one from the absence of an error.
	Upsert(ctx context.Context, rel *models.Relationship) (*models.Relationship, error)
	DeleteByTenant(ctx context.Context, tenantID string) error
}
