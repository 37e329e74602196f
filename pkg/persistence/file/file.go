// Package file provides file-based persistence for tenants, onboarding
// workflows, steps and templates. Each entity is one JSON file under a
// per-kind directory. Intended for development and tests; the uniqueness
// guarantees the database enforces with constraints are enforced here with
// an in-process lock.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/agridesk/agridesk/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root             string
	tenantRepo       *TenantRepository
	workflowRepo     *WorkflowRepository
	stepRepo         *StepRepository
	templateRepo     *TemplateRepository
	relationshipRepo *RelationshipRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	mu := &sync.Mutex{}

	return &Persistence{
		root:             cleanRoot,
		tenantRepo:       NewTenantRepository(cleanRoot, mu),
		workflowRepo:     NewWorkflowRepository(cleanRoot, mu),
		stepRepo:         NewStepRepository(cleanRoot, mu),
		templateRepo:     NewTemplateRepository(cleanRoot),
		relationshipRepo: NewRelationshipRepository(cleanRoot, mu),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) TenantRepository() persistence.TenantRepository {
	return fp.tenantRepo
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) StepRepository() persistence.StepRepository {
	return fp.stepRepo
}

func (fp *Persistence) TemplateRepository() persistence.TemplateRepository {
	return fp.templateRepo
}

func (fp *Persistence) RelationshipRepository() persistence.RelationshipRepository {
	return fp.relationshipRepo
}
