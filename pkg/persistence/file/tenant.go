package file

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/agridesk/agridesk/pkg/models"
	"github.com/agridesk/agridesk/pkg/persistence"
	"github.com/google/uuid"
)

// TenantRepository handles tenant-related file operations.
type TenantRepository struct {
	root string
	mu   *sync.Mutex
}

// NewTenantRepository creates a new tenant repository.
func NewTenantRepository(root string, mu *sync.Mutex) *TenantRepository {
	return &TenantRepository{root: root, mu: mu}
}

func (tr *TenantRepository) dir() string {
	return path.Join(tr.root, "tenants")
}

// GetByID retrieves a tenant by its ID from the file system.
func (tr *TenantRepository) GetByID(_ context.Context, id string) (*models.Tenant, error) {
	var tenant models.Tenant

	found, err := readEntity(tr.dir(), id, &tenant)
	if err != nil || !found {
		return nil, err
	}

	return &tenant, nil
}

// GetBySlug scans stored tenants for a slug match.
func (tr *TenantRepository) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	ids, err := listIDs(tr.dir())
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		tenant, err := tr.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if tenant != nil && tenant.Slug == slug {
			return tenant, nil
		}
	}

	return nil, nil
}

// Save saves a tenant, enforcing slug uniqueness the way the database
// unique index does.
func (tr *TenantRepository) Save(ctx context.Context, tenant *models.Tenant) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	existing, err := tr.GetBySlug(ctx, tenant.Slug)
	if err != nil {
		return fmt.Errorf("failed to check slug uniqueness: %w", err)
	}

	if existing != nil && existing.ID != tenant.ID {
		return persistence.NewTenantError("Save", tenant.ID, persistence.ErrDuplicateSlug)
	}

	now := time.Now().UTC()

	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = now
	}

	tenant.UpdatedAt = now

	if tenant.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate tenant ID: %w", err)
		}

		tenant.ID = id.String()
	}

	return writeEntity(tr.dir(), tenant.ID, tenant)
}

// Delete removes a tenant by its ID.
func (tr *TenantRepository) Delete(_ context.Context, id string) error {
	return removeEntity(tr.dir(), id)
}
