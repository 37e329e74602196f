package file

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/agridesk/agridesk/pkg/models"
	"github.com/google/uuid"
)

// RelationshipRepository handles identity-to-tenant binding file operations.
type RelationshipRepository struct {
	root string
	mu   *sync.Mutex
}

// NewRelationshipRepository creates a new relationship repository.
func NewRelationshipRepository(root string, mu *sync.Mutex) *RelationshipRepository {
	return &RelationshipRepository{root: root, mu: mu}
}

func (rr *RelationshipRepository) dir() string {
	return path.Join(rr.root, "relationships")
}

func (rr *RelationshipRepository) GetByIdentityAndTenant(ctx context.Context, identityID, tenantID string) (*models.Relationship, error) {
	ids, err := listIDs(rr.dir())
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		var rel models.Relationship

		found, err := readEntity(rr.dir(), id, &rel)
		if err != nil {
			return nil, err
		}

		if found && rel.IdentityID == identityID && rel.TenantID == tenantID {
			return &rel, nil
		}
	}

	return nil, nil
}

// Upsert creates or refreshes the binding keyed on (identity, tenant) and
// returns the persisted row.
func (rr *RelationshipRepository) Upsert(ctx context.Context, rel *models.Relationship) (*models.Relationship, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	now := time.Now().UTC()

	existing, err := rr.GetByIdentityAndTenant(ctx, rel.IdentityID, rel.TenantID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		existing.Role = rel.Role
		existing.Active = rel.Active
		existing.UpdatedAt = now

		err = writeEntity(rr.dir(), existing.ID, existing)
		if err != nil {
			return nil, err
		}

		return existing, nil
	}

	if rel.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate relationship ID: %w", err)
		}

		rel.ID = id.String()
	}

	rel.CreatedAt = now
	rel.UpdatedAt = now

	err = writeEntity(rr.dir(), rel.ID, rel)
	if err != nil {
		return nil, err
	}

	return rel, nil
}

// DeleteByTenant removes every binding of the tenant.
func (rr *RelationshipRepository) DeleteByTenant(ctx context.Context, tenantID string) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	ids, err := listIDs(rr.dir())
	if err != nil {
		return err
	}

	for _, id := range ids {
		var rel models.Relationship

		found, err := readEntity(rr.dir(), id, &rel)
		if err != nil {
			return err
		}

		if found && rel.TenantID == tenantID {
			err = removeEntity(rr.dir(), id)
			if err != nil {
				return err
			}
		}
	}

	return nil
}
