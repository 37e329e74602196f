package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agridesk/agridesk/pkg/models"
	"github.com/google/uuid"
)

// RelationshipRepository handles identity-to-tenant binding operations.
type RelationshipRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRelationshipRepository creates a new relationship repository.
func NewRelationshipRepository(db *sql.DB, logger *slog.Logger) *RelationshipRepository {
	return &RelationshipRepository{db: db, logger: logger}
}

func (r *RelationshipRepository) GetByIdentityAndTenant(ctx context.Context, identityID, tenantID string) (*models.Relationship, error) {
	query := `
		SELECT id, identity_id, tenant_id, role, active, created_at, updated_at
		FROM tenant_relationships
		WHERE identity_id = $1 AND tenant_id = $2
	`

	var rel models.Relationship

	err := r.db.QueryRowContext(ctx, query, identityID, tenantID).Scan(
		&rel.ID,
		&rel.IdentityID,
		&rel.TenantID,
		&rel.Role,
		&rel.Active,
		&rel.CreatedAt,
		&rel.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan relationship: %w", err)
	}

	return &rel, nil
}

// Upsert creates or refreshes the binding keyed on (identity, tenant) and
// returns the persisted row. Replays of the same provisioning request land
// on the update branch instead of duplicating the binding.
func (r *RelationshipRepository) Upsert(ctx context.Context, rel *models.Relationship) (*models.Relationship, error) {
	now := time.Now().UTC()

	if rel.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate relationship ID: %w", err)
		}

		rel.ID = id.String()
	}

	query := `
		INSERT INTO tenant_relationships (id, identity_id, tenant_id, role, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (identity_id, tenant_id) DO UPDATE SET
			role = EXCLUDED.role,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
		RETURNING id, identity_id, tenant_id, role, active, created_at, updated_at
	`

	var persisted models.Relationship

	err := r.db.QueryRowContext(ctx, query,
		rel.ID,
		rel.IdentityID,
		rel.TenantID,
		rel.Role,
		rel.Active,
		now,
	).Scan(
		&persisted.ID,
		&persisted.IdentityID,
		&persisted.TenantID,
		&persisted.Role,
		&persisted.Active,
		&persisted.CreatedAt,
		&persisted.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert relationship: %w", err)
	}

	return &persisted, nil
}

// DeleteByTenant removes every binding of the tenant. Compensation path.
func (r *RelationshipRepository) DeleteByTenant(ctx context.Context, tenantID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tenant_relationships WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete relationships: %w", err)
	}

	return nil
}
