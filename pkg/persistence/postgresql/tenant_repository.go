package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agridesk/agridesk/pkg/models"
	"github.com/agridesk/agridesk/pkg/persistence"
	"github.com/google/uuid"
)

// TenantRepository handles tenant-related database operations.
type TenantRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTenantRepository creates a new tenant repository.
func NewTenantRepository(db *sql.DB, logger *slog.Logger) *TenantRepository {
	return &TenantRepository{db: db, logger: logger}
}

const tenantColumns = `
	id
  , name
  , slug
  , type
  , status
  , subscription_plan
  , owner_email
  , owner_name
  , owner_phone
  , max_farmers
  , max_dealers
  , max_products
  , max_storage_mb
  , max_api_calls_per_day
  , metadata
  , created_at
  , updated_at
`

func (r *TenantRepository) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`

	return r.scanTenant(r.db.QueryRowContext(ctx, query, id))
}

func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1`

	return r.scanTenant(r.db.QueryRowContext(ctx, query, slug))
}

// Save inserts or updates a tenant. A slug collision on insert is reported
// as ErrDuplicateSlug.
func (r *TenantRepository) Save(ctx context.Context, tenant *models.Tenant) error {
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

	metadataJSON, err := json.Marshal(tenant.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO tenants (id, name, slug, type, status, subscription_plan,
			owner_email, owner_name, owner_phone,
			max_farmers, max_dealers, max_products, max_storage_mb, max_api_calls_per_day,
			metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			slug = EXCLUDED.slug,
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			subscription_plan = EXCLUDED.subscription_plan,
			owner_email = EXCLUDED.owner_email,
			owner_name = EXCLUDED.owner_name,
			owner_phone = EXCLUDED.owner_phone,
			max_farmers = EXCLUDED.max_farmers,
			max_dealers = EXCLUDED.max_dealers,
			max_products = EXCLUDED.max_products,
			max_storage_mb = EXCLUDED.max_storage_mb,
			max_api_calls_per_day = EXCLUDED.max_api_calls_per_day,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.Slug,
		tenant.Type,
		tenant.Status,
		tenant.SubscriptionPlan,
		tenant.OwnerEmail,
		tenant.OwnerName,
		tenant.OwnerPhone,
		tenant.Limits.MaxFarmers,
		tenant.Limits.MaxDealers,
		tenant.Limits.MaxProducts,
		tenant.Limits.MaxStorageMB,
		tenant.Limits.MaxAPICallsPerDay,
		metadataJSON,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "idx_tenants_slug") {
			return persistence.NewTenantError("Save", tenant.ID, persistence.ErrDuplicateSlug)
		}

		return fmt.Errorf("failed to save tenant: %w", err)
	}

	return nil
}

// Delete hard-deletes a tenant row. Dependent workflow and relationship
// rows go with it via ON DELETE CASCADE.
func (r *TenantRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}

	return nil
}

func (r *TenantRepository) scanTenant(row *sql.Row) (*models.Tenant, error) {
	var (
		tenant       models.Tenant
		metadataJSON []byte
	)

	err := row.Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Slug,
		&tenant.Type,
		&tenant.Status,
		&tenant.SubscriptionPlan,
		&tenant.OwnerEmail,
		&tenant.OwnerName,
		&tenant.OwnerPhone,
		&tenant.Limits.MaxFarmers,
		&tenant.Limits.MaxDealers,
		&tenant.Limits.MaxProducts,
		&tenant.Limits.MaxStorageMB,
		&tenant.Limits.MaxAPICallsPerDay,
		&metadataJSON,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}

	if len(metadataJSON) > 0 {
		err = json.Unmarshal(metadataJSON, &tenant.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &tenant, nil
}
