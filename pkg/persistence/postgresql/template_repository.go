package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/agridesk/agridesk/pkg/models"
)

// TemplateRepository reads the onboarding step template catalog.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

// ListActive returns every active template ordered by step number.
func (r *TemplateRepository) ListActive(ctx context.Context) ([]*models.StepTemplate, error) {
	query := `
		SELECT
			id
		  , version
		  , step_number
		  , step_name
		  , estimated_time
		  , is_required
		  , help_text
		  , default_data
		  , validation_schema
		  , subscription_plans
		  , tenant_types
		FROM step_templates
		WHERE is_active = TRUE
		ORDER BY step_number
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query step templates: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.StepTemplate, 0)

	for rows.Next() {
		var (
			template       models.StepTemplate
			estimatedTime  sql.NullString
			helpText       sql.NullString
			defaultJSON    []byte
			schemaJSON     []byte
			plansJSON      []byte
			tenantTypeJSON []byte
		)

		err := rows.Scan(
			&template.ID,
			&template.Version,
			&template.StepNumber,
			&template.StepName,
			&estimatedTime,
			&template.IsRequired,
			&helpText,
			&defaultJSON,
			&schemaJSON,
			&plansJSON,
			&tenantTypeJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step template: %w", err)
		}

		template.EstimatedTime = estimatedTime.String
		template.HelpText = helpText.String

		for _, field := range []struct {
			raw  []byte
			dest any
		}{
			{defaultJSON, &template.DefaultData},
			{schemaJSON, &template.ValidationSchema},
			{plansJSON, &template.SubscriptionPlans},
			{tenantTypeJSON, &template.TenantTypes},
		} {
			if len(field.raw) == 0 {
				continue
			}

			err = json.Unmarshal(field.raw, field.dest)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal template field: %w", err)
			}
		}

		templates = append(templates, &template)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating step templates: %w", err)
	}

	return templates, nil
}
