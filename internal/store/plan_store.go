package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

const planColumns = `
	id, name, max_projects, max_queries, figma_integration, master_mode,
	priority_support, advanced_analytics, custom_branding, export_to_pdf,
	premium_analyzers, ai_model, external_price_id, created_at, updated_at`

func scanPlan(row rowScanner) (*models.Plan, error) {
	var (
		p         models.Plan
		analyzers pq.StringArray
		priceID   sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.MaxProjects, &p.MaxQueries,
		&p.FigmaIntegration, &p.MasterMode, &p.PrioritySupport,
		&p.AdvancedAnalytics, &p.CustomBranding, &p.ExportToPDF,
		&analyzers, &p.AIModel, &priceID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.PremiumAnalyzers = []string(analyzers)
	if p.PremiumAnalyzers == nil {
		p.PremiumAnalyzers = []string{}
	}
	p.ExternalPriceID = nullStringPtr(priceID)
	return &p, nil
}

// Plan returns a catalog entry by id.
func (s *Store) Plan(ctx context.Context, id string) (*models.Plan, error) {
	p, err := scanPlan(s.db.QueryRowContext(ctx, `SELECT`+planColumns+` FROM plans WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get plan: %w", err)
	}
	return p, nil
}

// PlanByExternalPrice maps a provider price id to its plan.
func (s *Store) PlanByExternalPrice(ctx context.Context, priceID string) (*models.Plan, error) {
	p, err := scanPlan(s.db.QueryRowContext(ctx, `SELECT`+planColumns+` FROM plans WHERE external_price_id = $1`, priceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get plan by price: %w", err)
	}
	return p, nil
}

// ListPlans returns the whole catalog ordered by project allowance, with
// unlimited plans last.
func (s *Store) ListPlans(ctx context.Context) ([]models.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT`+planColumns+`
FROM plans
ORDER BY CASE WHEN max_projects = -1 THEN 1 ELSE 0 END, max_projects, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list plans: %w", err)
	}
	defer rows.Close()

	plans := []models.Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// UpsertPlan writes a catalog entry. Only the seeding command calls this.
func (s *Store) UpsertPlan(ctx context.Context, p models.Plan) error {
	analyzers := p.PremiumAnalyzers
	if analyzers == nil {
		analyzers = []string{}
	}
	var priceID sql.NullString
	if p.ExternalPriceID != nil {
		priceID = nullString(*p.ExternalPriceID)
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO plans (
	id, name, max_projects, max_queries, figma_integration, master_mode,
	priority_support, advanced_analytics, custom_branding, export_to_pdf,
	premium_analyzers, ai_model, external_price_id
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	max_projects = EXCLUDED.max_projects,
	max_queries = EXCLUDED.max_queries,
	figma_integration = EXCLUDED.figma_integration,
	master_mode = EXCLUDED.master_mode,
	priority_support = EXCLUDED.priority_support,
	advanced_analytics = EXCLUDED.advanced_analytics,
	custom_branding = EXCLUDED.custom_branding,
	export_to_pdf = EXCLUDED.export_to_pdf,
	premium_analyzers = EXCLUDED.premium_analyzers,
	ai_model = EXCLUDED.ai_model,
	external_price_id = EXCLUDED.external_price_id,
	updated_at = now()`,
		p.ID, p.Name, p.MaxProjects, p.MaxQueries,
		p.FigmaIntegration, p.MasterMode, p.PrioritySupport,
		p.AdvancedAnalytics, p.CustomBranding, p.ExportToPDF,
		pq.Array(analyzers), p.AIModel, priceID,
	)
	if err != nil {
		return fmt.Errorf("store: upsert plan %s: %w", p.ID, err)
	}
	return nil
}
