package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/chimeralens/internal/database"
	"github.com/digkill/chimeralens/internal/id"
	"github.com/digkill/chimeralens/internal/models"
)

type PlanRepository struct {
	db *sql.DB
}

func NewPlanRepository(db *sql.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, title, COALESCE(description, ''), currency, price_minor_units, credits, COALESCE(stripe_price_id, ''), is_active, created_at, updated_at`

func scanPlan(row interface{ Scan(...any) error }) (*models.Plan, error) {
	var plan models.Plan
	if err := row.Scan(&plan.ID, &plan.Title, &plan.Description, &plan.Currency, &plan.PriceMinorUnits, &plan.Credits, &plan.StripePriceID, &plan.IsActive, &plan.CreatedAt, &plan.UpdatedAt); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *PlanRepository) list(ctx context.Context, query string, args ...any) ([]models.Plan, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	plans := []models.Plan{}
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *plan)
	}
	return plans, rows.Err()
}

func (r *PlanRepository) List(ctx context.Context) ([]models.Plan, error) {
	return r.list(ctx, `SELECT `+planColumns+` FROM pricing_plans ORDER BY created_at ASC, id ASC`)
}

func (r *PlanRepository) ListActive(ctx context.Context) ([]models.Plan, error) {
	return r.list(ctx, `SELECT `+planColumns+` FROM pricing_plans WHERE is_active = ? ORDER BY price_minor_units ASC, id ASC`, true)
}

func (r *PlanRepository) GetDefault(ctx context.Context) (*models.Plan, error) {
	const query = `SELECT ` + planColumns + `
FROM pricing_plans
WHERE is_active = ?
ORDER BY created_at ASC, id ASC
LIMIT 1`
	plan, err := scanPlan(r.db.QueryRowContext(ctx, query, true))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get default plan: %w", err)
	}
	return plan, nil
}

func (r *PlanRepository) GetByID(ctx context.Context, planID string) (*models.Plan, error) {
	plan, err := scanPlan(r.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM pricing_plans WHERE id = ?`, planID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return plan, nil
}

func (r *PlanRepository) Create(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	const query = `
INSERT INTO pricing_plans (id, title, description, currency, price_minor_units, credits, stripe_price_id, is_active, created_at, updated_at)
VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, NULLIF(?, ''), ?, ?, ?)`
	plan.ID = id.NewPlanID()
	now := database.Now()
	if _, err := r.db.ExecContext(ctx, query, plan.ID, plan.Title, plan.Description, plan.Currency, plan.PriceMinorUnits, plan.Credits, plan.StripePriceID, plan.IsActive, now, now); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	return r.GetByID(ctx, plan.ID)
}

func (r *PlanRepository) Update(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	const query = `
UPDATE pricing_plans
SET title = ?, description = NULLIF(?, ''), currency = ?, price_minor_units = ?, credits = ?, stripe_price_id = NULLIF(?, ''), is_active = ?, updated_at = ?
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, plan.Title, plan.Description, plan.Currency, plan.PriceMinorUnits, plan.Credits, plan.StripePriceID, plan.IsActive, database.Now(), plan.ID); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}
	return r.GetByID(ctx, plan.ID)
}

func (r *PlanRepository) Delete(ctx context.Context, planID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pricing_plans WHERE id = ?`, planID); err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	return nil
}
