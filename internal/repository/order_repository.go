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

// ErrDuplicate is returned when a write collides with an idempotency key.
var ErrDuplicate = errors.New("duplicate record")

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts an order through exec. A second order for the same external
// checkout id yields ErrDuplicate.
func (r *OrderRepository) Create(ctx context.Context, exec database.Executor, order *models.Order) error {
	const query = `
INSERT INTO orders (id, account_id, plan_id, credits, amount, currency, external_checkout_id, created_at)
VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?)`
	if order.ID == "" {
		order.ID = id.NewOrderID()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = database.Now()
	}
	_, err := exec.ExecContext(ctx, query, order.ID, order.AccountID, order.PlanID, order.CreditsGranted, order.Amount, order.Currency, order.ExternalCheckoutID, order.CreatedAt)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) FindByCheckoutID(ctx context.Context, exec database.Executor, checkoutID string) (*models.Order, error) {
	const query = `
SELECT id, account_id, COALESCE(plan_id, ''), credits, amount, currency, external_checkout_id, created_at
FROM orders WHERE external_checkout_id = ? LIMIT 1`
	var o models.Order
	err := exec.QueryRowContext(ctx, query, checkoutID).Scan(&o.ID, &o.AccountID, &o.PlanID, &o.CreditsGranted, &o.Amount, &o.Currency, &o.ExternalCheckoutID, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) ListByAccount(ctx context.Context, accountID string) ([]models.Order, error) {
	const query = `
SELECT id, account_id, COALESCE(plan_id, ''), credits, amount, currency, external_checkout_id, created_at
FROM orders WHERE account_id = ?
ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.AccountID, &o.PlanID, &o.CreditsGranted, &o.Amount, &o.Currency, &o.ExternalCheckoutID, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order list: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// RecordWebhookEvent claims a provider event id inside the transaction that
// applies its effects. A redelivered event yields ErrDuplicate.
func (r *OrderRepository) RecordWebhookEvent(ctx context.Context, exec database.Executor, provider, eventID, eventType string) error {
	const query = `
INSERT INTO webhook_events (id, provider, provider_event_id, event_type, processed_at)
VALUES (?, ?, ?, ?, ?)`
	_, err := exec.ExecContext(ctx, query, id.NewWebhookEventID(), provider, eventID, eventType, database.Now())
	if err != nil {
		if database.IsDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}
