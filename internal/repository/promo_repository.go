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

type PromoRepository struct {
	db *sql.DB
}

func NewPromoRepository(db *sql.DB) *PromoRepository {
	return &PromoRepository{db: db}
}

func (r *PromoRepository) findOne(ctx context.Context, query string, arg any) (*models.PromoCode, error) {
	var promo models.PromoCode
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&promo.ID, &promo.Code, &promo.MaxUses, &promo.Uses, &promo.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan promo: %w", err)
	}
	return &promo, nil
}

func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	return r.findOne(ctx, `SELECT id, code, max_uses, uses, created_at FROM promo_codes WHERE code = ?`, code)
}

func (r *PromoRepository) GetByID(ctx context.Context, promoID string) (*models.PromoCode, error) {
	return r.findOne(ctx, `SELECT id, code, max_uses, uses, created_at FROM promo_codes WHERE id = ?`, promoID)
}

func (r *PromoRepository) List(ctx context.Context) ([]models.PromoCode, error) {
	const query = `SELECT id, code, max_uses, uses, created_at FROM promo_codes ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list promos: %w", err)
	}
	defer rows.Close()

	promos := []models.PromoCode{}
	for rows.Next() {
		var promo models.PromoCode
		if err := rows.Scan(&promo.ID, &promo.Code, &promo.MaxUses, &promo.Uses, &promo.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan promo list: %w", err)
		}
		promos = append(promos, promo)
	}
	return promos, rows.Err()
}

func (r *PromoRepository) Create(ctx context.Context, promo *models.PromoCode) (*models.PromoCode, error) {
	const query = `
INSERT INTO promo_codes (id, code, max_uses, uses, created_at)
VALUES (?, ?, ?, 0, ?)`
	promo.ID = id.NewPromoID()
	if _, err := r.db.ExecContext(ctx, query, promo.ID, promo.Code, promo.MaxUses, database.Now()); err != nil {
		if database.IsDuplicateKey(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create promo: %w", err)
	}
	return r.GetByID(ctx, promo.ID)
}

func (r *PromoRepository) Update(ctx context.Context, promo *models.PromoCode) (*models.PromoCode, error) {
	const query = `
UPDATE promo_codes
SET code = ?, max_uses = ?, uses = ?
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, promo.Code, promo.MaxUses, promo.Uses, promo.ID); err != nil {
		if database.IsDuplicateKey(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("update promo: %w", err)
	}
	return r.GetByID(ctx, promo.ID)
}

func (r *PromoRepository) Delete(ctx context.Context, promoID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM promo_codes WHERE id = ?`, promoID); err != nil {
		return fmt.Errorf("delete promo: %w", err)
	}
	return nil
}

// ClaimUse consumes one use of the code inside exec. It reports false once
// the code is exhausted.
func (r *PromoRepository) ClaimUse(ctx context.Context, exec database.Executor, promoID string) (bool, error) {
	const query = `
UPDATE promo_codes SET uses = uses + 1
WHERE id = ? AND uses < max_uses`
	res, err := exec.ExecContext(ctx, query, promoID)
	if err != nil {
		return false, fmt.Errorf("increment promo usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("promo usage rows affected: %w", err)
	}
	return affected > 0, nil
}

// RecordRedemption returns ErrDuplicate when the account already redeemed the code.
func (r *PromoRepository) RecordRedemption(ctx context.Context, exec database.Executor, accountID, promoID string) error {
	const query = `
INSERT INTO promo_redemptions (account_id, promo_code_id, created_at)
VALUES (?, ?, ?)`
	if _, err := exec.ExecContext(ctx, query, accountID, promoID, database.Now()); err != nil {
		if database.IsDuplicateKey(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("record redemption: %w", err)
	}
	return nil
}
