package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/digkill/chimeralens/internal/database"
	"github.com/digkill/chimeralens/internal/ledger"
	"github.com/digkill/chimeralens/internal/models"
	"github.com/digkill/chimeralens/internal/repository"
)

type PromoService struct {
	db     *sql.DB
	log    *slog.Logger
	promos *repository.PromoRepository
	bonus  int
}

func NewPromoService(db *sql.DB, log *slog.Logger, promos *repository.PromoRepository, bonus int) *PromoService {
	return &PromoService{db: db, log: log, promos: promos, bonus: bonus}
}

// Redeem grants the promo bonus once per account per code and returns the new
// balance. The usage claim, the redemption row and the credit grant share one
// transaction.
func (s *PromoService) Redeem(ctx context.Context, account *models.Account, code string) (int, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, ErrPromoInvalid
	}
	promo, err := s.promos.GetByCode(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("get promo: %w", err)
	}
	if promo == nil {
		return 0, ErrPromoInvalid
	}

	var balance int
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.promos.RecordRedemption(ctx, tx, account.ID, promo.ID); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrPromoAlreadyRedeemed
			}
			return err
		}
		claimed, err := s.promos.ClaimUse(ctx, tx, promo.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrPromoExhausted
		}
		balance, err = ledger.Increment(ctx, tx, account.ID, s.bonus)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("promo redeemed", "account_id", account.ID, "code", promo.Code, "credits", s.bonus)
	return balance, nil
}

func (s *PromoService) List(ctx context.Context) ([]models.PromoCode, error) {
	return s.promos.List(ctx)
}

func (s *PromoService) Create(ctx context.Context, code string, maxUses int) (*models.PromoCode, error) {
	code = strings.TrimSpace(code)
	if code == "" || maxUses <= 0 {
		return nil, fmt.Errorf("%w: code and positive maxUses are required", ErrInvalidInput)
	}
	return s.promos.Create(ctx, &models.PromoCode{Code: code, MaxUses: maxUses})
}

func (s *PromoService) Update(ctx context.Context, id string, code *string, maxUses *int) (*models.PromoCode, error) {
	existing, err := s.promos.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrPromoInvalid
	}
	if code != nil && strings.TrimSpace(*code) != "" {
		existing.Code = strings.TrimSpace(*code)
	}
	if maxUses != nil && *maxUses > 0 {
		existing.MaxUses = *maxUses
	}
	return s.promos.Update(ctx, existing)
}

func (s *PromoService) Delete(ctx context.Context, id string) error {
	return s.promos.Delete(ctx, id)
}
