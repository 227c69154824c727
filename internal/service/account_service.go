package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/digkill/chimeralens/internal/ledger"
	"github.com/digkill/chimeralens/internal/models"
	"github.com/digkill/chimeralens/internal/repository"
)

// AccountService backs the admin account tools.
type AccountService struct {
	log      *slog.Logger
	accounts *repository.AccountRepository
}

type AccountPage struct {
	Items []models.Account `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

func NewAccountService(log *slog.Logger, accounts *repository.AccountRepository) *AccountService {
	return &AccountService{log: log, accounts: accounts}
}

func (s *AccountService) Get(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// List pages through all accounts for the admin console, newest first.
func (s *AccountService) List(ctx context.Context, page, limit int) (*AccountPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	items, err := s.accounts.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	total, err := s.accounts.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &AccountPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// AdjustCredits applies a signed manual correction. A negative delta larger
// than the balance fails with ErrInsufficientCredits.
func (s *AccountService) AdjustCredits(ctx context.Context, accountID string, delta int) (int, error) {
	var (
		balance int
		err     error
	)
	switch {
	case delta > 0:
		balance, err = ledger.Increment(ctx, s.accounts.DB(), accountID, delta)
	case delta < 0:
		balance, err = ledger.Decrement(ctx, s.accounts.DB(), accountID, -delta)
	default:
		return 0, fmt.Errorf("%w: delta must be non-zero", ErrInvalidInput)
	}
	if err != nil {
		return 0, err
	}
	s.log.Info("credits adjusted", "account_id", accountID, "delta", delta, "balance", balance)
	return balance, nil
}
