package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/digkill/chimeralens/internal/config"
	"github.com/digkill/chimeralens/internal/models"
	"github.com/digkill/chimeralens/internal/payments"
	"github.com/digkill/chimeralens/internal/repository"
)

type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, p payments.CheckoutParams) (string, string, error)
}

type CheckoutSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type BillingService struct {
	cfg      config.Config
	log      *slog.Logger
	plans    *repository.PlanRepository
	orders   *repository.OrderRepository
	checkout CheckoutCreator
}

func NewBillingService(cfg config.Config, log *slog.Logger, plans *repository.PlanRepository, orders *repository.OrderRepository, checkout CheckoutCreator) *BillingService {
	return &BillingService{cfg: cfg, log: log, plans: plans, orders: orders, checkout: checkout}
}

// Checkout opens a payment session for a credit plan. An empty planID picks
// the default active plan. Credits are granted later by the webhook.
func (s *BillingService) Checkout(ctx context.Context, account *models.Account, planID string) (*CheckoutSession, error) {
	if account.IsGuest {
		return nil, ErrRegistrationRequired
	}

	var (
		plan *models.Plan
		err  error
	)
	if planID == "" {
		plan, err = s.plans.GetDefault(ctx)
	} else {
		plan, err = s.plans.GetByID(ctx, planID)
	}
	if err != nil {
		return nil, err
	}
	if plan == nil || !plan.IsActive {
		return nil, ErrPlanNotFound
	}

	params := payments.CheckoutParams{
		AccountID:       account.ID,
		PlanID:          plan.ID,
		Email:           account.Email,
		Credits:         plan.Credits,
		PriceID:         plan.StripePriceID,
		Currency:        plan.Currency,
		UnitAmountMinor: int64(plan.PriceMinorUnits),
		ProductName:     plan.Title,
		SuccessURL:      s.cfg.FrontendURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:       s.cfg.FrontendURL + "/billing/cancel",
	}
	sessionID, url, err := s.checkout.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}
	s.log.Info("checkout session created", "account_id", account.ID, "plan_id", plan.ID, "session_id", sessionID)
	return &CheckoutSession{SessionID: sessionID, URL: url}, nil
}

func (s *BillingService) History(ctx context.Context, account *models.Account) ([]models.Order, error) {
	return s.orders.ListByAccount(ctx, account.ID)
}
