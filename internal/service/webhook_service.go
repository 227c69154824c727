package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/digkill/chimeralens/internal/database"
	"github.com/digkill/chimeralens/internal/ledger"
	"github.com/digkill/chimeralens/internal/models"
	"github.com/digkill/chimeralens/internal/payments"
	"github.com/digkill/chimeralens/internal/repository"
)

const providerStripe = "stripe"

// IntentLookup recovers the metadata stamped on a payment intent at checkout.
type IntentLookup interface {
	PaymentIntentMetadata(ctx context.Context, paymentIntentID string) (map[string]string, error)
}

// WebhookOutcome describes what a verified event did to the ledger.
type WebhookOutcome string

const (
	OutcomeCredited  WebhookOutcome = "credited"
	OutcomeRefunded  WebhookOutcome = "refunded"
	OutcomeDuplicate WebhookOutcome = "duplicate"
	OutcomeDropped   WebhookOutcome = "dropped"
	OutcomeIgnored   WebhookOutcome = "ignored"
)

type WebhookService struct {
	db      *sql.DB
	log     *slog.Logger
	orders  *repository.OrderRepository
	intents IntentLookup
	secret  string
}

func NewWebhookService(db *sql.DB, log *slog.Logger, orders *repository.OrderRepository, intents IntentLookup, secret string) *WebhookService {
	return &WebhookService{db: db, log: log, orders: orders, intents: intents, secret: secret}
}

// HandleStripe verifies and applies one Stripe event. Redelivered events are
// reported as OutcomeDuplicate and change nothing.
func (s *WebhookService) HandleStripe(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		s.log.Warn("stripe webhook rejected", "err", err)
		return "", fmt.Errorf("%w: %v", ErrInvalidWebhookSignature, err)
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return s.checkoutCompleted(ctx, event)
	case stripe.EventTypeChargeRefunded:
		return s.chargeRefunded(ctx, event)
	default:
		s.log.Debug("stripe event ignored", "event_id", event.ID, "type", event.Type)
		return OutcomeIgnored, nil
	}
}

func (s *WebhookService) checkoutCompleted(ctx context.Context, event stripe.Event) (WebhookOutcome, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return "", fmt.Errorf("decode checkout session: %w", err)
	}

	accountID, credits, err := payments.ParseMetadata(sess.Metadata)
	if err != nil {
		s.log.Warn("checkout event dropped", "event_id", event.ID, "session_id", sess.ID, "err", err)
		return OutcomeDropped, err
	}

	order := &models.Order{
		AccountID:          accountID,
		CreditsGranted:     credits,
		Amount:             sess.AmountTotal,
		Currency:           string(sess.Currency),
		ExternalCheckoutID: sess.ID,
		PlanID:             sess.Metadata[payments.MetaPlanID],
	}

	var balance int
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.orders.RecordWebhookEvent(ctx, tx, providerStripe, event.ID, string(event.Type)); err != nil {
			return err
		}
		existing, err := s.orders.FindByCheckoutID(ctx, tx, sess.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return repository.ErrDuplicate
		}
		balance, err = ledger.Increment(ctx, tx, accountID, credits)
		if err != nil {
			return err
		}
		return s.orders.Create(ctx, tx, order)
	})
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		s.log.Info("checkout event already applied", "event_id", event.ID, "session_id", sess.ID)
		return OutcomeDuplicate, nil
	case errors.Is(err, ledger.ErrAccountNotFound):
		s.log.Warn("checkout event for unknown account dropped", "event_id", event.ID, "account_id", accountID)
		return OutcomeDropped, nil
	case err != nil:
		return "", fmt.Errorf("apply checkout %s: %w", sess.ID, err)
	}

	s.log.Info("credits purchased", "account_id", accountID, "order_id", order.ID, "credits", credits, "balance", balance)
	return OutcomeCredited, nil
}

func (s *WebhookService) chargeRefunded(ctx context.Context, event stripe.Event) (WebhookOutcome, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return "", fmt.Errorf("decode charge: %w", err)
	}
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		s.log.Warn("refund event without payment intent dropped", "event_id", event.ID, "charge_id", charge.ID)
		return OutcomeDropped, ErrMissingPaymentMetadata
	}

	meta, err := s.intents.PaymentIntentMetadata(ctx, charge.PaymentIntent.ID)
	if err != nil {
		return "", fmt.Errorf("lookup payment intent: %w", err)
	}
	accountID, credits, err := payments.ParseMetadata(meta)
	if err != nil {
		s.log.Warn("refund event dropped", "event_id", event.ID, "payment_intent", charge.PaymentIntent.ID, "err", err)
		return OutcomeDropped, err
	}

	var removed, balance int
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.orders.RecordWebhookEvent(ctx, tx, providerStripe, event.ID, string(event.Type)); err != nil {
			return err
		}
		// Partial refunds of one charge arrive as separate events; the grant
		// is reversed once per charge.
		if err := s.orders.RecordWebhookEvent(ctx, tx, providerStripe, refundKey(charge), string(event.Type)); err != nil {
			return err
		}
		var err error
		removed, balance, err = ledger.Debit(ctx, tx, accountID, credits)
		return err
	})
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		s.log.Info("refund already applied", "event_id", event.ID, "charge_id", charge.ID)
		return OutcomeDuplicate, nil
	case errors.Is(err, ledger.ErrAccountNotFound):
		s.log.Warn("refund event for unknown account dropped", "event_id", event.ID, "account_id", accountID)
		return OutcomeDropped, nil
	case err != nil:
		return "", fmt.Errorf("apply refund %s: %w", charge.ID, err)
	}

	if removed < credits {
		s.log.Warn("refund debit clamped at zero", "account_id", accountID, "requested", credits, "removed", removed)
	}
	s.log.Info("credits refunded", "account_id", accountID, "removed", removed, "balance", balance)
	return OutcomeRefunded, nil
}

func refundKey(charge stripe.Charge) string {
	if charge.ID != "" {
		return "refund:" + charge.ID
	}
	return "refund:" + charge.PaymentIntent.ID
}
