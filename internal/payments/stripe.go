// Package payments wraps the Stripe API calls the billing flow needs.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// Metadata keys carried on checkout sessions and their payment intents.
const (
	MetaAccountID    = "accountId"
	MetaCreditsToAdd = "creditsToAdd"
	MetaPlanID       = "planId"
)

var ErrMissingMetadata = errors.New("payment metadata missing accountId or creditsToAdd")

type CheckoutParams struct {
	AccountID       string
	PlanID          string
	Email           string
	Credits         int
	PriceID         string
	Currency        string
	UnitAmountMinor int64
	ProductName     string
	SuccessURL      string
	CancelURL       string
}

type Gateway struct {
	sc *client.API
}

func NewGateway(secretKey string) *Gateway {
	return &Gateway{sc: client.New(secretKey, nil)}
}

// CreateCheckoutSession opens a one-off payment session and returns its id
// and hosted URL.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, string, error) {
	meta := Metadata(p.AccountID, p.Credits)
	if p.PlanID != "" {
		meta[MetaPlanID] = p.PlanID
	}

	lineItem := &stripe.CheckoutSessionLineItemParams{Quantity: stripe.Int64(1)}
	if p.PriceID != "" {
		lineItem.Price = stripe.String(p.PriceID)
	} else {
		lineItem.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(p.Currency),
			UnitAmount: stripe.Int64(p.UnitAmountMinor),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(p.ProductName),
			},
		}
	}

	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{lineItem},
		SuccessURL:         stripe.String(p.SuccessURL),
		CancelURL:          stripe.String(p.CancelURL),
		ClientReferenceID:  stripe.String(p.AccountID),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: meta,
		},
	}
	if p.Email != "" {
		params.CustomerEmail = stripe.String(p.Email)
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}

	sess, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return "", "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.ID, sess.URL, nil
}

// PaymentIntentMetadata returns the metadata stamped on a payment intent at
// checkout time.
func (g *Gateway) PaymentIntentMetadata(ctx context.Context, paymentIntentID string) (map[string]string, error) {
	pi, err := g.sc.PaymentIntents.Get(paymentIntentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("get payment intent: %w", err)
	}
	return pi.Metadata, nil
}

func Metadata(accountID string, credits int) map[string]string {
	return map[string]string{
		MetaAccountID:    accountID,
		MetaCreditsToAdd: strconv.Itoa(credits),
	}
}

// ParseMetadata extracts the crediting instruction. Both keys must be present
// and the credit count positive.
func ParseMetadata(meta map[string]string) (string, int, error) {
	accountID := meta[MetaAccountID]
	raw := meta[MetaCreditsToAdd]
	if accountID == "" || raw == "" {
		return "", 0, ErrMissingMetadata
	}
	credits, err := strconv.Atoi(raw)
	if err != nil || credits <= 0 {
		return "", 0, fmt.Errorf("%w: creditsToAdd=%q", ErrMissingMetadata, raw)
	}
	return accountID, credits, nil
}
