package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/digkill/chimeralens/internal/service"
)

const maxWebhookBody = 64 << 10

// handleStripeWebhook acknowledges every verified event. Only signature
// failures and storage errors are reported back, so the provider retries
// exactly those.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		s.badRequest(w, "read body")
		return
	}

	outcome, err := s.deps.Webhooks.HandleStripe(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil, errors.Is(err, service.ErrMissingPaymentMetadata):
	case errors.Is(err, service.ErrInvalidWebhookSignature):
		s.writeError(w, err)
		return
	default:
		s.log.Error("stripe webhook", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "webhook processing failed"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"received": true, "outcome": outcome})
}
