package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/digkill/chimeralens/internal/repository"
	"github.com/digkill/chimeralens/internal/service"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	target  error
	status  int
	kind    string
	message string
}

var errorMappings = []errorMapping{
	{service.ErrTemplateNotFound, http.StatusNotFound, "template_not_found", "template not found"},
	{service.ErrModelNotFound, http.StatusNotFound, "model_not_found", "model not found"},
	{service.ErrGenerationNotFound, http.StatusNotFound, "generation_not_found", "generation not found"},
	{service.ErrPlanNotFound, http.StatusNotFound, "plan_not_found", "plan not found"},
	{service.ErrAccountNotFound, http.StatusNotFound, "account_not_found", "account not found"},
	{service.ErrPromoInvalid, http.StatusNotFound, "promo_invalid", "promo code is not valid"},
	{service.ErrPremiumLocked, http.StatusForbidden, "premium_locked", "premium templates require a registered account"},
	{service.ErrNotOwner, http.StatusForbidden, "not_owner", "generation belongs to another account"},
	{service.ErrRegistrationRequired, http.StatusForbidden, "registration_required", "register an account first"},
	{service.ErrInsufficientCredits, http.StatusPaymentRequired, "insufficient_credits", "not enough credits"},
	{service.ErrFaceNotDetected, http.StatusUnprocessableEntity, "face_not_detected", "no face was detected in the source image"},
	{service.ErrContentPolicyBlocked, http.StatusUnprocessableEntity, "content_policy_blocked", "the image was rejected by the content policy"},
	{service.ErrGenerationFailed, http.StatusBadGateway, "generation_failed", "image generation failed"},
	{service.ErrInvalidSelection, http.StatusBadRequest, "invalid_selection", "face selection is invalid"},
	{service.ErrInvalidInput, http.StatusBadRequest, "invalid_input", "request is invalid"},
	{service.ErrInvalidWebhookSignature, http.StatusBadRequest, "invalid_signature", "webhook signature is invalid"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "invalid credentials"},
	{service.ErrEmailTaken, http.StatusConflict, "email_taken", "email is already registered"},
	{service.ErrPromoAlreadyRedeemed, http.StatusConflict, "promo_already_redeemed", "promo code already redeemed"},
	{service.ErrPromoExhausted, http.StatusConflict, "promo_exhausted", "promo code has no uses left"},
	{repository.ErrDuplicate, http.StatusConflict, "duplicate", "resource already exists"},
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service sentinels to statuses and fixed messages. The
// wrapped error text stays in the log and never reaches the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			level := slog.LevelDebug
			if m.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			s.log.Log(context.Background(), level, "api request rejected", "kind", m.kind, "err", err)
			s.writeJSON(w, m.status, errorBody{Error: m.kind, Message: m.message})
			return
		}
	}
	s.log.Error("api handler error", "err", err)
	s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
}

func (s *Server) badRequest(w http.ResponseWriter, message string) {
	s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
