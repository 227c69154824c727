package service

import (
	"errors"

	"github.com/digkill/chimeralens/internal/ledger"
	"github.com/digkill/chimeralens/internal/payments"
)

// Generation failures. None of them leave a ledger change behind.
var (
	ErrTemplateNotFound     = errors.New("template not found")
	ErrModelNotFound        = errors.New("model not found")
	ErrPremiumLocked        = errors.New("premium template requires a registered account")
	ErrInsufficientCredits  = ledger.ErrInsufficientCredits
	ErrFaceNotDetected      = errors.New("no face detected in the source image")
	ErrContentPolicyBlocked = errors.New("image rejected by content policy")
	ErrGenerationFailed     = errors.New("generation failed")
	ErrInvalidSelection     = errors.New("invalid face selection")
	ErrGenerationNotFound   = errors.New("generation not found")
	ErrNotOwner             = errors.New("generation belongs to another account")
)

// Billing webhook failures.
var (
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")
	ErrMissingPaymentMetadata  = payments.ErrMissingMetadata
)

var (
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrInvalidInput         = errors.New("invalid input")
	ErrRegistrationRequired = errors.New("a registered account is required")
	ErrAccountNotFound      = ledger.ErrAccountNotFound
	ErrPlanNotFound         = errors.New("plan not found")
	ErrPromoInvalid         = errors.New("promo code invalid")
	ErrPromoAlreadyRedeemed = errors.New("promo code already redeemed")
	ErrPromoExhausted       = errors.New("promo code exhausted")
)
