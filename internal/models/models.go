package models

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Account is a guest or registered identity holding a credit balance.
type Account struct {
	ID            string    `json:"id"`
	GuestToken    string    `json:"-"`
	Fingerprint   string    `json:"-"`
	CreatedFromIP string    `json:"-"`
	IsGuest       bool      `json:"isGuest"`
	Credits       int       `json:"credits"`
	Email         string    `json:"email,omitempty"`
	Name          string    `json:"name,omitempty"`
	PasswordHash  string    `json:"-"`
	Role          Role      `json:"role"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Generation is one completed, credit-debited unit of AI work.
type Generation struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"ownerAccountId"`
	TemplateID       string    `json:"templateId"`
	ModelKey         string    `json:"modelKey"`
	SourceImageURL   string    `json:"sourceImageUrl"`
	TemplateImageURL string    `json:"templateImageUrl"`
	ResultImageURL   string    `json:"resultImageUrl"`
	Cost             int       `json:"cost"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Order records one completed credit purchase.
type Order struct {
	ID                 string    `json:"id"`
	AccountID          string    `json:"ownerAccountId"`
	PlanID             string    `json:"planId,omitempty"`
	CreditsGranted     int       `json:"creditsGranted"`
	Amount             int64     `json:"amount"`
	Currency           string    `json:"currency"`
	ExternalCheckoutID string    `json:"externalCheckoutId"`
	CreatedAt          time.Time `json:"createdAt"`
}

// Plan is a purchasable credit package backed by a payment-provider price.
type Plan struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Currency        string    `json:"currency"`
	PriceMinorUnits int       `json:"priceMinorUnits"`
	Credits         int       `json:"credits"`
	StripePriceID   string    `json:"stripePriceId"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type PromoCode struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	MaxUses   int       `json:"maxUses"`
	Uses      int       `json:"uses"`
	CreatedAt time.Time `json:"createdAt"`
}

// Template is a catalog entry describing a target style image.
type Template struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Style     string `json:"style"`
	ImageURL  string `json:"imageUrl"`
	IsPremium bool   `json:"isPremium"`
	Cost      int    `json:"cost,omitempty"`
}

// EffectiveCost is the template's credit price; unspecified costs charge one credit.
func (t Template) EffectiveCost() int {
	if t.Cost <= 0 {
		return 1
	}
	return t.Cost
}

// FaceSelection is a caller-chosen sub-region of the source image, in pixels.
type FaceSelection struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}
