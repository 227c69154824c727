// Package id generates the prefixed, K-sortable identifiers used as primary
// keys for every persisted entity ("acct_01h2xcejqtf2nbrexx3vqjhp41").
package id

import (
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in an identifier.
type Prefix string

const (
	PrefixAccount      Prefix = "acct"
	PrefixGeneration   Prefix = "gen"
	PrefixOrder        Prefix = "ord"
	PrefixPlan         Prefix = "plan"
	PrefixPromo        Prefix = "promo"
	PrefixWebhookEvent Prefix = "whevt"
)

// New generates a new identifier with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) string {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return tid.String()
}

// Validate reports whether s is a well-formed identifier carrying the expected prefix.
func Validate(s string, expected Prefix) error {
	if s == "" {
		return fmt.Errorf("id: empty identifier")
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return fmt.Errorf("id: parse %q: %w", s, err)
	}
	if tid.Prefix() != string(expected) {
		return fmt.Errorf("id: expected prefix %q, got %q", expected, tid.Prefix())
	}
	return nil
}

// HasPrefix is a cheap check used on request paths before hitting the store.
func HasPrefix(s string, prefix Prefix) bool {
	return strings.HasPrefix(s, string(prefix)+"_")
}

func NewAccountID() string      { return New(PrefixAccount) }
func NewGenerationID() string   { return New(PrefixGeneration) }
func NewOrderID() string        { return New(PrefixOrder) }
func NewPlanID() string         { return New(PrefixPlan) }
func NewPromoID() string        { return New(PrefixPromo) }
func NewWebhookEventID() string { return New(PrefixWebhookEvent) }
