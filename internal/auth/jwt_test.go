package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/digkill/chimeralens/internal/models"
)

func TestSignAndParse(t *testing.T) {
	s := NewSigner("secret", time.Hour)
	tok, err := s.Sign("acct_123", models.RoleUser)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := s.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.AccountID != "acct_123" || claims.Role != models.RoleUser {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseRejects(t *testing.T) {
	s := NewSigner("secret", time.Hour)
	good, _ := s.Sign("acct_1", models.RoleUser)

	expired := NewSigner("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := expired.Sign("acct_1", models.RoleUser)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", mustSign(t, NewSigner("other", time.Hour))},
		{"expired", old},
		{"tampered", good + "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Parse(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func mustSign(t *testing.T, s *Signer) string {
	t.Helper()
	tok, err := s.Sign("acct_1", models.RoleUser)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}
