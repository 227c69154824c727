package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/digkill/chimeralens/internal/auth"
	"github.com/digkill/chimeralens/internal/database"
	"github.com/digkill/chimeralens/internal/id"
	"github.com/digkill/chimeralens/internal/models"
	"github.com/digkill/chimeralens/internal/repository"
)

const (
	minPasswordLength = 8
	maxNameLength     = 100
)

type AuthService struct {
	log             *slog.Logger
	accounts        *repository.AccountRepository
	signer          *auth.Signer
	startingCredits int
}

type RegisterInput struct {
	Email      string
	Password   string
	Name       string
	GuestToken string
}

// AuthResult carries the issued token. Upgraded is set when an existing guest
// row became the registered account.
type AuthResult struct {
	Account  *models.Account `json:"account"`
	Token    string          `json:"accessToken"`
	Upgraded bool            `json:"upgraded"`
}

type Profile struct {
	*models.Account
	HasPassword bool `json:"hasPassword"`
}

func NewAuthService(log *slog.Logger, accounts *repository.AccountRepository, signer *auth.Signer, startingCredits int) *AuthService {
	return &AuthService{log: log, accounts: accounts, signer: signer, startingCredits: startingCredits}
}

// Register creates a registered account. When the caller presents a guest
// token, that guest row is upgraded in place and keeps its id, credits and
// generations.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	existing, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	name := strings.TrimSpace(in.Name)

	if in.GuestToken != "" {
		account, err := s.upgradeGuest(ctx, in.GuestToken, email, name, string(hash))
		if err != nil {
			return nil, err
		}
		if account != nil {
			return s.issue(account, true)
		}
	}

	account, err := s.accounts.Create(ctx, &models.Account{
		ID:           id.NewAccountID(),
		IsGuest:      false,
		Credits:      s.startingCredits,
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
	})
	if err != nil {
		if database.IsDuplicateKey(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	s.log.Info("account registered", "account_id", account.ID)
	return s.issue(account, false)
}

// upgradeGuest returns nil when the token does not name a guest, so the caller
// falls back to a fresh account.
func (s *AuthService) upgradeGuest(ctx context.Context, token, email, name, hash string) (*models.Account, error) {
	guest, err := s.accounts.FindByGuestToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if guest == nil || !guest.IsGuest {
		return nil, nil
	}
	ok, err := s.accounts.UpgradeGuest(ctx, guest.ID, email, name, hash)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	s.log.Info("guest upgraded", "account_id", guest.ID)
	return s.accounts.FindByID(ctx, guest.ID)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account == nil || account.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("compare password: %w", err)
	}
	return s.issue(account, false)
}

func (s *AuthService) Me(account *models.Account) *Profile {
	return &Profile{Account: account, HasPassword: account.PasswordHash != ""}
}

// ChangePassword sets or replaces the password of a registered account. When
// a password already exists, current must match it.
func (s *AuthService) ChangePassword(ctx context.Context, account *models.Account, current, next string) error {
	if account.IsGuest {
		return ErrRegistrationRequired
	}
	if len(next) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if account.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(current)); err != nil {
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return ErrInvalidCredentials
			}
			return fmt.Errorf("compare password: %w", err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	ok, err := s.accounts.UpdatePasswordHash(ctx, account.ID, string(hash))
	if err != nil {
		return err
	}
	if !ok {
		return ErrAccountNotFound
	}
	account.PasswordHash = string(hash)
	s.log.Info("password changed", "account_id", account.ID)
	return nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, account *models.Account, name string) (*Profile, error) {
	if account.IsGuest {
		return nil, ErrRegistrationRequired
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidInput, maxNameLength)
	}
	ok, err := s.accounts.UpdateName(ctx, account.ID, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotFound
	}
	updated, err := s.accounts.FindByID(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrAccountNotFound
	}
	return s.Me(updated), nil
}

func (s *AuthService) issue(account *models.Account, upgraded bool) (*AuthResult, error) {
	token, err := s.signer.Sign(account.ID, account.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Account: account, Token: token, Upgraded: upgraded}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return email, nil
}
