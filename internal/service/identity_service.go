package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/digkill/chimeralens/internal/id"
	"github.com/digkill/chimeralens/internal/models"
	"github.com/digkill/chimeralens/internal/repository"
)

// Hints are the identity signals carried by an anonymous request.
type Hints struct {
	GuestToken  string
	Fingerprint string
	SourceIP    string
}

// Source names the step that produced a resolution.
type Source string

const (
	SourceBearer      Source = "bearer"
	SourceToken       Source = "guest_token"
	SourceFingerprint Source = "fingerprint"
	SourceIP          Source = "ip"
	SourceProvisioned Source = "provisioned"
)

type Resolution struct {
	Account *models.Account
	Source  Source
}

type strategy struct {
	source Source
	try    func(ctx context.Context, h Hints) (*models.Account, error)
}

// IdentityService maps request hints to exactly one account. Strategies run
// in a fixed order and the first match wins.
type IdentityService struct {
	log             *slog.Logger
	accounts        *repository.AccountRepository
	startingCredits int
	window          time.Duration
	now             func() time.Time
	group           singleflight.Group
	chain           []strategy
}

func NewIdentityService(log *slog.Logger, accounts *repository.AccountRepository, startingCredits int, window time.Duration) *IdentityService {
	if window <= 0 {
		window = 24 * time.Hour
	}
	s := &IdentityService{
		log:             log,
		accounts:        accounts,
		startingCredits: startingCredits,
		window:          window,
		now:             time.Now,
	}
	s.chain = []strategy{
		{SourceToken, s.tryToken},
		{SourceFingerprint, s.tryFingerprint},
		{SourceIP, s.tryIP},
		{SourceProvisioned, s.provision},
	}
	return s
}

// Resolve never fails for lack of hints: with nothing to match it provisions
// a fresh guest.
func (s *IdentityService) Resolve(ctx context.Context, h Hints) (*Resolution, error) {
	for _, step := range s.chain {
		account, err := step.try(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("resolve identity via %s: %w", step.source, err)
		}
		if account != nil {
			return &Resolution{Account: account, Source: step.source}, nil
		}
	}
	return nil, fmt.Errorf("resolve identity: no strategy matched")
}

// ByID loads the account behind an already verified bearer token.
func (s *IdentityService) ByID(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (s *IdentityService) tryToken(ctx context.Context, h Hints) (*models.Account, error) {
	if h.GuestToken == "" {
		return nil, nil
	}
	return s.accounts.FindByGuestToken(ctx, h.GuestToken)
}

func (s *IdentityService) tryFingerprint(ctx context.Context, h Hints) (*models.Account, error) {
	if h.Fingerprint == "" {
		return nil, nil
	}
	return s.accounts.FindRecentGuestByFingerprint(ctx, h.Fingerprint, s.since())
}

func (s *IdentityService) tryIP(ctx context.Context, h Hints) (*models.Account, error) {
	if h.SourceIP == "" {
		return nil, nil
	}
	return s.accounts.FindRecentGuestByIP(ctx, h.SourceIP, s.since())
}

// provision creates a guest. Concurrent first requests from one device within
// this process share a single insert; across instances they may still race.
func (s *IdentityService) provision(ctx context.Context, h Hints) (*models.Account, error) {
	key := ""
	switch {
	case h.Fingerprint != "":
		key = "fp:" + h.Fingerprint
	case h.SourceIP != "":
		key = "ip:" + h.SourceIP
	}
	if key == "" {
		return s.createGuest(ctx, h)
	}

	// The shared insert must not fail for followers when the leader's
	// request is cancelled.
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.createGuest(context.WithoutCancel(ctx), h)
	})
	if err != nil {
		return nil, err
	}
	account := *v.(*models.Account)
	return &account, nil
}

func (s *IdentityService) createGuest(ctx context.Context, h Hints) (*models.Account, error) {
	account := &models.Account{
		ID:            id.NewAccountID(),
		GuestToken:    uuid.NewString(),
		Fingerprint:   h.Fingerprint,
		CreatedFromIP: h.SourceIP,
		IsGuest:       true,
		Credits:       s.startingCredits,
		Role:          models.RoleUser,
		CreatedAt:     s.now().UTC().Truncate(time.Microsecond),
	}
	created, err := s.accounts.Create(ctx, account)
	if err != nil {
		return nil, err
	}
	s.log.Info("guest provisioned", "account_id", created.ID, "has_fingerprint", h.Fingerprint != "", "has_ip", h.SourceIP != "")
	return created, nil
}

func (s *IdentityService) since() time.Time {
	return s.now().UTC().Add(-s.window).Truncate(time.Microsecond)
}
