// Package traders manages trader profiles and their reputation aggregate state.
//
// A trader's averageRating, reviewCount, certification tier, and credential
// token are derived fields owned by the review pipeline: only
// UpdateAggregates may write them, and it overwrites rather than increments
// so the stored values always match a full recompute.
package traders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/quantumforge/platform/internal/idgen"
	"github.com/quantumforge/platform/internal/reputation"
	"github.com/quantumforge/platform/internal/validation"
)

var (
	ErrNotFound      = errors.New("trader not found")
	ErrTraderExists  = errors.New("trader already registered")
	ErrMissingWallet = errors.New("wallet address is required")
)

// Trader is a trading-community member with a public profile.
type Trader struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role"` // "trader" or "user"
	WalletAddress string `json:"walletAddress,omitempty"`
	Specialty     string `json:"specialty,omitempty"`
	Performance   string `json:"performance,omitempty"`
	Followers     int    `json:"followers"`
	Following     int    `json:"following"`

	// Aggregate state, owned by the review pipeline.
	AverageRating   float64         `json:"averageRating"`
	ReviewCount     int             `json:"reviewCount"`
	Certification   reputation.Tier `json:"certification,omitempty"`
	CertificationTx string          `json:"certificationTx,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// Aggregates is the derived state written back after each review.
type Aggregates struct {
	AverageRating float64
	ReviewCount   int
	Tier          reputation.Tier
	Token         string // tx hash; empty when Tier is None
}

// Store persists trader profiles.
type Store interface {
	Create(ctx context.Context, trader *Trader) error
	Get(ctx context.Context, id string) (*Trader, error)
	GetByWallet(ctx context.Context, walletAddress string) (*Trader, error)
	List(ctx context.Context, limit, offset int) ([]*Trader, error)
	Update(ctx context.Context, trader *Trader) error

	// UpdateAggregates overwrites the derived reputation fields for the
	// trader identified by wallet address. Returns ErrNotFound if no such
	// trader exists.
	UpdateAggregates(ctx context.Context, walletAddress string, agg Aggregates) error
}

// Service provides trader profile operations.
type Service struct {
	store Store
}

// NewService creates a trader service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Register creates a trader profile. Wallet addresses are stored lowercased
// so lookups are case-insensitive.
func (s *Service) Register(ctx context.Context, name, email, role, walletAddress string) (*Trader, error) {
	if walletAddress == "" {
		return nil, ErrMissingWallet
	}
	if role == "" {
		role = "trader"
	}

	trader := &Trader{
		ID:            idgen.WithPrefix("usr_"),
		Name:          name,
		Email:         email,
		Role:          role,
		WalletAddress: validation.SanitizeAddress(walletAddress),
		CreatedAt:     time.Now(),
	}

	if err := s.store.Create(ctx, trader); err != nil {
		return nil, err
	}
	return trader, nil
}

// FindByWallet looks up a trader by wallet address, case-insensitively.
func (s *Service) FindByWallet(ctx context.Context, walletAddress string) (*Trader, error) {
	return s.store.GetByWallet(ctx, strings.ToLower(walletAddress))
}

// List returns traders ordered by reputation.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Trader, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, limit, offset)
}

// FindOrCreateByWallet returns the trader for a wallet, creating a bare
// trader profile on first sight. Used by wallet sign-in: a wallet that has
// never been seen becomes a trader named after its address.
func (s *Service) FindOrCreateByWallet(ctx context.Context, walletAddress string) (*Trader, bool, error) {
	addr := strings.ToLower(walletAddress)

	trader, err := s.store.GetByWallet(ctx, addr)
	if err == nil {
		return trader, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	trader, err = s.Register(ctx, addr, "", "trader", addr)
	if err != nil {
		return nil, false, err
	}
	return trader, true, nil
}

// TouchLogin records a successful login.
func (s *Service) TouchLogin(ctx context.Context, trader *Trader) error {
	now := time.Now()
	trader.LastLoginAt = &now
	return s.store.Update(ctx, trader)
}

// UpdateProfile applies caller-editable profile fields. Aggregate fields
// are never touched here; the review pipeline owns them.
func (s *Service) UpdateProfile(ctx context.Context, walletAddress string, upd ProfileUpdate) (*Trader, error) {
	trader, err := s.store.GetByWallet(ctx, strings.ToLower(walletAddress))
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		trader.Name = *upd.Name
	}
	if upd.Email != nil {
		trader.Email = *upd.Email
	}
	if upd.Specialty != nil {
		trader.Specialty = *upd.Specialty
	}
	if upd.Performance != nil {
		trader.Performance = *upd.Performance
	}

	if err := s.store.Update(ctx, trader); err != nil {
		return nil, err
	}
	return trader, nil
}

// ProfileUpdate holds optional profile field changes. Nil means unchanged.
type ProfileUpdate struct {
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	Specialty   *string `json:"specialty"`
	Performance *string `json:"performance"`
}
