// Package auth provides wallet-based authentication for Quantum Forge.
//
// Authentication model:
// - Public endpoints (trader directory, reviews): no auth required
// - Profile mutations: require a session token tied to the wallet
// - Session tokens are issued on wallet sign-in (EIP-191 signature)
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/quantumforge/platform/internal/idgen"
)

// Errors
var (
	ErrNoToken       = errors.New("session token required")
	ErrInvalidToken  = errors.New("invalid or expired session token")
	ErrTokenNotFound = errors.New("session token not found")
)

// DefaultTokenTTL is how long a session token stays valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Token represents a wallet session token.
type Token struct {
	ID            string     `json:"id"`
	Hash          string     `json:"-"` // SHA256 hash of the raw token (stored)
	WalletAddress string     `json:"walletAddress"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastUsed      time.Time  `json:"lastUsed,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	Revoked       bool       `json:"revoked"`
}

// Store persists session tokens
type Store interface {
	Create(ctx context.Context, token *Token) error
	GetByHash(ctx context.Context, hash string) (*Token, error)
	GetByWallet(ctx context.Context, walletAddress string) ([]*Token, error)
	Update(ctx context.Context, token *Token) error
	Delete(ctx context.Context, id string) error
}

// Manager handles session token issuance and validation.
type Manager struct {
	store Store
	ttl   time.Duration
}

// NewManager creates a new auth manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store, ttl: DefaultTokenTTL}
}

// IssueToken creates a session token for a wallet after a verified sign-in.
// Returns the raw token (shown once) and the stored metadata.
func (m *Manager) IssueToken(ctx context.Context, walletAddress string) (rawToken string, token *Token, err error) {
	rawToken = "qft_" + idgen.Hex(32)

	expires := time.Now().Add(m.ttl)
	token = &Token{
		ID:            idgen.WithPrefix("tok_"),
		Hash:          hashToken(rawToken),
		WalletAddress: strings.ToLower(walletAddress),
		CreatedAt:     time.Now(),
		ExpiresAt:     &expires,
	}

	if err := m.store.Create(ctx, token); err != nil {
		return "", nil, err
	}

	return rawToken, token, nil
}

// ValidateToken validates a raw session token and returns its metadata.
func (m *Manager) ValidateToken(ctx context.Context, rawToken string) (*Token, error) {
	if rawToken == "" {
		return nil, ErrNoToken
	}

	rawToken = strings.TrimPrefix(rawToken, "Bearer ")
	rawToken = strings.TrimSpace(rawToken)

	if !strings.HasPrefix(rawToken, "qft_") {
		return nil, ErrInvalidToken
	}

	hash := hashToken(rawToken)
	token, err := m.store.GetByHash(ctx, hash)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if token.Revoked {
		return nil, ErrInvalidToken
	}
	if token.ExpiresAt != nil && time.Now().After(*token.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	// Update last used (fire and forget)
	go func() {
		token.LastUsed = time.Now()
		_ = m.store.Update(context.Background(), token)
	}()

	return token, nil
}

// RevokeToken revokes a session token owned by the given wallet.
func (m *Manager) RevokeToken(ctx context.Context, tokenID, walletAddress string) error {
	tokens, err := m.store.GetByWallet(ctx, strings.ToLower(walletAddress))
	if err != nil {
		return err
	}

	for _, tok := range tokens {
		if tok.ID == tokenID {
			tok.Revoked = true
			return m.store.Update(ctx, tok)
		}
	}

	return ErrTokenNotFound
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*Token // by ID
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]*Token),
	}
}

func (s *MemoryStore) Create(ctx context.Context, token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = token
	return nil
}

func (s *MemoryStore) GetByHash(ctx context.Context, hash string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tok := range s.tokens {
		if tok.Hash == hash {
			return tok, nil
		}
	}
	return nil, ErrTokenNotFound
}

func (s *MemoryStore) GetByWallet(ctx context.Context, walletAddress string) ([]*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*Token
	for _, tok := range s.tokens {
		if strings.EqualFold(tok.WalletAddress, walletAddress) {
			result = append(result, tok)
		}
	}
	return result, nil
}

func (s *MemoryStore) Update(ctx context.Context, token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = token
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, id)
	return nil
}
