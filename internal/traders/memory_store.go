package traders

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for tests and demo mode.
type MemoryStore struct {
	mu      sync.RWMutex
	traders map[string]*Trader // id -> trader
}

// NewMemoryStore creates a new in-memory trader store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{traders: make(map[string]*Trader)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(ctx context.Context, trader *Trader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr := strings.ToLower(trader.WalletAddress)
	for _, t := range m.traders {
		if t.WalletAddress == addr {
			return ErrTraderExists
		}
	}
	trader.WalletAddress = addr
	if trader.CreatedAt.IsZero() {
		trader.CreatedAt = time.Now()
	}
	copy := *trader
	m.traders[trader.ID] = &copy
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Trader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	trader, ok := m.traders[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *trader
	return &copy, nil
}

func (m *MemoryStore) GetByWallet(ctx context.Context, walletAddress string) (*Trader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	addr := strings.ToLower(walletAddress)
	for _, trader := range m.traders {
		if trader.WalletAddress == addr {
			copy := *trader
			return &copy, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) List(ctx context.Context, limit, offset int) ([]*Trader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var traders []*Trader
	for _, trader := range m.traders {
		copy := *trader
		traders = append(traders, &copy)
	}

	// Best-rated first, ties broken by review volume.
	sort.Slice(traders, func(i, j int) bool {
		if traders[i].AverageRating != traders[j].AverageRating {
			return traders[i].AverageRating > traders[j].AverageRating
		}
		return traders[i].ReviewCount > traders[j].ReviewCount
	})

	if offset >= len(traders) {
		return []*Trader{}, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(traders) {
		end = len(traders)
	}
	return traders[offset:end], nil
}

func (m *MemoryStore) Update(ctx context.Context, trader *Trader) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.traders[trader.ID]
	if !ok {
		return ErrNotFound
	}

	trader.WalletAddress = strings.ToLower(trader.WalletAddress)
	// Derived fields are not writable through Update.
	trader.AverageRating = existing.AverageRating
	trader.ReviewCount = existing.ReviewCount
	trader.Certification = existing.Certification
	trader.CertificationTx = existing.CertificationTx

	copy := *trader
	m.traders[trader.ID] = &copy
	return nil
}

func (m *MemoryStore) UpdateAggregates(ctx context.Context, walletAddress string, agg Aggregates) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr := strings.ToLower(walletAddress)
	for _, trader := range m.traders {
		if trader.WalletAddress == addr {
			trader.AverageRating = agg.AverageRating
			trader.ReviewCount = agg.ReviewCount
			trader.Certification = agg.Tier
			trader.CertificationTx = agg.Token
			return nil
		}
	}
	return ErrNotFound
}
