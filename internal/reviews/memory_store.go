package reviews

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory review store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	reviews []*Review
}

// NewMemoryStore creates an empty in-memory review store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Append(ctx context.Context, review *Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *review
	m.reviews = append(m.reviews, &clone)
	return nil
}

func (m *MemoryStore) ListBySubject(ctx context.Context, subjectID string) ([]*Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Review
	for _, r := range m.reviews {
		if r.SubjectID == subjectID {
			clone := *r
			out = append(out, &clone)
		}
	}

	// Newest first for listing; callers aggregating over the history
	// do not depend on order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}
