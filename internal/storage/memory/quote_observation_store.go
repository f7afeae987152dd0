package memory

import (
	"context"
	"sort"
	"sync"

	"solana-threshold-trader/internal/domain"
	"solana-threshold-trader/internal/storage"
)

// QuoteObservationStore is an in-memory implementation of storage.QuoteObservationStore.
type QuoteObservationStore struct {
	mu   sync.RWMutex
	data map[string]*domain.QuoteObservation // keyed by observation_id
}

// NewQuoteObservationStore creates a new in-memory quote observation store.
func NewQuoteObservationStore() *QuoteObservationStore {
	return &QuoteObservationStore{
		data: make(map[string]*domain.QuoteObservation),
	}
}

// InsertBulk adds multiple observations atomically. Fails entire batch on any duplicate.
func (s *QuoteObservationStore) InsertBulk(_ context.Context, observations []*domain.QuoteObservation) error {
	if len(observations) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(observations))

	// First pass: check for duplicates (existing + intra-batch)
	for _, o := range observations {
		if o == nil || o.ObservationID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[o.ObservationID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[o.ObservationID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[o.ObservationID] = struct{}{}
	}

	// Second pass: insert all
	for _, o := range observations {
		copy := *o
		s.data[o.ObservationID] = &copy
	}

	return nil
}

// GetByTimeRange retrieves observations within [start, end], ordered by observed_at ASC.
func (s *QuoteObservationStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.QuoteObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.QuoteObservation
	for _, o := range s.data {
		if o.ObservedAt >= start && o.ObservedAt <= end {
			copy := *o
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ObservedAt != result[j].ObservedAt {
			return result[i].ObservedAt < result[j].ObservedAt
		}
		return result[i].ObservationID < result[j].ObservationID
	})

	return result, nil
}

var _ storage.QuoteObservationStore = (*QuoteObservationStore)(nil)
