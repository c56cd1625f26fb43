package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/pegdao/policy-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	ops    []model.Operation
	epochs []model.EpochRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertOperation(_ context.Context, op *model.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, *op)
	return nil
}

func (s *MemoryStore) ListOperationsByAccount(_ context.Context, account string) ([]model.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []model.Operation
	for _, op := range s.ops {
		if op.Account == account {
			result = append(result, op)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListOperationsByKind(_ context.Context, kind string) ([]model.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []model.Operation
	for _, op := range s.ops {
		if op.Kind == kind {
			result = append(result, op)
		}
	}
	return result, nil
}

func (s *MemoryStore) InsertEpochRecord(_ context.Context, rec *model.EpochRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs = append(s.epochs, *rec)
	return nil
}

func (s *MemoryStore) ListEpochRecords(_ context.Context) ([]model.EpochRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.EpochRecord, len(s.epochs))
	copy(out, s.epochs)
	return out, nil
}

func (s *MemoryStore) LatestEpochRecord(_ context.Context) (*model.EpochRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.epochs) == 0 {
		return nil, fmt.Errorf("no epoch records")
	}
	rec := s.epochs[len(s.epochs)-1]
	return &rec, nil
}
