package mocks

import (
	"context"
	"sync"

	"github.com/xkilldash9x/relist-cli/api/schemas"
)

// Record is a stored value and its content type.
type Record struct {
	Value       []byte
	ContentType string
}

// MemoryStore is an in-memory schemas.KeyValueStore that counts writes.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	writes  map[string]int

	// SetErr, when set, fails every write to the listed keys.
	SetErr map[string]error
}

var _ schemas.KeyValueStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}, writes: map[string]int{}}
}

func (s *MemoryStore) GetValue(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), r.Value...), true, nil
}

func (s *MemoryStore) SetValue(_ context.Context, key string, value []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.SetErr[key]; err != nil {
		return err
	}
	s.records[key] = Record{Value: append([]byte(nil), value...), ContentType: contentType}
	s.writes[key]++
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Get returns the record stored under key.
func (s *MemoryStore) Get(key string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	return r, ok
}

// Writes returns how many times key was written.
func (s *MemoryStore) Writes(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[key]
}
