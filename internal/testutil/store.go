package testutil

import (
	"context"
	"sync"

	"github.com/Agrid-Dev/thermoguard/internal/ports"
)

// FakeStore is an in-memory ports.Store whose failures can be switched on.
type FakeStore struct {
	mu   sync.Mutex
	Data map[string][]byte

	LoadErr error
	SaveErr error
	// Block, when set, holds every Save until it is closed.
	Block chan struct{}

	SaveCalls int
	// History keeps every successful save in order.
	History [][]byte
}

func NewFakeStore() *FakeStore {
	return &FakeStore{Data: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (s *FakeStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Data[key]
	return append([]byte(nil), b...), ok
}

func (s *FakeStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	b, ok := s.Data[key]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (s *FakeStore) Save(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	block := s.Block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveCalls++
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.Data[key] = append([]byte(nil), data...)
	s.History = append(s.History, s.Data[key])
	return nil
}
