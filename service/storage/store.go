package storage

import (
	"context"
	"sync"
)

// KeyStore is the durable key space the client keeps between runs.
// Get reports ok=false for a missing key rather than an error.
type KeyStore interface {
	Get(ctx context.Context, key string) (val string, ok bool, err error)
	Set(ctx context.Context, key, val string) error
	Delete(ctx context.Context, key string) error
}

// Memory is a process-local KeyStore, used when nothing durable is configured.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

var _ KeyStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (s *Memory) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *Memory) Set(_ context.Context, key, val string) error {
	s.mu.Lock()
	s.m[key] = val
	s.mu.Unlock()
	return nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}
