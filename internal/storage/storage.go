package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name
var ErrUnknownBackend = errors.New("unknown storage backend")

// KV is a durable string key-value store holding collection snapshots
type KV interface {
	// Get returns the value for key and whether it was present
	Get(ctx context.Context, key string) (string, bool, error)
	// Set overwrites the value for key
	Set(ctx context.Context, key, value string) error
}

// Options selects and configures a backend
type Options struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open builds the configured backend
func Open(opts Options) (KV, error) {
	switch opts.Backend {
	case "", "file":
		path := opts.Path
		if path == "" {
			path = "data"
		}
		return NewFileStore(path)
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(opts.RedisAddr, opts.RedisPassword, opts.RedisDB), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, opts.Backend)
	}
}

// MemoryStore keeps values in process memory
type MemoryStore struct {
	values map[string]string
	mu     sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, exists := s.values[key]
	return value, exists, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
