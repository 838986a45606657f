package memrepo

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/storage"
)

var _ storage.Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is an in-memory implementation of storage.Repo
type InMemoryRepo struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// New creates a new in-memory repository
func New() *InMemoryRepo {
	return &InMemoryRepo{
		values: make(map[string][]byte),
	}
}

func (r *InMemoryRepo) Load(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, fmt.Errorf("key is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.values[key]
	if !ok {
		return nil, errors.ErrNotFound
	}
	// Copy so callers cannot modify stored bytes
	return append([]byte(nil), v...), nil
}

func (r *InMemoryRepo) Save(_ context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[key] = append([]byte(nil), data...)
	return nil
}

func (r *InMemoryRepo) Delete(_ context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.values, key) // Already absent is not an error
	return nil
}
