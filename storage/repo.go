package storage

import "context"

// Repo is the durable key/value storage a session is persisted to between runs.
// Implementations must return errors.ErrNotFound from Load when the key is absent
// and must treat Delete of an absent key as success.
type Repo interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}
