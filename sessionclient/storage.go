package sessionclient

import (
	"fmt"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/storage"
	"github.com/jrsteele09/go-session-client/storage/filerepo"
	"github.com/jrsteele09/go-session-client/storage/memrepo"
	"github.com/jrsteele09/go-session-client/storage/redisrepo"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "onflix:"

// NewRepo builds the durable storage selected by cfg. The returned closer
// releases any connection the repo holds.
func NewRepo(cfg config.StorageConfig) (storage.Repo, func() error, error) {
	noop := func() error { return nil }

	switch cfg.GetStorageBackend() {
	case config.StorageMemory:
		return memrepo.New(), noop, nil
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
		})
		return redisrepo.New(client, redisKeyPrefix, 0), client.Close, nil
	default:
		repo, err := filerepo.New(cfg.GetStoragePath(), cfg.GetStoragePassphrase())
		if err != nil {
			return nil, nil, fmt.Errorf("sessionclient.NewRepo: %w", err)
		}
		return repo, noop, nil
	}
}
