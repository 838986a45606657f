package sessionclient_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/sessionclient"
	"github.com/jrsteele09/go-session-client/storage/filerepo"
	"github.com/jrsteele09/go-session-client/storage/memrepo"
	"github.com/jrsteele09/go-session-client/storage/redisrepo"
	"github.com/stretchr/testify/require"
)

func TestNewRepo(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "memory")
		repo, closer, err := sessionclient.NewRepo(config.New())
		require.NoError(t, err)
		require.IsType(t, &memrepo.InMemoryRepo{}, repo)
		require.NoError(t, closer())
	})

	t.Run("file", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "file")
		t.Setenv("STORAGE_PATH", t.TempDir())
		t.Setenv("STORAGE_PASSPHRASE", "correct horse")
		repo, closer, err := sessionclient.NewRepo(config.New())
		require.NoError(t, err)
		require.IsType(t, &filerepo.FileRepo{}, repo)
		require.NoError(t, closer())
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		t.Setenv("STORAGE_BACKEND", "redis")
		t.Setenv("REDIS_ADDR", mr.Addr())
		repo, closer, err := sessionclient.NewRepo(config.New())
		require.NoError(t, err)
		require.IsType(t, &redisrepo.RedisRepo{}, repo)

		require.NoError(t, repo.Save(context.Background(), "onflix_session", []byte(`{}`)))
		require.True(t, mr.Exists("onflix:onflix_session"))
		require.NoError(t, closer())
	})
}
