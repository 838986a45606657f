package sessionclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/internal/fakeapi"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/sessionclient"
	"github.com/jrsteele09/go-session-client/storage"
	"github.com/jrsteele09/go-session-client/storage/memrepo"
	"github.com/stretchr/testify/require"
)

type clientFixture struct {
	api    *fakeapi.Server
	srv    *httptest.Server
	repo   storage.Repo
	client *sessionclient.Client
	ended  atomic.Int64
}

func newClientFixture(t *testing.T) *clientFixture {
	t.Helper()
	f := &clientFixture{api: fakeapi.New(), repo: memrepo.New()}
	f.api.AddUser(viewer.Email, "secret", viewer)
	f.srv = httptest.NewServer(f.api.Handler())
	t.Cleanup(f.srv.Close)

	t.Setenv("BASE_URL", f.srv.URL)
	t.Setenv("STORAGE_BACKEND", "memory")
	f.client = f.newClient(t)
	return f
}

// newClient builds another client over the same fake API and storage, the way
// a restarted process would.
func (f *clientFixture) newClient(t *testing.T) *sessionclient.Client {
	t.Helper()
	c, err := sessionclient.New(config.New(), sessionclient.WithRepo(f.repo), sessionclient.WithLogger(nopLogger))
	require.NoError(t, err)
	c.OnSessionEnd(func(error) { f.ended.Add(1) })
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientLoginFetchLogout(t *testing.T) {
	f := newClientFixture(t)
	ctx := context.Background()

	sess, err := f.client.Login(ctx, viewer.Email, "secret")
	require.NoError(t, err)
	require.Equal(t, viewer, sess.Principal)
	require.True(t, sess.CanStream(time.Now()))

	var profile session.Principal
	require.NoError(t, f.client.GetJSON(ctx, "/api/v1/user/profile", &profile))
	require.Equal(t, viewer.ID, profile.ID)

	var saved map[string]string
	require.NoError(t, f.client.PostJSON(ctx, "/api/v1/content/5/progress", map[string]int{"position": 30}, &saved))
	require.Equal(t, `{"position":30}`, saved["body"])

	f.client.Logout(ctx)
	_, ok := f.client.Session()
	require.False(t, ok)
	require.Zero(t, f.ended.Load())

	logout := f.api.Calls(authapi.PathLogout)
	require.Len(t, logout, 1)
	require.Equal(t, sess.AccessToken, logout[0].Token)
	require.Equal(t, http.StatusOK, logout[0].Status)

	_, err = f.repo.Load(ctx, config.New().GetStorageKey())
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestClientLoginFailure(t *testing.T) {
	f := newClientFixture(t)

	_, err := f.client.Login(context.Background(), viewer.Email, "wrong")
	require.ErrorIs(t, err, errors.ErrUnauthorized)

	var apiErr *authapi.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "Invalid credentials", apiErr.Message)

	_, ok := f.client.Session()
	require.False(t, ok)
	require.Zero(t, f.api.RefreshCalls())
}

func TestClientRegister(t *testing.T) {
	f := newClientFixture(t)

	sess, err := f.client.Register(context.Background(), authapi.RegisterRequest{
		Email:     "new@example.com",
		Password:  "secret",
		FirstName: "New",
		LastName:  "Viewer",
	})
	require.NoError(t, err)
	require.Equal(t, "new@example.com", sess.Principal.Email)
	require.False(t, sess.CanStream(time.Now()))

	_, err = f.client.Register(context.Background(), authapi.RegisterRequest{Email: "new@example.com", Password: "secret"})
	var apiErr *authapi.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.Status)
}

func TestClientLogoutIsBestEffort(t *testing.T) {
	f := newClientFixture(t)
	_, err := f.client.Login(context.Background(), viewer.Email, "secret")
	require.NoError(t, err)

	f.srv.Close()
	f.client.Logout(context.Background())

	_, ok := f.client.Session()
	require.False(t, ok)
	require.Zero(t, f.ended.Load())
}

func TestClientRefreshFailureSignalsOnce(t *testing.T) {
	f := newClientFixture(t)
	_, err := f.client.Login(context.Background(), viewer.Email, "secret")
	require.NoError(t, err)
	f.api.ExpireAccessTokens()
	f.api.FailRefresh(http.StatusUnauthorized)

	err = f.client.GetJSON(context.Background(), "/api/v1/user/profile", nil)
	require.ErrorIs(t, err, errors.ErrSessionEnded)

	_, ok := f.client.Session()
	require.False(t, ok)
	require.EqualValues(t, 1, f.ended.Load())

	err = f.client.GetJSON(context.Background(), "/api/v1/user/profile", nil)
	require.ErrorIs(t, err, errors.ErrUnauthorized)
	require.EqualValues(t, 1, f.ended.Load())
	require.Equal(t, 1, f.api.RefreshCalls())
}

func TestClientRestore(t *testing.T) {
	t.Run("resumes a stored session", func(t *testing.T) {
		f := newClientFixture(t)
		sess, err := f.client.Login(context.Background(), viewer.Email, "secret")
		require.NoError(t, err)

		restarted := f.newClient(t)
		require.NoError(t, restarted.Restore(context.Background()))
		got, ok := restarted.Session()
		require.True(t, ok)
		require.Equal(t, sess.AccessToken, got.AccessToken)
		require.Zero(t, f.api.RefreshCalls())
	})

	t.Run("refreshes an expiring session", func(t *testing.T) {
		f := newClientFixture(t)
		sess, err := f.client.Login(context.Background(), viewer.Email, "secret")
		require.NoError(t, err)

		t.Setenv("REFRESH_LEAD", "20m")
		restarted := f.newClient(t)
		require.NoError(t, restarted.Restore(context.Background()))
		got, ok := restarted.Session()
		require.True(t, ok)
		require.NotEqual(t, sess.AccessToken, got.AccessToken)
		require.Equal(t, 1, f.api.RefreshCalls())
	})

	t.Run("ends the session when refresh fails", func(t *testing.T) {
		f := newClientFixture(t)
		_, err := f.client.Login(context.Background(), viewer.Email, "secret")
		require.NoError(t, err)
		f.api.FailRefresh(http.StatusUnauthorized)

		t.Setenv("REFRESH_LEAD", "20m")
		restarted := f.newClient(t)
		err = restarted.Restore(context.Background())
		require.ErrorIs(t, err, errors.ErrSessionEnded)
		_, ok := restarted.Session()
		require.False(t, ok)
		require.EqualValues(t, 1, f.ended.Load())
	})

	t.Run("nothing stored", func(t *testing.T) {
		f := newClientFixture(t)
		require.NoError(t, f.client.Restore(context.Background()))
		_, ok := f.client.Session()
		require.False(t, ok)
	})

	t.Run("corrupt record is discarded", func(t *testing.T) {
		f := newClientFixture(t)
		require.NoError(t, f.repo.Save(context.Background(), config.New().GetStorageKey(), []byte("{not json")))
		require.NoError(t, f.client.Restore(context.Background()))
		_, ok := f.client.Session()
		require.False(t, ok)
	})
}

func TestClientTokenSource(t *testing.T) {
	f := newClientFixture(t)
	sess, err := f.client.Login(context.Background(), viewer.Email, "secret")
	require.NoError(t, err)

	tok, err := f.client.TokenSource(context.Background()).Token()
	require.NoError(t, err)
	require.Equal(t, sess.AccessToken, tok.AccessToken)
	require.Equal(t, "Bearer", tok.TokenType)
	require.Zero(t, f.api.RefreshCalls())

	withNow(t, sess.ExpiresAt.Add(time.Second))
	tok, err = f.client.TokenSource(context.Background()).Token()
	require.NoError(t, err)
	require.NotEqual(t, sess.AccessToken, tok.AccessToken)
	require.Equal(t, 1, f.api.RefreshCalls())

	f.client.Logout(context.Background())
	_, err = f.client.TokenSource(context.Background()).Token()
	require.ErrorIs(t, err, errors.ErrNoSession)
}

func TestClientAutoRefresh(t *testing.T) {
	t.Setenv("REFRESH_LEAD", "20m")
	t.Setenv("REFRESH_CHECK_INTERVAL", "10ms")
	f := newClientFixture(t)
	_, err := f.client.Login(context.Background(), viewer.Email, "secret")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.client.StartAutoRefresh(ctx)

	require.Eventually(t, func() bool { return f.api.RefreshCalls() >= 1 }, 5*time.Second, 10*time.Millisecond)
	_, ok := f.client.Session()
	require.True(t, ok)
}

func withNow(t *testing.T, now time.Time) {
	t.Helper()
	prev := session.NowTimeFunc
	session.NowTimeFunc = func() time.Time { return now }
	t.Cleanup(func() { session.NowTimeFunc = prev })
}

func TestClientBaseURLWithPath(t *testing.T) {
	api := fakeapi.New()
	api.AddUser(viewer.Email, "secret", viewer)
	srv := httptest.NewServer(http.StripPrefix("/onflix", api.Handler()))
	t.Cleanup(srv.Close)

	t.Setenv("BASE_URL", srv.URL+"/onflix")
	t.Setenv("STORAGE_BACKEND", "memory")
	client, err := sessionclient.New(config.New(), sessionclient.WithRepo(memrepo.New()), sessionclient.WithLogger(nopLogger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.Login(context.Background(), viewer.Email, "wrong")
	require.ErrorIs(t, err, errors.ErrUnauthorized)
	require.Zero(t, api.RefreshCalls())

	_, err = client.Login(context.Background(), viewer.Email, "secret")
	require.NoError(t, err)
	api.ExpireAccessTokens()

	var profile session.Principal
	require.NoError(t, client.GetJSON(context.Background(), "/api/v1/user/profile", &profile))
	require.Equal(t, viewer.ID, profile.ID)
	require.Equal(t, 1, api.RefreshCalls())
}
