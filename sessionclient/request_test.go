package sessionclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/sessionclient"
	"github.com/stretchr/testify/require"
)

func TestDescribeBuildsIndependentRequests(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://api.test/api/v1/content/9/progress", strings.NewReader(`{"position":42}`))
	req.Header.Set("Content-Type", "application/json")

	desc, err := sessionclient.Describe(req, sessionclient.NewClassifier(authapi.AuthPaths...))
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, desc.Method())
	require.Equal(t, "/api/v1/content/9/progress", desc.Path())
	require.False(t, desc.AuthEndpoint())
	require.False(t, desc.Retried())

	for i := 0; i < 2; i++ {
		built := desc.Build(context.Background())
		body, err := io.ReadAll(built.Body)
		require.NoError(t, err)
		require.Equal(t, `{"position":42}`, string(body))
		require.Equal(t, int64(len(body)), built.ContentLength)
		require.Equal(t, "application/json", built.Header.Get("Content-Type"))
		require.Equal(t, desc.ID().String(), built.Header.Get(sessionclient.HeaderRequestID))

		again, err := built.GetBody()
		require.NoError(t, err)
		body, err = io.ReadAll(again)
		require.NoError(t, err)
		require.Equal(t, `{"position":42}`, string(body))
	}
	require.Empty(t, req.Header.Get(sessionclient.HeaderRequestID))
}

func TestDescribeKeepsRequestID(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "http://api.test/api/v1/user/profile", nil)
	req.Header.Set(sessionclient.HeaderRequestID, id.String())

	desc, err := sessionclient.Describe(req, sessionclient.NewClassifier())
	require.NoError(t, err)
	require.Equal(t, id, desc.ID())
}

func TestWithRetriedDoesNotMutate(t *testing.T) {
	desc := describe(t, http.MethodGet, "http://api.test/api/v1/content/1")
	retried := desc.WithRetried()
	require.True(t, retried.Retried())
	require.False(t, desc.Retried())
	require.Equal(t, desc.ID(), retried.ID())
}

func TestAttachCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://api.test/api/v1/user/profile", nil)

	out := sessionclient.AttachCredentials(req, session.Session{}, false)
	require.Empty(t, out.Header.Get("Authorization"))

	out = sessionclient.AttachCredentials(req, session.Session{AccessToken: "access-1"}, true)
	require.Equal(t, "Bearer access-1", out.Header.Get("Authorization"))
	require.Empty(t, req.Header.Get("Authorization"))

	out = sessionclient.AttachToken(out, "access-2")
	require.Equal(t, "Bearer access-2", out.Header.Get("Authorization"))
}

func TestReplayRequiresRetried(t *testing.T) {
	replayer := sessionclient.NewReplayer(http.DefaultTransport, nopLogger)
	_, err := replayer.Replay(context.Background(), describe(t, http.MethodGet, "http://api.test/api/v1/content/1"), "access-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not marked retried")
}
