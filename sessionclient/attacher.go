package sessionclient

import (
	"net/http"

	"github.com/jrsteele09/go-session-client/session"
)

// AttachCredentials stamps req with the session's access token. Without a
// session req is returned unchanged.
func AttachCredentials(req *http.Request, sess session.Session, ok bool) *http.Request {
	if !ok {
		return req
	}
	return AttachToken(req, sess.AccessToken)
}

// AttachToken returns a copy of req carrying accessToken as its Bearer
// credential, replacing any existing Authorization header.
func AttachToken(req *http.Request, accessToken string) *http.Request {
	if accessToken == "" {
		return req
	}
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+accessToken)
	return out
}
