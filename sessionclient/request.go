package sessionclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID correlates a request with its replay in server logs.
const HeaderRequestID = "X-Request-ID"

// RequestDescription is an immutable snapshot of an outbound request: enough
// to send it again unchanged except for its credential.
type RequestDescription struct {
	id           uuid.UUID
	orig         *http.Request
	body         []byte
	authEndpoint bool
	retried      bool
}

// Describe buffers req's body (closing it) and captures the request for
// dispatch and replay. req itself is never modified.
func Describe(req *http.Request, classifier Classifier) (RequestDescription, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return RequestDescription{}, fmt.Errorf("sessionclient.Describe: read body: %w", err)
		}
	}

	id, err := uuid.Parse(req.Header.Get(HeaderRequestID))
	if err != nil {
		id = uuid.New()
	}

	return RequestDescription{
		id:           id,
		orig:         req,
		body:         body,
		authEndpoint: classifier.IsAuthEndpoint(req),
	}, nil
}

func (d RequestDescription) ID() uuid.UUID {
	return d.id
}

func (d RequestDescription) Method() string {
	return d.orig.Method
}

func (d RequestDescription) Path() string {
	return d.orig.URL.Path
}

// AuthEndpoint reports whether the request targets login, register, refresh or logout.
func (d RequestDescription) AuthEndpoint() bool {
	return d.authEndpoint
}

// Retried reports whether a refresh has already been attempted for this call.
func (d RequestDescription) Retried() bool {
	return d.retried
}

// WithRetried returns a copy marked as retried.
func (d RequestDescription) WithRetried() RequestDescription {
	d.retried = true
	return d
}

// Build creates a fresh *http.Request bound to ctx with its own body reader
// and header map.
func (d RequestDescription) Build(ctx context.Context) *http.Request {
	req := d.orig.Clone(ctx)
	if d.body == nil {
		req.Body = http.NoBody
		req.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
	} else {
		body := d.body
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	}
	req.ContentLength = int64(len(d.body))
	req.Header.Set(HeaderRequestID, d.id.String())
	return req
}
