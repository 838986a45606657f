package sessionclient

import (
	"net/http"
	"slices"
	"strings"
)

// Outcome is what the pipeline does with a response.
type Outcome int

const (
	// OutcomePropagate hands the response to the caller unchanged.
	OutcomePropagate Outcome = iota
	// OutcomeTerminal is a 401 that must not be refreshed: an auth endpoint
	// or a call that was already retried. The caller gets the response as-is.
	OutcomeTerminal
	// OutcomeRefresh routes the call through the coordinator.
	OutcomeRefresh
)

func (o Outcome) String() string {
	switch o {
	case OutcomePropagate:
		return "propagate"
	case OutcomeTerminal:
		return "terminal"
	case OutcomeRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// Classifier decides whether an authorization failure may trigger a refresh.
type Classifier struct {
	basePath  string
	authPaths []string
}

// NewClassifier treats requests to exactly one of authPaths as authentication
// endpoints.
func NewClassifier(authPaths ...string) Classifier {
	return Classifier{authPaths: authPaths}
}

// WithBasePath returns a copy matching authPaths below prefix, the path of the
// API base URL.
func (c Classifier) WithBasePath(prefix string) Classifier {
	c.basePath = strings.TrimRight(prefix, "/")
	return c
}

func (c Classifier) IsAuthEndpoint(req *http.Request) bool {
	path, ok := strings.CutPrefix(strings.TrimRight(req.URL.Path, "/"), c.basePath)
	if !ok {
		return false
	}
	return slices.Contains(c.authPaths, path)
}

// Classify maps a response status for desc to an Outcome. The retried check
// guarantees at most one refresh per call, and the auth endpoint check keeps
// the refresh call itself from recursing.
func (c Classifier) Classify(status int, desc RequestDescription) Outcome {
	switch {
	case status != http.StatusUnauthorized:
		return OutcomePropagate
	case desc.AuthEndpoint():
		return OutcomeTerminal
	case desc.Retried():
		return OutcomeTerminal
	default:
		return OutcomeRefresh
	}
}
