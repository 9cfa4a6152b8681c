// Package shared carries the error taxonomy used across the remote
// clients and the sync orchestrator.
package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Kind buckets a remote failure for retry gating. Only the first five
// kinds are eligible for the retry path.
type Kind string

const (
	KindNetwork      Kind = "NETWORK_ERROR"
	KindRateLimit    Kind = "RATE_LIMIT"
	KindServer       Kind = "SERVER_ERROR"
	KindTimeout      Kind = "TIMEOUT_ERROR"
	KindTemporary    Kind = "TEMPORARY_ERROR"
	KindNonRetryable Kind = "NON_RETRYABLE_ERROR"
)

// Retryable reports whether a failure of this kind may be retried.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindRateLimit, KindServer, KindTimeout, KindTemporary:
		return true
	}
	return false
}

// RemoteError wraps a failure from a remote collaborator with its
// retry classification attached at the point of origin.
type RemoteError struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// NewRemoteError constructs a classified remote error.
func NewRemoteError(kind Kind, op string, status int, err error) *RemoteError {
	return &RemoteError{Kind: kind, Op: op, Status: status, Err: err}
}

// KindOf extracts the structured kind from err, falling back to
// message sniffing for errors that never carried one.
func KindOf(err error) Kind {
	if err == nil {
		return KindNonRetryable
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Kind
	}
	return ClassifyMessage(err.Error())
}

// KindFromStatus maps an HTTP status code to a kind.
func KindFromStatus(status int) Kind {
	switch {
	case status == 429:
		return KindRateLimit
	case status == 503:
		return KindTemporary
	case status == 504:
		return KindTimeout
	case status >= 500:
		return KindServer
	default:
		return KindNonRetryable
	}
}

// ClassifyMessage buckets an error message by substring inspection.
// Fallback only: records written before kinds existed store bare text.
func ClassifyMessage(msg string) Kind {
	text := strings.ToLower(msg)
	switch {
	case containsAny(text, "rate limit", "too many requests", "429"):
		return KindRateLimit
	case containsAny(text, "timeout", "timed out", "deadline exceeded"):
		return KindTimeout
	case containsAny(text, "network", "connection", "dial tcp", "no such host", "dns"):
		return KindNetwork
	case containsAny(text, "temporar", "unavailable", "try again", "maintenance"):
		return KindTemporary
	case containsAny(text, "internal server error", "server error", "bad gateway", "status 500", "status 502"):
		return KindServer
	default:
		return KindNonRetryable
	}
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
