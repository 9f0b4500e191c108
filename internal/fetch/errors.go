package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/rewired-gh/skinscout/internal/metrics"
)

// Kind classifies a failed request.
type Kind int

const (
	// KindStatus is a completed request with a non-200 response.
	KindStatus Kind = iota
	// KindProxy is a connection failure through the proxy, or directly when no proxy is set.
	KindProxy
	// KindTimeout is a connect or read timeout.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindProxy:
		return metrics.OutcomeProxy
	case KindTimeout:
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeStatus
	}
}

// RequestError is returned for every failed fetch. All kinds are retryable.
type RequestError struct {
	Kind   Kind
	Status int
	Proxy  string
	Err    error
}

func (e *RequestError) Error() string {
	switch e.Kind {
	case KindProxy:
		return "bad proxy connection: " + e.Proxy
	case KindTimeout:
		return "connection timeout"
	default:
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsRequestError reports whether err is or wraps a *RequestError.
func IsRequestError(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr)
}

// classify turns a transport error into a *RequestError. A cancelled caller context
// is returned as is so it keeps propagating.
func classify(ctx context.Context, err error, proxyAddr string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &RequestError{Kind: KindTimeout, Proxy: proxyAddr, Err: err}
	}

	if proxyAddr == "" {
		proxyAddr = "direct"
	}
	return &RequestError{Kind: KindProxy, Proxy: proxyAddr, Err: err}
}
