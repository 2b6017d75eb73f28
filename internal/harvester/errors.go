package harvester

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoStrategies is returned at engine construction when the registry is
// empty. It is the only error fatal to a whole batch.
var ErrNoStrategies = errors.New("no extraction strategies registered")

// TransportError wraps network and timeout failures. Retryable.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ExtractionEmptyError means the fetch succeeded but no valid field was
// found. Retryable, since transient page variations can resolve on retry.
type ExtractionEmptyError struct {
	URL string
}

func (e *ExtractionEmptyError) Error() string {
	return fmt.Sprintf("no valid fields extracted from %s", e.URL)
}

// NoStrategyError means no registered strategy could handle a URL. With a
// fallback strategy always registered this should not occur; when it does it
// fails that single URL only.
type NoStrategyError struct {
	URL string
}

func (e *NoStrategyError) Error() string {
	return fmt.Sprintf("no strategy can handle %s", e.URL)
}

// CacheIOError wraps persistent-store failures. Logged and treated as a
// cache miss or no-op, never propagated to batch callers.
type CacheIOError struct {
	Op  string
	Err error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *CacheIOError) Unwrap() error { return e.Err }

// IsRetryable reports whether the engine should attempt the URL again.
// Context cancellation and missing-strategy failures are terminal; transport
// errors and empty extractions are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var noStrategy *NoStrategyError
	return !errors.As(err, &noStrategy)
}
