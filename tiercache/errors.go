package tiercache

import (
	"errors"
	"fmt"
)

// Error kinds, per the taxonomy in §7. Callers should compare with errors.Is
// against these sentinels rather than on the taxonomy name.
var (
	// ErrBackendUnavailable marks a transient backend error: a single tier
	// was temporarily unavailable. Reads fall through to the next tier;
	// writes surface this only when the failing tier was required.
	ErrBackendUnavailable = errors.New("tiercache: backend temporarily unavailable")

	// ErrDecodeFailed is returned when a value, or a typed producer result,
	// cannot be encoded before it is written. On the untyped read path an
	// entry that cannot be decoded is removed from the tier that held it and
	// treated as a miss rather than reported. GetOrComputeTyped returns a
	// stored entry's decoding error unwrapped (not as ErrDecodeFailed) and
	// does not remove that entry.
	ErrDecodeFailed = errors.New("tiercache: decode/encode failure")

	// ErrProducerFailed wraps the caller-supplied producer's error in
	// get-or-compute. Waiters observe this error class; the producer's
	// specific error is not matched by errors.Is but is available via
	// ProducerError.RootCause.
	ErrProducerFailed = errors.New("tiercache: upstream compute failed")

	// ErrConfiguration marks an unknown or malformed configuration supplied
	// at build time. Construction fails outright; nothing is partially
	// initialized.
	ErrConfiguration = errors.New("tiercache: invalid configuration")

	// ErrStreamingNotConfigured names the "streaming not configured" error
	// kind. No function in this module returns it: the manager exposes no
	// stream operations, and streaming.Sidecar is used directly.
	ErrStreamingNotConfigured = errors.New("tiercache: streaming not configured")

	// ErrShuttingDown is returned for any new operation submitted after the
	// manager received its shutdown signal.
	ErrShuttingDown = errors.New("tiercache: shutdown in progress")
)

// ProducerError wraps the concrete error returned by a caller-supplied
// producer so that errors.Is(err, ErrProducerFailed) succeeds for every
// waiter. Unwrap yields the ErrProducerFailed sentinel; the original cause
// is reached through RootCause.
type ProducerError struct {
	Cause error
}

func (e *ProducerError) Error() string {
	if e.Cause == nil {
		return ErrProducerFailed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrProducerFailed, e.Cause)
}

func (e *ProducerError) Unwrap() error { return ErrProducerFailed }

// RootCause returns the wrapped producer error's root cause, if any.
func (e *ProducerError) RootCause() error { return e.Cause }

// NewProducerError wraps a producer's error so waiters can identify the
// error class without needing the producer's concrete error type.
func NewProducerError(cause error) error {
	return &ProducerError{Cause: cause}
}

// BackendError wraps a tier-specific failure while preserving the
// ErrBackendUnavailable class and the tier's name for logging.
type BackendError struct {
	Tier  string
	Op    string
	Cause error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("tiercache: tier %q: %s: %v", e.Tier, e.Op, e.Cause)
}

func (e *BackendError) Unwrap() error { return ErrBackendUnavailable }

// NewBackendError builds a BackendError that satisfies errors.Is(err,
// ErrBackendUnavailable).
func NewBackendError(tier, op string, cause error) error {
	return &BackendError{Tier: tier, Op: op, Cause: cause}
}

// ConfigurationError carries a human-readable reason alongside the
// ErrConfiguration sentinel.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfiguration, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// NewConfigurationError builds a ConfigurationError.
func NewConfigurationError(reason string) error {
	return &ConfigurationError{Reason: reason}
}
