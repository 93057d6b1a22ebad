package tiercache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProducerError_IsMatchesSentinelNotCause(t *testing.T) {
	cause := errors.New("upstream boom")
	err := NewProducerError(cause)

	require.ErrorIs(t, err, ErrProducerFailed)
	require.False(t, errors.Is(err, cause), "the specific cause is reachable via RootCause, not errors.Is")

	var perr *ProducerError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, cause, perr.RootCause())
}

func TestBackendError_IsErrBackendUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewBackendError("redis", "get", cause)
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.Contains(t, err.Error(), "redis")
	require.Contains(t, err.Error(), "get")
}

func TestConfigurationError_IsErrConfiguration(t *testing.T) {
	err := NewConfigurationError("missing chain")
	require.ErrorIs(t, err, ErrConfiguration)
	require.Contains(t, err.Error(), "missing chain")
}
