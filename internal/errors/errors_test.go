package errors_test

import (
	"fmt"
	"testing"

	relayerrors "github.com/jrsteele09/go-code-relay/internal/errors"
	"github.com/stretchr/testify/require"
)

type codedError struct{ code string }

func (e *codedError) Error() string { return e.code }

func TestWrapf(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		require.NoError(t, relayerrors.Wrapf(nil, "get %s", "s1"))
	})

	t.Run("keeps chain", func(t *testing.T) {
		err := relayerrors.Wrapf(relayerrors.ErrNotFound, "get %s", "s1")
		require.EqualError(t, err, "get s1: not found")
		require.True(t, relayerrors.Is(err, relayerrors.ErrNotFound))
	})

	t.Run("as", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", &codedError{code: "x"})
		var target *codedError
		require.True(t, relayerrors.As(err, &target))
		require.Equal(t, "x", target.code)
	})
}
