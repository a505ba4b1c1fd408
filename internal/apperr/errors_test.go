package apperr

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewNilIsNil(t *testing.T) {
	t.Parallel()

	require.NoError(t, New(KindStartup, "start", nil))
}

func TestKindOfWrappedChain(t *testing.T) {
	t.Parallel()

	base := New(KindDeployment, "locate artifact", fs.ErrNotExist)
	wrapped := fmt.Errorf("start: %w", base)

	require.Equal(t, KindDeployment, KindOf(wrapped))
	require.ErrorIs(t, wrapped, fs.ErrNotExist)
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "configuration", err: New(KindConfiguration, "load", cause), want: true},
		{name: "validation", err: New(KindValidation, "load", cause), want: true},
		{name: "deployment", err: New(KindDeployment, "locate", cause), want: true},
		{name: "startup", err: New(KindStartup, "start", cause), want: true},
		{name: "authentication", err: New(KindAuthentication, "shutdown", cause), want: false},
		{name: "shutdown", err: New(KindShutdown, "stop", cause), want: false},
		{name: "unclassified", err: cause, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	err := New(KindValidation, "load config", errors.New("hostname mismatch"))
	require.Equal(t, "load config: hostname mismatch", err.Error())

	anon := &Error{Kind: KindShutdown, Err: errors.New("drain timed out")}
	require.Equal(t, "shutdown error: drain timed out", anon.Error())
}
