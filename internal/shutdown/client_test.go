package shutdown

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/embedded-launcher/internal/apperr"
)

func serverPort(t *testing.T, ts *httptest.Server) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(ts.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func TestClientShutdownAccepted(t *testing.T) {
	t.Parallel()

	stopper := newFakeStopper()
	mux := http.NewServeMux()
	mux.Handle(Path, NewHandler("abc123", stopper, zap.NewNop()))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	text, err := NewClient(serverPort(t, ts), "abc123").Shutdown(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Shutting down", text)

	select {
	case <-stopper.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stopper was not invoked")
	}
}

func TestClientShutdownRejected(t *testing.T) {
	t.Parallel()

	stopper := newFakeStopper()
	mux := http.NewServeMux()
	mux.Handle(Path, NewHandler("abc123", stopper, zap.NewNop()))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	text, err := NewClient(serverPort(t, ts), "wrong").Shutdown(context.Background())
	require.ErrorIs(t, err, ErrRejected)
	require.Equal(t, apperr.KindAuthentication, apperr.KindOf(err))
	require.Equal(t, "Unauthorized", text)
	require.Zero(t, stopper.calls.Load())
}

func TestClientShutdownUnreachable(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	client := NewClient(port, "abc123", WithHTTPClient(&http.Client{Timeout: time.Second}))
	_, err = client.Shutdown(context.Background())
	require.Error(t, err)
	require.Equal(t, apperr.KindShutdown, apperr.KindOf(err))
}
