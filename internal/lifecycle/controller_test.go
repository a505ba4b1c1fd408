package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/embedded-launcher/internal/apperr"
	"github.com/JakeFAU/embedded-launcher/internal/artifact"
	"github.com/JakeFAU/embedded-launcher/internal/config"
	"github.com/JakeFAU/embedded-launcher/internal/shutdown"
)

const testSecret = "abc123"

func writeWar(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	writeWarEntries(t, fs, path, map[string]string{"index.html": "<h1>deployed</h1>"})
}

func writeWarEntries(t *testing.T, fs afero.Fs, path string, entries map[string]string) {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o640))
}

func newTestController(t *testing.T) (*Controller, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	writeWar(t, fs, "/repo/app/1.0/app-1.0.war")
	c := NewController(zap.NewNop(), Options{
		Fs:              fs,
		Host:            "127.0.0.1",
		GracefulTimeout: 500 * time.Millisecond,
	})
	t.Cleanup(func() {
		_ = c.Stop(context.Background())
	})
	return c, fs
}

func testConfig(overrides map[string]string) *config.Configuration {
	base := config.New(map[string]string{
		config.KeyPort:    "0",
		config.KeyBaseDir: "/repo",
		config.KeyWorkDir: "/work",
		config.KeySecret:  testSecret,
	})
	return base.Merge(overrides)
}

func boundPort(t *testing.T, c *Controller) int {
	t.Helper()
	addr := c.Addr()
	require.NotNil(t, addr)
	return addr.(*net.TCPAddr).Port
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx // test request to a local listener
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck // test
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestNewControllerIsStopped(t *testing.T) {
	t.Parallel()

	c := NewController(nil, Options{})
	require.Equal(t, StateStopped, c.Status())
	require.Nil(t, c.Addr())
	require.NoError(t, c.Wait())
}

func TestStopOnStoppedIsNoop(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	require.NoError(t, c.Stop(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
	require.Equal(t, StateStopped, c.Status())
}

func TestStartServesArtifact(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background(), testConfig(nil)))
	require.Equal(t, StateRunning, c.Status())

	code, body := get(t, fmt.Sprintf("http://127.0.0.1:%d/index.html", boundPort(t, c)))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "<h1>deployed</h1>", body)
}

func TestStartHonorsContextPath(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background(), testConfig(map[string]string{config.KeyContextPath: "/shop"})))

	code, body := get(t, fmt.Sprintf("http://127.0.0.1:%d/shop/index.html", boundPort(t, c)))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "<h1>deployed</h1>", body)
}

func TestStartDoesNotServeArchivePrivateDirs(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeWarEntries(t, fs, "/repo/app.war", map[string]string{
		"index.html":                 "<h1>deployed</h1>",
		"WEB-INF/web.xml":            "<db-password>hunter2</db-password>",
		"META-INF/MANIFEST.MF":       "Manifest-Version: 1.0",
		"WEB-INF/classes/app.config": "secret=1",
	})
	c := NewController(zap.NewNop(), Options{Fs: fs, Host: "127.0.0.1", GracefulTimeout: 500 * time.Millisecond})
	t.Cleanup(func() { _ = c.Stop(context.Background()) })
	require.NoError(t, c.Start(context.Background(), testConfig(nil)))
	base := fmt.Sprintf("http://127.0.0.1:%d", boundPort(t, c))

	for _, p := range []string{"/WEB-INF/web.xml", "/web-inf/web.xml", "/META-INF/MANIFEST.MF", "/WEB-INF/classes/app.config", "/WEB-INF/"} {
		code, body := get(t, base+p)
		require.Equal(t, http.StatusNotFound, code, p)
		require.NotContains(t, body, "hunter2", p)
	}

	code, body := get(t, base+"/index.html")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "<h1>deployed</h1>", body)
}

func TestStartTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	cfg := testConfig(nil)

	require.NoError(t, c.Start(context.Background(), cfg))
	first := boundPort(t, c)

	require.NoError(t, c.Start(context.Background(), cfg))
	require.Equal(t, StateRunning, c.Status())
	require.Equal(t, first, boundPort(t, c))
}

func TestStartResetsWorkDir(t *testing.T) {
	t.Parallel()

	c, fs := newTestController(t)
	require.NoError(t, afero.WriteFile(fs, "/work/stale.txt", []byte("old"), 0o640))

	require.NoError(t, c.Start(context.Background(), testConfig(nil)))

	stale, err := afero.Exists(fs, "/work/stale.txt")
	require.NoError(t, err)
	require.False(t, stale)
	unpacked, err := afero.Exists(fs, "/work/webapp/index.html")
	require.NoError(t, err)
	require.True(t, unpacked)
}

func TestStartFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      map[string]string
		extraWar bool
		wantKind apperr.Kind
		check    func(t *testing.T, err error)
	}{
		{
			name:     "missing port",
			cfg:      map[string]string{config.KeyPort: ""},
			wantKind: apperr.KindConfiguration,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrMissingPort)
			},
		},
		{
			name:     "invalid port",
			cfg:      map[string]string{config.KeyPort: "http"},
			wantKind: apperr.KindConfiguration,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrInvalidPort)
			},
		},
		{
			name:     "two artifacts",
			extraWar: true,
			wantKind: apperr.KindDeployment,
			check: func(t *testing.T, err error) {
				var mismatch *artifact.CountMismatchError
				require.ErrorAs(t, err, &mismatch)
				require.Equal(t, 2, mismatch.Found)
				require.Contains(t, err.Error(), "/repo")
			},
		},
		{
			name:     "missing base dir",
			cfg:      map[string]string{config.KeyBaseDir: "/nowhere"},
			wantKind: apperr.KindDeployment,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, artifact.ErrDirectoryUnreadable)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, fs := newTestController(t)
			if tt.extraWar {
				writeWar(t, fs, "/repo/other/other.war")
			}

			err := c.Start(context.Background(), testConfig(tt.cfg))
			require.Error(t, err)
			require.Equal(t, tt.wantKind, apperr.KindOf(err))
			require.True(t, apperr.IsFatal(err))
			tt.check(t, err)
			require.Equal(t, StateStopped, c.Status())
		})
	}
}

func TestStartPortInUse(t *testing.T) {
	t.Parallel()

	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close() //nolint:errcheck // test
	port := strconv.Itoa(taken.Addr().(*net.TCPAddr).Port)

	c, _ := newTestController(t)
	err = c.Start(context.Background(), testConfig(map[string]string{config.KeyPort: port}))
	require.ErrorIs(t, err, ErrStartupFailed)
	require.Equal(t, apperr.KindStartup, apperr.KindOf(err))
	require.Equal(t, StateStopped, c.Status())
}

func TestRemoteShutdownStopsServer(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background(), testConfig(nil)))
	port := boundPort(t, c)

	waited := make(chan error, 1)
	go func() { waited <- c.Wait() }()

	text, err := shutdown.NewClient(port, testSecret).Shutdown(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Shutting down", text)

	require.Eventually(t, func() bool {
		return c.Status() == StateStopped
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case err := <-waited:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after remote shutdown")
	}
	require.Nil(t, c.Addr())
}

func TestRemoteShutdownWrongSecretKeepsRunning(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background(), testConfig(nil)))
	port := boundPort(t, c)

	for _, secret := range []string{"", "abc12", "abc1234", "ABC123"} {
		text, err := shutdown.NewClient(port, secret).Shutdown(context.Background())
		require.ErrorIs(t, err, shutdown.ErrRejected, secret)
		require.Equal(t, "Unauthorized", text)
	}

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, StateRunning, c.Status())
}

func TestConcurrentStopsTearDownOnce(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	require.NoError(t, c.Start(context.Background(), testConfig(nil)))
	port := boundPort(t, c)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- c.Stop(context.Background())
		}()
		go func() {
			defer wg.Done()
			_, _ = shutdown.NewClient(port, testSecret).Shutdown(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		return c.Status() == StateStopped
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopForcesCloseAfterGracefulWindow(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeWar(t, fs, "/repo/app.war")
	c := NewController(zap.NewNop(), Options{
		Fs:              fs,
		Host:            "127.0.0.1",
		GracefulTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, c.Start(context.Background(), testConfig(nil)))

	// A connection stuck mid-request keeps the server from going quiet.
	conn, err := net.Dial("tcp", c.Addr().String())
	require.NoError(t, err)
	defer conn.Close() //nolint:errcheck // test
	_, err = conn.Write([]byte("GET /index.html HTTP/1.1\r\n"))
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	err = c.Stop(context.Background())
	require.Error(t, err)
	require.Equal(t, apperr.KindShutdown, apperr.KindOf(err))
	require.False(t, apperr.IsFatal(err))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, StateStopped, c.Status())
	require.ErrorIs(t, c.Wait(), context.DeadlineExceeded)
}

// brokenListener fails every Accept with a permanent error.
type brokenListener struct {
	net.Listener
}

func (l brokenListener) Accept() (net.Conn, error) {
	return nil, errors.New("accept: descriptor revoked")
}

func TestEngineFailureIsFatal(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	c.listen = func(ctx context.Context, network, address string) (net.Listener, error) {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, network, address)
		if err != nil {
			return nil, err
		}
		return brokenListener{Listener: ln}, nil
	}

	ran := make(chan error, 1)
	go func() { ran <- c.Run(context.Background(), testConfig(nil)) }()

	select {
	case err := <-ran:
		require.Error(t, err)
		require.ErrorIs(t, err, ErrStartupFailed)
		require.Equal(t, apperr.KindStartup, apperr.KindOf(err))
		require.True(t, apperr.IsFatal(err))
		require.Contains(t, err.Error(), "descriptor revoked")
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after the engine failed")
	}
	require.Equal(t, StateStopped, c.Status())
	require.ErrorIs(t, c.Wait(), ErrStartupFailed)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	ctx, cancel := context.WithCancel(context.Background())

	ran := make(chan error, 1)
	go func() { ran <- c.Run(ctx, testConfig(nil)) }()

	require.Eventually(t, func() bool {
		return c.Status() == StateRunning
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-ran:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.Equal(t, StateStopped, c.Status())
}

func TestRunReturnsStartError(t *testing.T) {
	t.Parallel()

	c, _ := newTestController(t)
	err := c.Run(context.Background(), testConfig(map[string]string{config.KeyPort: ""}))
	require.ErrorIs(t, err, ErrMissingPort)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "stopped", StateStopped.String())
	require.Equal(t, "starting", StateStarting.String())
	require.Equal(t, "running", StateRunning.String())
	require.Equal(t, "stopping", StateStopping.String())
	require.Equal(t, "unknown", State(42).String())
}
