package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/JakeFAU/embedded-launcher/internal/api"
	"github.com/JakeFAU/embedded-launcher/internal/apperr"
	"github.com/JakeFAU/embedded-launcher/internal/artifact"
	"github.com/JakeFAU/embedded-launcher/internal/config"
	"github.com/JakeFAU/embedded-launcher/internal/metrics"
	"github.com/JakeFAU/embedded-launcher/internal/shutdown"
)

// Engine defaults.
const (
	DefaultMaxWorkers      = 100
	DefaultIdleTimeout     = 30 * time.Second
	DefaultGracefulTimeout = time.Second
	readHeaderTimeout      = 5 * time.Second
	webappDir              = "webapp"
)

var (
	// ErrMissingPort is returned by Start when no listening port is configured.
	ErrMissingPort = errors.New("listening port (" + config.KeyPort + ") is not set")
	// ErrInvalidPort is returned by Start for a port that is not 0-65535.
	ErrInvalidPort = errors.New("listening port is invalid")
	// ErrStartupFailed wraps engine initialization and bind failures, and
	// an engine that stops serving without being asked to.
	ErrStartupFailed = errors.New("server failed to start")
)

// Options tunes the engine. Zero values fall back to the defaults.
type Options struct {
	// Fs hosts the deployment directory, work directory and served files.
	Fs afero.Fs
	// Host restricts the listener to one interface; empty means all.
	Host            string
	MaxWorkers      int
	IdleTimeout     time.Duration
	GracefulTimeout time.Duration
	MaxBodyBytes    int64
}

// Controller owns the embedded server and its lifecycle state.
type Controller struct {
	logger  *zap.Logger
	opts    Options
	locator *artifact.Locator
	listen  func(ctx context.Context, network, address string) (net.Listener, error)

	state atomic.Int32

	// mu is held for the whole of every start and stop sequence.
	mu     sync.Mutex
	srv    *http.Server
	ln     net.Listener
	served chan error
	done   chan struct{}
	runErr error
}

// NewController builds a stopped Controller.
func NewController(logger *zap.Logger, opts Options) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.GracefulTimeout <= 0 {
		opts.GracefulTimeout = DefaultGracefulTimeout
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = api.DefaultMaxBodyBytes
	}
	var lc net.ListenConfig
	c := &Controller{
		logger:  logger,
		opts:    opts,
		locator: artifact.NewLocator(opts.Fs),
		listen:  lc.Listen,
	}
	metrics.SetServerState(StateStopped.String(), stateNames)
	return c
}

// Status returns the current state.
func (c *Controller) Status() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	metrics.SetServerState(s.String(), stateNames)
	metrics.ObserveStateTransition(s.String())
	c.logger.Debug("state transition", zap.Stringer("from", prev), zap.Stringer("to", s))
}

// Addr returns the bound listener address, or nil when not running.
func (c *Controller) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln == nil {
		return nil
	}
	return c.ln.Addr()
}

// deployment is everything Start resolves before binding.
type deployment struct {
	port        int
	contextPath string
	artifact    string
	workDir     string
	webRoot     string
	secret      string
	metricsPath string
	hostname    string
}

// Start brings the server to Running and returns; serving continues in the
// background until Stop. Calling Start while Starting or Running logs and
// returns nil. On failure the controller is back in Stopped.
func (c *Controller) Start(ctx context.Context, cfg *config.Configuration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s := c.Status(); s == StateStarting || s == StateRunning {
		c.logger.Info("start called but the server is already started", zap.Stringer("state", s))
		return nil
	}
	c.setState(StateStarting)

	if err := c.startLocked(ctx, cfg); err != nil {
		c.setState(StateStopped)
		c.logger.Error("server start failed", zap.Error(err))
		return err
	}
	c.setState(StateRunning)
	return nil
}

func (c *Controller) startLocked(ctx context.Context, cfg *config.Configuration) error {
	const op = "start server"

	d, err := c.resolve(cfg)
	if err != nil {
		return err
	}

	if err := resetWorkDir(c.opts.Fs, d.workDir); err != nil {
		return apperr.New(apperr.KindStartup, op, fmt.Errorf("%w: %v", ErrStartupFailed, err))
	}
	if err := artifact.Unpack(c.opts.Fs, d.artifact, d.webRoot); err != nil {
		return apperr.New(apperr.KindDeployment, op, fmt.Errorf("unpack %s: %w", d.artifact, err))
	}

	app := http.FileServer(afero.NewHttpFs(c.opts.Fs).Dir(d.webRoot))
	router := api.NewRouter(app, shutdown.NewHandler(d.secret, c, c.logger.Named("shutdown")), api.Config{
		ContextPath:  d.contextPath,
		ShutdownPath: shutdown.Path,
		MetricsPath:  d.metricsPath,
		MaxBodyBytes: c.opts.MaxBodyBytes,
	}, c.logger.Named("http"))

	addr := net.JoinHostPort(c.opts.Host, strconv.Itoa(d.port))
	ln, err := c.listen(ctx, "tcp", addr)
	if err != nil {
		return apperr.New(apperr.KindStartup, op, fmt.Errorf("%w: listen %s: %w", ErrStartupFailed, addr, err))
	}
	ln = netutil.LimitListener(ln, c.opts.MaxWorkers)

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       c.opts.IdleTimeout,
		ErrorLog:          zap.NewStdLog(c.logger.Named("engine")),
	}
	served := make(chan error, 1)
	c.srv, c.ln, c.served = srv, ln, served
	c.done = make(chan struct{})
	c.runErr = nil

	go c.serve(srv, ln, served)

	c.logger.Info("server started",
		zap.String("url", fmt.Sprintf("http://%s:%d%s", d.hostname, tcpPort(ln.Addr()), d.contextPath)),
		zap.String("artifact", d.artifact),
		zap.String("work_dir", d.workDir),
		zap.Int("max_workers", c.opts.MaxWorkers),
	)
	return nil
}

// serve runs the engine. A termination not caused by Stop still drives the
// controller to Stopped so Wait returns, and Wait then reports it as a
// startup failure.
func (c *Controller) serve(srv *http.Server, ln net.Listener, served chan<- error) {
	err := srv.Serve(ln)
	served <- err
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		c.logger.Error("server terminated unexpectedly", zap.Error(err))
		if stopErr := c.Stop(context.Background()); stopErr != nil {
			c.logger.Warn("cleanup after unexpected termination failed", zap.Error(stopErr))
		}
	}
}

func (c *Controller) resolve(cfg *config.Configuration) (*deployment, error) {
	const op = "start server"

	raw, ok := cfg.Lookup(config.KeyPort)
	if !ok || raw == "" {
		return nil, apperr.New(apperr.KindConfiguration, op, ErrMissingPort)
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 0 || port > 65535 {
		return nil, apperr.New(apperr.KindConfiguration, op, fmt.Errorf("%w: %q", ErrInvalidPort, raw))
	}

	war, err := c.locator.Locate(cfg.Get(config.KeyBaseDir, config.DefaultBaseDir), artifact.WarExtension)
	if err != nil {
		return nil, err
	}

	workDir := cfg.Get(config.KeyWorkDir, "")
	if workDir == "" {
		workDir = defaultWorkDir()
	}

	return &deployment{
		port:        port,
		contextPath: api.NormalizeContextPath(cfg.Get(config.KeyContextPath, config.DefaultContextPath)),
		artifact:    war,
		workDir:     workDir,
		webRoot:     filepath.Join(workDir, webappDir),
		secret:      cfg.Get(config.KeySecret, ""),
		metricsPath: cfg.Get(config.KeyMetricsPath, ""),
		hostname:    cfg.Get(config.KeyHostname, "localhost"),
	}, nil
}

// Stop drains in-flight requests for at most the graceful timeout, then
// closes whatever remains. The controller always ends in Stopped; drain or
// close failures are returned as shutdown errors. If the engine had already
// died on its own, the run error is a startup failure instead. Stop on a
// stopped controller is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Status() == StateStopped {
		return nil
	}
	c.setState(StateStopping)
	c.logger.Info("stopping server", zap.Duration("graceful_timeout", c.opts.GracefulTimeout))

	var errs []error
	shutdownCtx, cancel := context.WithTimeout(ctx, c.opts.GracefulTimeout)
	defer cancel()
	if err := c.srv.Shutdown(shutdownCtx); err != nil {
		c.logger.Warn("graceful shutdown window elapsed, closing remaining connections", zap.Error(err))
		errs = append(errs, fmt.Errorf("graceful shutdown: %w", err))
		if cerr := c.srv.Close(); cerr != nil {
			errs = append(errs, fmt.Errorf("force close: %w", cerr))
		}
	}
	serveErr := <-c.served
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}

	c.srv, c.ln, c.served = nil, nil, nil
	if serveErr != nil {
		cause := errors.Join(append([]error{fmt.Errorf("serve: %w", serveErr)}, errs...)...)
		c.runErr = apperr.New(apperr.KindStartup, "run server", fmt.Errorf("%w: %w", ErrStartupFailed, cause))
	} else {
		c.runErr = apperr.New(apperr.KindShutdown, "stop server", errors.Join(errs...))
	}
	c.setState(StateStopped)
	close(c.done)

	if c.runErr != nil {
		c.logger.Error("server stopped with errors", zap.Error(c.runErr))
		return c.runErr
	}
	c.logger.Info("server stopped")
	return nil
}

// Wait blocks until the current run has reached Stopped and returns the
// shutdown error of that run, if any. It returns immediately when the server
// was never started.
func (c *Controller) Wait() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runErr
}

// Run starts the server and blocks until it stops, either through Stop (for
// example from a remote shutdown request) or because ctx was canceled.
func (c *Controller) Run(ctx context.Context, cfg *config.Configuration) error {
	if err := c.Start(ctx, cfg); err != nil {
		return err
	}

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			c.logger.Info("stop requested by signal")
			if err := c.Stop(context.Background()); err != nil {
				c.logger.Warn("stop after signal reported errors", zap.Error(err))
			}
		case <-finished:
		}
	}()

	return c.Wait()
}

func tcpPort(addr net.Addr) int {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}
