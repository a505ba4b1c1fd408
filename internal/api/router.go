package api

import (
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/embedded-launcher/internal/metrics"
)

// DefaultMaxBodyBytes caps request bodies, including form posts.
const DefaultMaxBodyBytes int64 = 300000

// Config controls how handlers are mounted.
type Config struct {
	ContextPath  string
	ShutdownPath string
	MetricsPath  string
	MaxBodyBytes int64
}

// NewRouter composes app and shutdown into one handler. Explicit routes
// (shutdown, metrics) take precedence over the application mount, so both
// stay reachable even when the application is mounted at "/".
func NewRouter(app, shutdown http.Handler, cfg Config, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody == 0 {
		maxBody = DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	if maxBody > 0 {
		r.Use(bodyLimitMiddleware(maxBody))
	}

	if shutdown != nil && cfg.ShutdownPath != "" {
		r.Handle(cfg.ShutdownPath, shutdown)
	}
	if cfg.MetricsPath != "" {
		r.Handle(cfg.MetricsPath, metrics.Handler())
	}
	mountApp(r, cfg.ContextPath, app)
	return r
}

// NormalizeContextPath returns "/" or a path with a leading and no trailing slash.
func NormalizeContextPath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return "/"
	}
	return "/" + p
}

func mountApp(r chi.Router, contextPath string, app http.Handler) {
	if app == nil {
		return
	}
	app = hidePrivateDirs(app)
	ctx := NormalizeContextPath(contextPath)
	if ctx == "/" {
		r.Handle("/*", app)
		return
	}
	r.Handle(ctx, http.RedirectHandler(ctx+"/", http.StatusMovedPermanently))
	r.Handle(ctx+"/*", http.StripPrefix(ctx, app))
}

// privateDirs hold deployment descriptors, classes and libraries of a web
// archive. They are never served.
var privateDirs = []string{"WEB-INF", "META-INF"}

func hidePrivateDirs(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPrivatePath(r.URL.Path) {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isPrivatePath(p string) bool {
	for _, seg := range strings.Split(path.Clean("/"+p), "/") {
		for _, dir := range privateDirs {
			if strings.EqualFold(seg, dir) {
				return true
			}
		}
	}
	return false
}
