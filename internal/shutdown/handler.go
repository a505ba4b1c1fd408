package shutdown

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/embedded-launcher/internal/metrics"
)

// Path is where the shutdown endpoint is mounted.
const Path = "/shutdown"

// TokenParam carries the shared secret, in the query string or a form body.
const TokenParam = "token"

const (
	acceptedBody = "Shutting down\n"
	rejectedBody = "Unauthorized\n"
)

// Stopper is the part of the lifecycle controller the handler drives.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Handler validates shutdown requests and stops the server on success.
type Handler struct {
	secret  string
	stopper Stopper
	logger  *zap.Logger
}

// NewHandler returns a Handler comparing requests against secret. An empty
// secret disables the endpoint: every request is rejected.
func NewHandler(secret string, stopper Stopper, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if secret == "" {
		logger.Warn("shutdown secret is not configured; remote shutdown disabled")
	}
	return &Handler{secret: secret, stopper: stopper, logger: logger}
}

// ServeHTTP implements http.Handler. Every failure produces the same
// response so callers cannot tell which check rejected them.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		metrics.ObserveShutdownRequest(metrics.OutcomeRejected)
		h.logger.Warn("shutdown request rejected", zap.String("remote_addr", r.RemoteAddr))
		writeText(w, http.StatusUnauthorized, rejectedBody)
		return
	}

	metrics.ObserveShutdownRequest(metrics.OutcomeAccepted)
	h.logger.Info("shutdown requested", zap.String("remote_addr", r.RemoteAddr))
	writeText(w, http.StatusOK, acceptedBody)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	// Stop drains active connections, so it must not run on this request's
	// goroutine.
	go func() {
		if err := h.stopper.Stop(context.Background()); err != nil {
			h.logger.Error("shutdown after remote request failed", zap.Error(err))
		}
	}()
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		return false
	}
	if !fromLoopback(r.RemoteAddr) {
		return false
	}
	token := r.FormValue(TokenParam)
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) == 1
}

func fromLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
