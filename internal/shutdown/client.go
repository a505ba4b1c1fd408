package shutdown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/embedded-launcher/internal/apperr"
)

// DefaultClientTimeout bounds a single shutdown request.
const DefaultClientTimeout = 5 * time.Second

// ErrRejected is returned when the server refuses the shutdown request.
var ErrRejected = errors.New("shutdown request rejected")

// Client asks a local launcher to stop.
type Client struct {
	httpClient *http.Client
	endpoint   string
	secret     string
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default client and its timeout.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient targets the shutdown endpoint on localhost:port.
func NewClient(port int, secret string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultClientTimeout},
		endpoint:   "http://localhost:" + strconv.Itoa(port) + Path,
		secret:     secret,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Shutdown sends the stop request and returns the server's reply text.
// A reply other than 200 OK is returned together with ErrRejected.
func (c *Client) Shutdown(ctx context.Context) (string, error) {
	const op = "request shutdown"

	form := url.Values{TokenParam: {c.secret}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", apperr.New(apperr.KindShutdown, op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.New(apperr.KindShutdown, op, fmt.Errorf("server unreachable at %s: %w", c.endpoint, err))
	}
	defer resp.Body.Close() //nolint:errcheck // body fully read below

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", apperr.New(apperr.KindShutdown, op, fmt.Errorf("read response: %w", err))
	}
	text := strings.TrimSpace(string(body))
	if resp.StatusCode != http.StatusOK {
		return text, apperr.New(apperr.KindAuthentication, op, fmt.Errorf("%w: %s", ErrRejected, resp.Status))
	}
	return text, nil
}
