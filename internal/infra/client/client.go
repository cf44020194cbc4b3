// Package client implements the wallet backend ports over HTTP.
//
// A single Client owns the cookie jar that carries the backend session, so
// every port shares one set of credentials. Reads are retried with backoff;
// mutating calls are sent exactly once.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/boddenberg/wallet-session-go/internal/domain"
	"github.com/boddenberg/wallet-session-go/internal/infra/observability"
	"github.com/boddenberg/wallet-session-go/internal/infra/resilience"
	"github.com/boddenberg/wallet-session-go/internal/port"
)

var tracer = otel.Tracer("client")

var _ port.Backend = (*Client)(nil)

const (
	serviceName = "wallet-backend"

	csrfCookie = "csrftoken"
	csrfHeader = "X-CSRFToken"

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 1 << 20
)

// Client talks to the wallet backend with retry, circuit breaker, bulkhead and tracing.
type Client struct {
	httpClient *http.Client
	jar        *sessionJar
	baseURL    *url.URL
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, timeout time.Duration, cfg resilience.Config, metrics *observability.Metrics, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	jar, err := newSessionJar()
	if err != nil {
		return nil, err
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout, Jar: jar},
		jar:        jar,
		baseURL:    u,
		cb:         resilience.NewCircuitBreaker(serviceName),
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// ClearSession drops every stored cookie, forgetting the backend session.
func (c *Client) ClearSession() {
	c.jar.reset()
	c.logger.Debug("session cookies cleared")
}

func (c *Client) get(ctx context.Context, op, path string, out any) error {
	return c.do(ctx, op, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, op, path string, in, out any) error {
	return c.do(ctx, op, http.MethodPost, path, in, out)
}

// do performs one logical backend call. GETs may be attempted several times;
// anything else is attempted once so a mutation is never replayed.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	ctx, span := tracer.Start(ctx, "Client."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	)

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encoding %s request: %w", op, err)
		}
	}

	if err := c.bulkhead.Acquire(ctx); err != nil {
		return &domain.ErrNetwork{Operation: op, Err: err}
	}
	defer c.bulkhead.Release()

	start := time.Now()
	defer func() { c.metrics.RecordRequestDuration(op, time.Since(start)) }()

	cfg := c.cfg
	if method != http.MethodGet {
		cfg = cfg.NoRetry()
	}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, cfg, func() error {
			return c.attempt(ctx, op, method, path, payload, out)
		})
	})
	if err == nil {
		return nil
	}

	err = c.classify(op, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (c *Client) attempt(ctx context.Context, op, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		if token := c.csrfToken(); token != "" {
			req.Header.Set(csrfHeader, token)
		}
	}
	observability.InjectTrace(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rejection := &domain.ErrBackendRejection{
			Operation: op,
			Status:    resp.StatusCode,
			Payload:   parseErrorPayload(raw),
		}
		if resp.StatusCode >= 500 {
			return rejection
		}
		return resilience.Permanent(rejection)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resilience.Permanent(fmt.Errorf("decoding %s response: %w", op, err))
	}
	return nil
}

// classify maps a failed call onto the domain error taxonomy and counts it.
func (c *Client) classify(op string, err error) error {
	err = resilience.Unwrap(err)

	var rejection *domain.ErrBackendRejection
	switch {
	case resilience.IsOpen(err):
		c.metrics.IncrBackendError(op, "circuit_open")
		c.logger.Warn("circuit breaker open", zap.String("operation", op))
		return &domain.ErrCircuitOpen{Service: serviceName}
	case errors.As(err, &rejection):
		c.metrics.IncrBackendError(op, "rejected")
		c.logger.Debug("backend rejected call",
			zap.String("operation", op),
			zap.Int("status", rejection.Status),
		)
		return rejection
	default:
		c.metrics.IncrBackendError(op, "network")
		c.logger.Warn("backend call failed", zap.String("operation", op), zap.Error(err))
		return &domain.ErrNetwork{Operation: op, Err: err}
	}
}

func (c *Client) csrfToken() string {
	for _, ck := range c.jar.Cookies(c.baseURL) {
		if ck.Name == csrfCookie {
			return ck.Value
		}
	}
	return ""
}

// parseErrorPayload leniently extracts the message fields of an error body.
// Bodies that are not JSON objects, and fields that are not strings, yield
// empty fields.
func parseErrorPayload(raw []byte) domain.ErrorPayload {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.ErrorPayload{}
	}
	str := func(key string) string {
		s, _ := fields[key].(string)
		return s
	}
	return domain.ErrorPayload{
		Detail:  str("detail"),
		Error:   str("error"),
		Message: str("message"),
	}
}

// sessionJar is a cookie jar that can be emptied on logout.
type sessionJar struct {
	mu  sync.Mutex
	jar *cookiejar.Jar
}

func newSessionJar() (*sessionJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	return &sessionJar{jar: jar}, nil
}

func (s *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.mu.Lock()
	jar := s.jar
	s.mu.Unlock()
	jar.SetCookies(u, cookies)
}

func (s *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	s.mu.Lock()
	jar := s.jar
	s.mu.Unlock()
	return jar.Cookies(u)
}

func (s *sessionJar) reset() {
	jar, _ := cookiejar.New(nil)
	s.mu.Lock()
	s.jar = jar
	s.mu.Unlock()
}
