package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rzbill/bgq/internal/circuit"
	"github.com/rzbill/bgq/internal/retry"
	"github.com/rzbill/bgq/internal/timer"
	"github.com/rzbill/bgq/pkg/log"
)

const (
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 30 * time.Second
	// DefaultPauseDuration is how long the circuit stays paused.
	DefaultPauseDuration = 5 * time.Minute

	maxResponseBytes = 10 << 20
	tracerName       = "bgq/transport"
	jsonContentType  = "application/json; charset=utf-8"
)

var (
	errClientClosed    = errors.New("client closed")
	errReissueReplaced = errors.New("reissue replaced")
)

// Config configures a Client.
type Config struct {
	SiteID string
	APIKey string
	// APIURL is the collection API base URL; requests to its host use the
	// API profile.
	APIURL        string
	UserAgent     string
	Timeout       time.Duration
	PauseDuration time.Duration
	Retry         retry.Policy
}

// Request describes one HTTP call.
type Request struct {
	Method  string
	URL     string
	Body    []byte
	Headers map[string]string
}

// Observer receives one observation per HTTP attempt.
type Observer interface {
	ObserveRequest(outcome string, status int, elapsed time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithObserver registers per-attempt observations.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// Client sends requests and applies the retry and pause policy.
type Client struct {
	cfg        Config
	apiHost    string
	httpClient *http.Client
	circuit    *circuit.State
	counter    *retry.Counter
	timer      *timer.Timer
	logger     log.Logger
	tracer     trace.Tracer
	observer   Observer

	baseCtx    context.Context
	cancelBase context.CancelCauseFunc

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// New returns a Client sharing the given circuit state.
func New(cfg Config, cs *circuit.State, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PauseDuration <= 0 {
		cfg.PauseDuration = DefaultPauseDuration
	}
	if cfg.Retry == (retry.Policy{}) {
		cfg.Retry = retry.Default()
	}
	if cs == nil {
		cs = circuit.New()
	}
	c := &Client{
		cfg:     cfg,
		circuit: cs,
		counter: retry.NewCounter(cfg.Retry),
		timer:   timer.New(),
	}
	if u, err := url.Parse(cfg.APIURL); err == nil {
		c.apiHost = u.Host
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if c.logger == nil {
		c.logger = log.NewNopLogger()
	}
	c.logger = c.logger.WithComponent("transport")
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	c.baseCtx, c.cancelBase = context.WithCancelCause(context.Background())
	return c
}

// Do performs the call, including any 5xx reissues, and returns the response
// body on success. It resolves exactly once, with a *RequestError on failure.
func (c *Client) Do(ctx context.Context, params Request) ([]byte, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, newError(KindCancelled, 0, "", errClientClosed)
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(c.baseCtx, func() { cancel(errClientClosed) })
	defer stop()

	for {
		if c.circuit.Paused() {
			return nil, newError(KindNoRequestMade, 0, "", fmt.Errorf("circuit paused until %s", c.circuit.PausedUntil().Format(time.RFC3339)))
		}

		body, status, err := c.attempt(ctx, params)
		if err != nil {
			return nil, err
		}
		if status < 300 {
			c.counter.Reset()
			return body, nil
		}
		if status >= 500 && status < 600 {
			delay, ok := c.counter.Next()
			if !ok {
				c.counter.Reset()
				c.circuit.Pause(c.cfg.PauseDuration)
				c.logger.Error("server errors exhausted retry budget",
					log.Str("url", params.URL), log.Int("status", status))
				return nil, newError(KindUnsuccessfulStatus, status, errorMessage(body), nil)
			}
			c.logger.Warn("server error, reissuing request",
				log.Str("url", params.URL), log.Int("status", status), log.Dur("delay", delay))
			if err := c.waitReissue(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}
		return nil, c.clientError(params, status, body)
	}
}

// attempt performs one HTTP exchange. A nil error means a response was
// received; its status is returned for classification.
func (c *Client) attempt(ctx context.Context, params Request) ([]byte, int, error) {
	req, err := c.buildRequest(ctx, params)
	if err != nil {
		return nil, 0, err
	}

	ctx, span := c.tracer.Start(ctx, "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("server.address", req.URL.Host),
		))
	defer span.End()
	req = req.WithContext(ctx)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := classifyTransportError(ctx, err)
		c.observe(kind.String(), 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		c.logger.Debug("request failed", log.Str("url", params.URL), log.Str("kind", kind.String()), log.Err(err))
		return nil, 0, newError(kind, 0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		kind := classifyTransportError(ctx, err)
		c.observe(kind.String(), resp.StatusCode, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		return nil, 0, newError(kind, 0, "", err)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
	c.observe(outcomeForStatus(resp.StatusCode), resp.StatusCode, time.Since(start))
	c.logger.Debug("response received", log.Str("url", params.URL), log.Int("status", resp.StatusCode))
	return body, resp.StatusCode, nil
}

func (c *Client) buildRequest(ctx context.Context, params Request) (*http.Request, error) {
	var bodyReader io.Reader
	if params.Body != nil {
		bodyReader = bytes.NewReader(params.Body)
	}
	req, err := http.NewRequestWithContext(ctx, params.Method, params.URL, bodyReader)
	if err != nil {
		return nil, newError(KindNoRequestMade, 0, "", fmt.Errorf("failed to create request: %w", err))
	}

	if c.apiHost != "" && req.URL.Host == c.apiHost {
		if c.cfg.SiteID == "" || c.cfg.APIKey == "" {
			return nil, newError(KindNotConfigured, 0, "", nil)
		}
		req.Header.Set("Authorization", "Basic "+basicAuth(c.cfg.SiteID, c.cfg.APIKey))
		req.Header.Set("Content-Type", jsonContentType)
		if c.cfg.UserAgent != "" {
			req.Header.Set("User-Agent", c.cfg.UserAgent)
		}
	}
	for k, v := range params.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// clientError handles 4xx responses and statuses outside the defined classes.
func (c *Client) clientError(params Request, status int, body []byte) error {
	c.counter.Reset()
	msg := errorMessage(body)
	switch status {
	case http.StatusUnauthorized:
		c.circuit.Pause(c.cfg.PauseDuration)
		c.logger.Error("credentials rejected, pausing requests", log.Str("url", params.URL))
		return newError(KindUnauthorized, status, msg, nil)
	case http.StatusBadRequest:
		c.logger.Error("request rejected by server", log.Str("url", params.URL), log.Str("message", msg))
		return newError(KindBadRequest, status, msg, nil)
	default:
		c.logger.Error("unexpected status, probable integration error",
			log.Str("url", params.URL), log.Int("status", status), log.Str("message", msg))
		return newError(KindUnsuccessfulStatus, status, msg, nil)
	}
}

// waitReissue arms the shared Timer and blocks until it fires. It fails with
// ErrCancelled if the reissue is replaced by another call, the Client closes
// without finishing or ctx ends.
func (c *Client) waitReissue(ctx context.Context, delay time.Duration) error {
	fired := make(chan struct{})
	replaced := make(chan struct{})
	h := c.timer.ScheduleAndCancelPrevious(delay,
		func() { close(fired) },
		timer.OnCancel(func() { close(replaced) }))

	select {
	case <-fired:
		return nil
	case <-replaced:
		if c.baseCtx.Err() != nil {
			return newError(KindCancelled, 0, "", errClientClosed)
		}
		return newError(KindCancelled, 0, "", errReissueReplaced)
	case <-ctx.Done():
		h.Cancel()
		return newError(KindCancelled, 0, "", context.Cause(ctx))
	}
}

// Close stops the Client and rejects later calls. With finishTasks it waits
// for in-flight calls to resolve, letting an armed reissue fire; otherwise
// in-flight calls and pending reissues are cancelled.
func (c *Client) Close(finishTasks bool) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if !finishTasks {
		c.cancelBase(errClientClosed)
		c.timer.Cancel()
	}
	c.inflight.Wait()
	c.cancelBase(errClientClosed)
}

// Circuit exposes the shared circuit state.
func (c *Client) Circuit() *circuit.State { return c.circuit }

func (c *Client) observe(outcome string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(outcome, status, elapsed)
	}
}

func outcomeForStatus(status int) string {
	switch {
	case status < 300:
		return "success"
	case status >= 500 && status < 600:
		return "server_error"
	default:
		return "client_error"
	}
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
