// Package client talks to the knowledge-search backend over its HTTP/JSON contract.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/altiplano/parasearch/internal/models"
)

const (
	// DefaultBaseURL is the local backend origin.
	DefaultBaseURL = "http://localhost:8000"

	instrumentationName = "github.com/altiplano/parasearch/internal/client"
	requestIDHeader     = "X-Request-ID"
	maxErrorBody        = 4 << 10
)

// Client issues requests against one backend origin. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     *zap.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	requests   metric.Int64Counter
	duration   metric.Float64Histogram
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each call. Zero leaves hang behavior to the transport.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRateLimit throttles outgoing calls to perMinute requests. Zero disables throttling.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
	}
}

// WithLogger sets a logger for request debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracer overrides the tracer (defaults to the global provider).
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithMeter overrides the meter (defaults to the global provider).
func WithMeter(m metric.Meter) Option {
	return func(c *Client) { c.meter = m }
}

// New creates a client for baseURL. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(instrumentationName)
	}
	if c.meter == nil {
		c.meter = otel.Meter(instrumentationName)
	}
	c.initInstruments()
	return c
}

// BaseURL returns the backend origin the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) initInstruments() {
	var err error
	c.requests, err = c.meter.Int64Counter("parasearch.client.requests",
		metric.WithDescription("Backend calls by operation and outcome"))
	if err != nil {
		c.logger.Warn("client: request counter unavailable", zap.Error(err))
	}
	c.duration, err = c.meter.Float64Histogram("parasearch.client.duration",
		metric.WithDescription("Backend call latency"), metric.WithUnit("s"))
	if err != nil {
		c.logger.Warn("client: duration histogram unavailable", zap.Error(err))
	}
}

// Search posts req to /search and returns the validated response.
// Failures are *StatusError, *TransportError or wrap models.ErrMalformedResponse.
func (c *Client) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}
	var out *models.SearchResponse
	err = c.call(ctx, "search", http.MethodPost, "/search", body, func(r io.Reader) error {
		resp, err := models.DecodeSearchResponse(r)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("search completed",
		zap.String("query", req.Query),
		zap.Int("results", len(out.Results)),
		zap.String("model", out.ModelUsed))
	return out, nil
}

// Health fetches GET /health.
func (c *Client) Health(ctx context.Context) (*models.HealthResponse, error) {
	var out models.HealthResponse
	if err := c.call(ctx, "health", http.MethodGet, "/health", nil, decodeInto(&out)); err != nil {
		return nil, err
	}
	return &out, nil
}

// Models fetches GET /models.
func (c *Client) Models(ctx context.Context) (*models.ModelsResponse, error) {
	var out models.ModelsResponse
	if err := c.call(ctx, "models", http.MethodGet, "/models", nil, decodeInto(&out)); err != nil {
		return nil, err
	}
	return &out, nil
}

func decodeInto(v any) func(io.Reader) error {
	return func(r io.Reader) error {
		if err := json.NewDecoder(r).Decode(v); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}

// call performs one round trip and hands a 2xx body to decode.
func (c *Client) call(ctx context.Context, op, method, path string, body []byte, decode func(io.Reader) error) (err error) {
	start := time.Now()
	requestID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "parasearch.client/"+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", c.baseURL+path),
			attribute.String("parasearch.request_id", requestID),
		))
	defer func() {
		outcome := outcomeOf(err)
		attrs := metric.WithAttributes(attribute.String("operation", op), attribute.String("outcome", outcome))
		if c.requests != nil {
			c.requests.Add(ctx, 1, attrs)
		}
		if c.duration != nil {
			c.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, requestID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	c.logger.Debug("backend request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("url", c.baseURL+path),
		zap.String("request_id", requestID))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			StatusCode: resp.StatusCode,
			StatusText: reasonPhrase(resp),
			Body:       string(b),
		}
	}
	return decode(resp.Body)
}

// reasonPhrase extracts "Not Found" from a "404 Not Found" status line, falling back to
// the standard text for the code when the server sent none.
func reasonPhrase(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

func outcomeOf(err error) string {
	var statusErr *StatusError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &statusErr):
		return "status_" + strconv.Itoa(statusErr.StatusCode)
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, models.ErrMalformedResponse):
		return "malformed"
	default:
		return "error"
	}
}
