// Package httpclient provides the HTTP transport used to fetch manifests,
// remote elements and steering documents.
//
// The client wraps the standard http.Client and adds:
//   - A circuit breaker per origin so one failing CDN does not block others
//   - Optional retries with exponential backoff (disabled by default)
//   - Transparent decompression (gzip, deflate, brotli)
//   - A response size limit applied after decompression
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
)

// Common errors returned by the client.
var (
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	ErrMaxRetries       = errors.New("max retries exceeded")
	ErrResponseTooLarge = errors.New("response body exceeds maximum size limit")
)

// Default configuration values.
const (
	DefaultTimeout              = 30 * time.Second
	DefaultRetryAttempts        = 0
	DefaultRetryDelay           = 500 * time.Millisecond
	DefaultRetryMaxDelay        = 10 * time.Second
	DefaultBackoffMultiplier    = 2.0
	DefaultCircuitThreshold     = 5
	DefaultCircuitTimeout       = 30 * time.Second
	DefaultCircuitHalfOpenMax   = 1
	DefaultMaxResponseSize      = 32 << 20
	DefaultAcceptEncodingHeader = "gzip, deflate, br"
	DefaultUserAgentHeader      = "streamsource-httpclient/1.0"
)

// HTTP header constants.
const (
	HeaderAcceptEncoding  = "Accept-Encoding"
	HeaderContentEncoding = "Content-Encoding"
	HeaderUserAgent       = "User-Agent"

	EncodingGzip    = "gzip"
	EncodingDeflate = "deflate"
	EncodingBrotli  = "br"
)

// Config holds the configuration for the HTTP client.
type Config struct {
	// Timeout is the overall request timeout.
	Timeout time.Duration

	// RetryAttempts is the number of additional attempts after the first.
	// Manifest retries are owned by the player, so the default is zero.
	RetryAttempts int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration

	// RetryMaxDelay caps the backoff delay.
	RetryMaxDelay time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// CircuitThreshold is the number of consecutive failures before an
	// origin's circuit opens.
	CircuitThreshold int

	// CircuitTimeout is how long a circuit stays open before a probe.
	CircuitTimeout time.Duration

	// CircuitHalfOpenMax is the number of probes allowed while half-open.
	CircuitHalfOpenMax int

	// UserAgent is the User-Agent header sent with requests.
	UserAgent string

	// Logger is the structured logger for request logging.
	Logger *slog.Logger

	// EnableDecompression enables automatic response decompression.
	EnableDecompression bool

	// MaxResponseSize limits the decompressed body size. Zero disables it.
	MaxResponseSize int64

	// BaseClient is the underlying http.Client. If nil, one is created.
	BaseClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:             DefaultTimeout,
		RetryAttempts:       DefaultRetryAttempts,
		RetryDelay:          DefaultRetryDelay,
		RetryMaxDelay:       DefaultRetryMaxDelay,
		BackoffMultiplier:   DefaultBackoffMultiplier,
		CircuitThreshold:    DefaultCircuitThreshold,
		CircuitTimeout:      DefaultCircuitTimeout,
		CircuitHalfOpenMax:  DefaultCircuitHalfOpenMax,
		UserAgent:           DefaultUserAgentHeader,
		Logger:              slog.Default(),
		EnableDecompression: true,
		MaxResponseSize:     DefaultMaxResponseSize,
	}
}

// Client is an HTTP client with per-origin circuit breakers and optional retries.
type Client struct {
	config Config
	client *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// New creates a new client with the given configuration.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = DefaultBackoffMultiplier
	}
	cfg.RetryAttempts = max(cfg.RetryAttempts, 0)

	baseClient := cfg.BaseClient
	if baseClient == nil {
		baseClient = &http.Client{
			Timeout: cfg.Timeout,
		}
	}

	return &Client{
		config:   cfg,
		client:   baseClient,
		logger:   cfg.Logger,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// NewWithDefaults creates a new client with default configuration.
func NewWithDefaults() *Client {
	return New(DefaultConfig())
}

// Breaker returns the circuit breaker for an origin host, creating it on
// first use.
func (c *Client) Breaker(host string) *CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.breakers[host]; ok {
		return b
	}
	b := NewCircuitBreaker(c.config.CircuitThreshold, c.config.CircuitTimeout, c.config.CircuitHalfOpenMax)
	c.breakers[host] = b
	return b
}

// Do sends req through the origin's circuit breaker, retrying transport
// errors and retryable statuses up to RetryAttempts times. When retries are
// exhausted on a retryable status the last response is returned rather than
// an error. An open circuit fails immediately with ErrCircuitOpen.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get(HeaderUserAgent) == "" && c.config.UserAgent != "" {
		req.Header.Set(HeaderUserAgent, c.config.UserAgent)
	}
	if c.config.EnableDecompression && req.Header.Get(HeaderAcceptEncoding) == "" {
		req.Header.Set(HeaderAcceptEncoding, DefaultAcceptEncodingHeader)
	}

	host := req.URL.Host
	breaker := c.Breaker(host)
	log := c.logger.With(slog.String("host", host))

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.wait(req.Context(), attempt); err != nil {
				return nil, err
			}
		}
		if !breaker.Allow() {
			log.Warn("circuit open, not sending request", slog.String("state", breaker.State().String()))
			return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, host)
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		elapsed := time.Since(start)

		if err != nil {
			breaker.RecordFailure()
			if req.Context().Err() != nil {
				return nil, err
			}
			log.Warn("request failed",
				slog.Int("attempt", attempt),
				slog.Duration("duration", elapsed),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			breaker.RecordFailure()
		} else {
			breaker.RecordSuccess()
		}

		if isRetryableStatus(resp.StatusCode) && attempt < c.config.RetryAttempts {
			log.Warn("retryable status",
				slog.Int("attempt", attempt),
				slog.Int("status", resp.StatusCode))
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("retryable status %d", resp.StatusCode)
			continue
		}

		log.Debug("request completed",
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", elapsed),
			slog.Int64("content_length", resp.ContentLength))

		if c.config.EnableDecompression {
			c.decodeBody(resp)
		}
		resp.Body = capBody(resp.Body, c.config.MaxResponseSize)
		return resp, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrMaxRetries, lastErr)
}

// wait sleeps for the backoff delay of the given attempt, or until ctx ends.
func (c *Client) wait(ctx context.Context, attempt int) error {
	delay := float64(c.config.RetryDelay) * math.Pow(c.config.BackoffMultiplier, float64(attempt-1))
	if c.config.RetryMaxDelay > 0 && delay > float64(c.config.RetryMaxDelay) {
		delay = float64(c.config.RetryMaxDelay)
	}
	d := time.Duration(min(delay, math.MaxInt64))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Get performs a GET request to the specified URL.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return c.Do(req)
}

// Response is a fully read HTTP response.
type Response struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// StatusError is returned by Fetch for responses outside the 2xx range.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %s", e.Status)
}

// Fetch performs a GET request and reads the whole body. Non-2xx responses
// are returned together with a *StatusError.
func (c *Client) Fetch(ctx context.Context, url string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	out := &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return out, nil
}

// BreakerStatus is a point-in-time view of one origin's circuit.
type BreakerStatus struct {
	Host     string `json:"host"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// Breakers returns the status of every origin seen so far, sorted by host.
func (c *Client) Breakers() []BreakerStatus {
	c.mu.Lock()
	out := make([]BreakerStatus, 0, len(c.breakers))
	for host, b := range c.breakers {
		out = append(out, BreakerStatus{Host: host, State: b.State().String(), Failures: b.Failures()})
	}
	c.mu.Unlock()
	slices.SortFunc(out, func(a, b BreakerStatus) int { return strings.Compare(a.Host, b.Host) })
	return out
}

// ResetCircuits closes every origin's circuit.
func (c *Client) ResetCircuits() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.breakers {
		b.Reset()
	}
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
