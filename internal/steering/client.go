// Package steering implements the DASH content steering client and the
// steering authority consulted by base URL selection.
package steering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/jmylchreest/streamsource/internal/events"
	"github.com/jmylchreest/streamsource/internal/manifest"
	"github.com/jmylchreest/streamsource/internal/urlutil"
)

// Query parameters appended to every steering request.
const (
	QueryPathway    = "_DASH_pathway"
	QueryThroughput = "_DASH_throughput"
)

const (
	// DefaultTTL applies when the server omits TTL.
	DefaultTTL = 300 * time.Second

	// DefaultTimeout bounds a single steering request.
	DefaultTimeout = 5 * time.Second

	supportedVersion = 1
)

var (
	// ErrNoSteering is returned by Load when the manifest declares no
	// steering server.
	ErrNoSteering = errors.New("steering: manifest declares no content steering")

	// ErrUnsupportedVersion is returned for a steering document whose VERSION
	// is not 1.
	ErrUnsupportedVersion = errors.New("steering: unsupported version")
)

// Fetcher retrieves steering documents.
type Fetcher interface {
	Fetch(ctx context.Context, u string, header http.Header) (*urlutil.Resource, error)
}

// Data is a parsed steering document.
type Data struct {
	Version         int      `json:"VERSION" yaml:"version"`
	TTL             int      `json:"TTL,omitempty" yaml:"ttl,omitempty"`
	ReloadURI       string   `json:"RELOAD-URI,omitempty" yaml:"reload_uri,omitempty"`
	PathwayPriority []string `json:"PATHWAY-PRIORITY" yaml:"pathway_priority"`

	// ReceivedAt and RequestURL are set by the client.
	ReceivedAt time.Time `json:"-" yaml:"received_at"`
	RequestURL string    `json:"-" yaml:"request_url"`
}

// ReloadAfter returns how long the document stays valid.
func (d *Data) ReloadAfter() time.Duration {
	if d == nil || d.TTL <= 0 {
		return DefaultTTL
	}
	return time.Duration(d.TTL) * time.Second
}

// Config configures a Client.
type Config struct {
	Bus     *events.Bus
	Fetcher Fetcher
	Logger  *slog.Logger
	Timeout time.Duration
}

// Client fetches steering documents for the current manifest and remembers
// the latest one.
type Client struct {
	bus     *events.Bus
	fetcher Fetcher
	logger  *slog.Logger
	timeout time.Duration

	mu          sync.RWMutex
	declaration *manifest.ContentSteering
	baseURI     string
	data        *Data
	pathway     string
	throughput  int64
}

// NewClient creates a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("steering: fetcher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		bus:     cfg.Bus,
		fetcher: cfg.Fetcher,
		logger:  cfg.Logger,
		timeout: cfg.Timeout,
	}, nil
}

// Update installs the steering declaration of m. Steering data fetched for a
// different server is dropped.
func (c *Client) Update(m *manifest.Manifest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var decl *manifest.ContentSteering
	base := ""
	if m != nil {
		decl = m.ContentSteering
		base = m.BaseURI
		if base == "" {
			base = urlutil.BaseOf(m.URL)
		}
	}
	if decl == nil || c.declaration == nil || decl.ServerURL != c.declaration.ServerURL {
		c.data = nil
	}
	c.declaration = decl
	c.baseURI = base
}

// Declaration returns the installed steering declaration, or nil.
func (c *Client) Declaration() *manifest.ContentSteering {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.declaration
}

// Data returns the latest steering document, or nil.
func (c *Client) Data() *Data {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data
}

// SetPathway records the pathway currently in use. It is reported to the
// steering server on the next request.
func (c *Client) SetPathway(serviceLocation string) {
	c.mu.Lock()
	c.pathway = serviceLocation
	c.mu.Unlock()
}

// SetThroughput records the measured throughput in bits per second.
func (c *Client) SetThroughput(bps int64) {
	c.mu.Lock()
	c.throughput = bps
	c.mu.Unlock()
}

// Load fetches the steering document and publishes
// events.ContentSteeringRequestCompleted with the outcome.
func (c *Client) Load(ctx context.Context) (*Data, error) {
	reqURL, err := c.requestURL()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.fetch(ctx, reqURL)
	serverURL := c.serverURL()
	if err != nil {
		c.logger.Warn("content steering request failed",
			slog.String("url", reqURL),
			slog.String("error", err.Error()))
		c.publish(events.ContentSteeringRequestCompletedPayload{ServerURL: serverURL, Err: err})
		return nil, err
	}

	c.mu.Lock()
	c.data = data
	c.mu.Unlock()

	c.logger.Debug("content steering updated",
		slog.String("url", reqURL),
		slog.Any("pathway_priority", data.PathwayPriority),
		slog.Duration("ttl", data.ReloadAfter()))
	c.publish(events.ContentSteeringRequestCompletedPayload{
		ServerURL:       serverURL,
		PathwayPriority: append([]string(nil), data.PathwayPriority...),
	})
	return data, nil
}

func (c *Client) fetch(ctx context.Context, reqURL string) (*Data, error) {
	res, err := c.fetcher.Fetch(ctx, reqURL, http.Header{"Accept": []string{"application/json"}})
	if err != nil {
		return nil, fmt.Errorf("fetching steering document: %w", err)
	}

	var data Data
	if err := json.Unmarshal(res.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding steering document: %w", err)
	}
	if data.Version != supportedVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data.Version)
	}
	data.ReceivedAt = time.Now()
	data.RequestURL = res.URL
	if data.RequestURL == "" {
		data.RequestURL = reqURL
	}
	return &data, nil
}

func (c *Client) publish(p events.ContentSteeringRequestCompletedPayload) {
	if c.bus != nil {
		c.bus.Trigger(events.ContentSteeringRequestCompleted, p)
	}
}

func (c *Client) serverURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.declaration == nil {
		return ""
	}
	return c.declaration.ServerURL
}

// requestURL builds the next request URL. A RELOAD-URI from the previous
// document takes precedence over the declared server URL.
func (c *Client) requestURL() (string, error) {
	c.mu.RLock()
	decl := c.declaration
	base := c.baseURI
	data := c.data
	pathway := c.pathway
	throughput := c.throughput
	c.mu.RUnlock()

	if decl == nil || decl.ServerURL == "" {
		return "", ErrNoSteering
	}

	target, err := urlutil.Resolve(base, decl.ServerURL)
	if err != nil {
		return "", fmt.Errorf("resolving steering server url: %w", err)
	}
	if data != nil && data.ReloadURI != "" {
		if target, err = urlutil.Resolve(data.RequestURL, data.ReloadURI); err != nil {
			return "", fmt.Errorf("resolving steering reload uri: %w", err)
		}
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parsing steering url: %w", err)
	}
	q := u.Query()
	if pathway != "" {
		q.Set(QueryPathway, pathway)
	}
	if throughput > 0 {
		q.Set(QueryThroughput, strconv.FormatInt(throughput, 10))
	}
	u.RawQuery = q.Encode()

	if decl.ProxyServerURL == "" {
		return u.String(), nil
	}
	proxy, err := url.Parse(decl.ProxyServerURL)
	if err != nil {
		return "", fmt.Errorf("parsing steering proxy url: %w", err)
	}
	pq := proxy.Query()
	pq.Set("url", u.String())
	proxy.RawQuery = pq.Encode()
	return proxy.String(), nil
}

// Reset drops the declaration, the steering data and the recorded pathway.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.declaration = nil
	c.baseURI = ""
	c.data = nil
	c.pathway = ""
	c.throughput = 0
}
