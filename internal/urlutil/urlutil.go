// Package urlutil provides URL resolution and resource fetching for
// manifests, remote elements and steering documents.
package urlutil

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/streamsource/pkg/httpclient"
)

const (
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeFile  = "file"
)

// IsRelative reports whether u has no scheme and so must be resolved
// against a base before it can be fetched.
func IsRelative(u string) bool {
	if u == "" {
		return true
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return parsed.Scheme == ""
}

// Resolve resolves ref against base. Absolute references are returned
// unchanged, as is ref when base is empty.
func Resolve(base, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", ref, err)
	}
	if refURL.IsAbs() || base == "" {
		return ref, nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// BaseOf returns u with its final path segment, query and fragment removed,
// so relative references resolve to siblings of u.
func BaseOf(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	if i := strings.LastIndex(parsed.Path, "/"); i >= 0 {
		parsed.Path = parsed.Path[:i+1]
	}
	parsed.RawPath = ""
	return parsed.String()
}

// FileURL converts a local path to an absolute file:// URL. Directories get
// a trailing slash so they can be used as resolution bases.
func FileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	u := url.URL{Scheme: SchemeFile, Path: filepath.ToSlash(abs)}
	if info, err := os.Stat(abs); err == nil && info.IsDir() && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String(), nil
}

// WorkingDirectoryURL returns the process working directory as a file:// URL.
func WorkingDirectoryURL() string {
	wd, err := os.Getwd()
	if err != nil {
		return "file:///"
	}
	u, err := FileURL(wd)
	if err != nil {
		return "file:///"
	}
	return u
}

// Resource is a fetched document.
type Resource struct {
	// URL is the final location after redirects.
	URL        string
	StatusCode int
	StatusText string
	Data       []byte
}

// ResourceFetcher fetches resources from http(s) and file:// URLs.
type ResourceFetcher struct {
	httpClient *httpclient.Client
}

// NewResourceFetcher creates a ResourceFetcher backed by client.
func NewResourceFetcher(client *httpclient.Client) *ResourceFetcher {
	if client == nil {
		client = httpclient.NewWithDefaults()
	}
	return &ResourceFetcher{httpClient: client}
}

// NewDefaultResourceFetcher creates a ResourceFetcher with default settings.
func NewDefaultResourceFetcher() *ResourceFetcher {
	return NewResourceFetcher(nil)
}

// Fetch retrieves the resource at u. For http(s) responses outside the 2xx
// range both the resource and a *httpclient.StatusError are returned.
func (f *ResourceFetcher) Fetch(ctx context.Context, u string, header http.Header) (*Resource, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", u, err)
	}

	switch scheme := strings.ToLower(parsed.Scheme); scheme {
	case SchemeHTTP, SchemeHTTPS:
		resp, err := f.httpClient.Fetch(ctx, u, header)
		if resp == nil {
			return nil, fmt.Errorf("fetching %s: %w", u, err)
		}
		return &Resource{
			URL:        resp.URL,
			StatusCode: resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Data:       resp.Body,
		}, err
	case SchemeFile:
		return readFile(ctx, u, parsed.Path)
	case "":
		return nil, fmt.Errorf("%q has no scheme; resolve it against a base first", u)
	default:
		return nil, fmt.Errorf("unsupported URL scheme %q in %s", scheme, u)
	}
}

func readFile(ctx context.Context, u, path string) (*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("%s has an empty path", u)
	}

	data, err := os.ReadFile(filepath.FromSlash(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return &Resource{
		URL:        u,
		StatusCode: http.StatusOK,
		StatusText: http.StatusText(http.StatusOK),
		Data:       data,
	}, nil
}
