package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// decoders maps a Content-Encoding token to a reader constructor.
var decoders = map[string]func(io.Reader) (io.Reader, error){
	EncodingGzip:    func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) },
	"x-gzip":        func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) },
	EncodingDeflate: func(r io.Reader) (io.Reader, error) { return flate.NewReader(r), nil },
	EncodingBrotli:  func(r io.Reader) (io.Reader, error) { return brotli.NewReader(r), nil },
}

// decodeBody replaces resp.Body with a reader undoing Content-Encoding.
// Codings are applied in reverse of the order listed. An unknown or broken
// coding leaves the body untouched.
func (c *Client) decodeBody(resp *http.Response) {
	header := strings.TrimSpace(resp.Header.Get(HeaderContentEncoding))
	if header == "" || strings.EqualFold(header, "identity") {
		return
	}

	codings := strings.Split(header, ",")
	var r io.Reader = resp.Body
	for i := len(codings) - 1; i >= 0; i-- {
		name := strings.ToLower(strings.TrimSpace(codings[i]))
		if name == "identity" {
			continue
		}
		open, ok := decoders[name]
		if !ok {
			c.logger.Debug("unsupported content encoding, leaving body encoded",
				slog.String("encoding", header))
			return
		}
		next, err := open(r)
		if err != nil {
			c.logger.Warn("content decoding failed, leaving body encoded",
				slog.String("encoding", name),
				slog.String("error", err.Error()))
			return
		}
		r = next
	}

	resp.Body = &decodedBody{Reader: r, raw: resp.Body}
	resp.Header.Del(HeaderContentEncoding)
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
}

type decodedBody struct {
	io.Reader
	raw io.ReadCloser
}

func (d *decodedBody) Close() error {
	if c, ok := d.Reader.(io.Closer); ok {
		_ = c.Close()
	}
	return d.raw.Close()
}

// cappedBody fails with ErrResponseTooLarge once more than max bytes are read.
type cappedBody struct {
	body io.ReadCloser
	max  int64
	read int64
}

func capBody(body io.ReadCloser, limit int64) io.ReadCloser {
	if limit <= 0 {
		return body
	}
	return &cappedBody{body: body, max: limit}
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.read > b.max {
		return 0, ErrResponseTooLarge
	}
	n, err := b.body.Read(p)
	b.read += int64(n)
	if b.read > b.max {
		return n, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, b.max)
	}
	return n, err
}

func (b *cappedBody) Close() error { return b.body.Close() }
