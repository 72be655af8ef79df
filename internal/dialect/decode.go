package dialect

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/ulikunitz/xz"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decode turns a raw payload into document text. Compressed payloads
// (gzip, bzip2, xz) are detected by magic bytes. A byte order mark is
// stripped and selects UTF-16 decoding; other input passes through as is.
func Decode(raw []byte) (string, error) {
	br := bufio.NewReader(bytes.NewReader(raw))

	header, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("peeking header: %w", err)
	}

	var reader io.Reader = br

	switch {
	case len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return "", fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzr.Close()
		reader = gzr

	case len(header) >= 3 && header[0] == 'B' && header[1] == 'Z' && header[2] == 'h':
		bzr, err := bzip2.NewReader(br, nil)
		if err != nil {
			return "", fmt.Errorf("creating bzip2 reader: %w", err)
		}
		defer bzr.Close()
		reader = bzr

	case len(header) >= 6 && header[0] == 0xfd && header[1] == '7' && header[2] == 'z' && header[3] == 'X' && header[4] == 'Z' && header[5] == 0x00:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return "", fmt.Errorf("creating xz reader: %w", err)
		}
		reader = xzr
	}

	text, err := io.ReadAll(transform.NewReader(reader, unicode.BOMOverride(transform.Nop)))
	if err != nil {
		return "", fmt.Errorf("decoding payload: %w", err)
	}
	return string(text), nil
}
