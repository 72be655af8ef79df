package dialect

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected Dialect
	}{
		{"dash", `<?xml version="1.0"?><MPD type="static"></MPD>`, DASH},
		{"dash patch", `<Patch mpdId="a"></Patch>`, DASH},
		{"smooth streaming wins over mpd marker", `<SmoothStreamingMedia><!-- MPD --></SmoothStreamingMedia>`, MSS},
		{"hls", "#EXTM3U\n#EXT-X-VERSION:3\n", HLS},
		{"hls with leading whitespace", "\n  #EXTM3U\n", HLS},
		{"unknown", `{"json": true}`, Unknown},
		{"empty", "", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Detect(tt.data))
		})
	}
}

func TestDialect_String(t *testing.T) {
	assert.Equal(t, "dash", DASH.String())
	assert.Equal(t, "mss", MSS.String())
	assert.Equal(t, "hls", HLS.String())
	assert.Equal(t, "unknown", Unknown.String())
}

type countingVariant struct {
	resets int
}

func (v *countingVariant) Dialect() Dialect           { return MSS }
func (v *countingVariant) NewParser() (Parser, error) { return &MSSParser{}, nil }
func (v *countingVariant) Reset()                     { v.resets++ }

func TestRegistry(t *testing.T) {
	t.Run("parser for registered dialect", func(t *testing.T) {
		r := DefaultRegistry()
		p, d, err := r.ParserFor(`<MPD/>`)
		require.NoError(t, err)
		assert.Equal(t, DASH, d)
		assert.IsType(t, &DASHParser{}, p)
	})

	t.Run("unregistered dialect yields no parser", func(t *testing.T) {
		r := NewRegistry(NewDASHVariant())
		p, d, err := r.ParserFor(`<SmoothStreamingMedia/>`)
		require.NoError(t, err)
		assert.Equal(t, MSS, d)
		assert.Nil(t, p)
	})

	t.Run("unknown content yields no parser", func(t *testing.T) {
		p, d, err := DefaultRegistry().ParserFor("garbage")
		require.NoError(t, err)
		assert.Equal(t, Unknown, d)
		assert.Nil(t, p)
	})

	t.Run("register replaces and reset reaches variants", func(t *testing.T) {
		v := &countingVariant{}
		r := DefaultRegistry()
		r.Register(v)

		got, ok := r.Lookup(MSS)
		require.True(t, ok)
		assert.Same(t, v, got)

		r.Reset()
		r.Reset()
		assert.Equal(t, 2, v.resets)
	})
}

func TestDecode(t *testing.T) {
	const doc = `<?xml version="1.0"?><MPD/>`

	gz := func() []byte {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		_, _ = w.Write([]byte(doc))
		_ = w.Close()
		return buf.Bytes()
	}
	bz := func() []byte {
		var buf bytes.Buffer
		w, err := bzip2.NewWriter(&buf, nil)
		require.NoError(t, err)
		_, _ = w.Write([]byte(doc))
		require.NoError(t, w.Close())
		return buf.Bytes()
	}
	xzData := func() []byte {
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		require.NoError(t, err)
		_, _ = w.Write([]byte(doc))
		require.NoError(t, w.Close())
		return buf.Bytes()
	}
	utf16le := func() []byte {
		out := []byte{0xff, 0xfe}
		for _, r := range doc {
			out = append(out, byte(r), 0)
		}
		return out
	}

	tests := []struct {
		name string
		raw  []byte
	}{
		{"plain", []byte(doc)},
		{"utf-8 bom", append([]byte{0xef, 0xbb, 0xbf}, doc...)},
		{"utf-16le bom", utf16le()},
		{"gzip", gz()},
		{"bzip2", bz()},
		{"xz", xzData()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, doc, got)
		})
	}

	t.Run("latin-1 bytes pass through", func(t *testing.T) {
		raw := []byte{'<', 'M', 'P', 'D', ' ', 'a', '=', '"', 0xe9, '"', '/', '>'}
		got, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, string(raw), got)
	})

	t.Run("empty", func(t *testing.T) {
		got, err := Decode(nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
