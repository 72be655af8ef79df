package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/streamsource/internal/blacklist"
	"github.com/jmylchreest/streamsource/internal/config"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersionCommand_JSON(t *testing.T) {
	out := execute(t, "version", "--json")

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Equal(t, []any{"dash", "hls", "mss"}, info["dialects"])
}

func TestConfigDumpCommand(t *testing.T) {
	out := execute(t, "config", "dump")

	assert.Contains(t, out, "# streamsource Configuration File")
	assert.Contains(t, out, "blacklist:")
	assert.Contains(t, out, "enable_duration_mismatch_fix: true")
}

func TestLoadCommand(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT6S">
  <BaseURL serviceLocation="one">http://one.example/</BaseURL>
  <BaseURL serviceLocation="two">http://two.example/</BaseURL>
  <Period id="p">
    <AdaptationSet mimeType="video/mp4">
      <Representation id="r" bandwidth="500000"/>
    </AdaptationSet>
  </Period>
</MPD>`)
	}))
	t.Cleanup(origin.Close)

	out := execute(t, "load", origin.URL+"/a.mpd", "--output", "json", "--blacklist", "one", "--log-level", "error")

	var sum map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &sum), out)
	assert.Equal(t, origin.URL+"/a.mpd", sum["url"])
	assert.Equal(t, "http://two.example/", sum["base_url"])
}

func TestHTTPClientConfig(t *testing.T) {
	cfg, err := config.FromViper(config.New("/nonexistent/config.yaml"))
	require.NoError(t, err)
	cfg.Manifest.RetryAttempts = 2
	cfg.Manifest.MaxSize = 1024
	cfg.Manifest.UserAgent = "player/2"
	cfg.CircuitBreaker.Threshold = 7

	hc := httpClientConfig(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, cfg.Manifest.RequestTimeout, hc.Timeout)
	assert.Equal(t, 2, hc.RetryAttempts)
	assert.Equal(t, int64(1024), hc.MaxResponseSize)
	assert.Equal(t, "player/2", hc.UserAgent)
	assert.Equal(t, 7, hc.CircuitThreshold)
}

func TestBlacklistBackend(t *testing.T) {
	cfg := &config.Config{Blacklist: config.BlacklistConfig{Backend: config.BlacklistBackendMemory, TTL: time.Minute}}

	backend, err := blacklistBackend(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &blacklist.MemoryBackend{}, backend)

	cfg.Blacklist.Backend = config.BlacklistBackendRedis
	cfg.Blacklist.Redis.Addr = ""
	_, err = blacklistBackend(context.Background(), cfg)
	assert.Error(t, err)
}
