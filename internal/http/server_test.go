package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/streamsource/internal/config"
	"github.com/jmylchreest/streamsource/internal/http/middleware"
	"github.com/jmylchreest/streamsource/internal/session"
)

const liveMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT8S">
  <BaseURL serviceLocation="a">http://a.example/</BaseURL>
  <BaseURL serviceLocation="b">http://b.example/</BaseURL>
  <Period id="p0">
    <AdaptationSet id="0" mimeType="audio/mp4">
      <Representation id="a1" bandwidth="96000"/>
    </AdaptationSet>
  </Period>
</MPD>`

func newAPI(t *testing.T) (*httptest.Server, *httptest.Server) {
	t.Helper()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, liveMPD)
	}))
	t.Cleanup(origin.Close)

	sess, err := session.New(session.Config{BlacklistTTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 0}, logger, "test")
	srv.RegisterSessionRoutes(sess, RouteOptions{Version: "test", LoadTimeout: 5 * time.Second})

	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)
	return api, origin
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &decoded), string(data))
	}
	return resp, decoded
}

func TestServer_Healthz(t *testing.T) {
	api, _ := newAPI(t)

	resp, body := do(t, http.MethodGet, api.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
}

func TestServer_RequestIDIsEchoed(t *testing.T) {
	api, _ := newAPI(t)

	req, err := http.NewRequest(http.MethodGet, api.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(middleware.RequestIDHeader))
}

func TestServer_LoadResolveBlacklist(t *testing.T) {
	api, origin := newAPI(t)

	resp, _ := do(t, http.MethodGet, api.URL+"/api/v1/manifest", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := do(t, http.MethodPost, api.URL+"/api/v1/manifest/load", fmt.Sprintf(`{"url":%q}`, origin.URL+"/live.mpd"))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	m, ok := body["manifest"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, origin.URL+"/live.mpd", m["url"])
	assert.InDelta(t, 8.0, m["media_presentation_duration"], 1e-9)

	resp, body = do(t, http.MethodGet, api.URL+"/api/v1/resolve?period=p0&representation=a1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://a.example/", body["url"])

	resp, body = do(t, http.MethodPost, api.URL+"/api/v1/blacklist", `{"service_location":"a"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"a"}, body["entries"])

	_, body = do(t, http.MethodGet, api.URL+"/api/v1/resolve?representation=a1", "")
	assert.Equal(t, "http://b.example/", body["url"])

	resp, body = do(t, http.MethodDelete, api.URL+"/api/v1/blacklist", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, body["entries"])
}

func TestServer_LoadValidation(t *testing.T) {
	api, _ := newAPI(t)

	resp, _ := do(t, http.MethodPost, api.URL+"/api/v1/manifest/load", `{"url":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestServer_CORSPreflight(t *testing.T) {
	api, _ := newAPI(t)

	req, err := http.NewRequest(http.MethodOptions, api.URL+"/api/v1/manifest", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://player.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(config.ServerConfig{ShutdownTimeout: time.Second}, logger, "")
	srv.Router().Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/ping")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "pong", string(data))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
