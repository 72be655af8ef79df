package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/streamsource/internal/blacklist"
	"github.com/jmylchreest/streamsource/internal/config"
	"github.com/jmylchreest/streamsource/internal/session"
	"github.com/jmylchreest/streamsource/internal/urlutil"
	"github.com/jmylchreest/streamsource/pkg/httpclient"
)

const redisConnectTimeout = 5 * time.Second

// httpClientConfig maps configuration onto the transport.
func httpClientConfig(cfg *config.Config, log *slog.Logger) httpclient.Config {
	hc := httpclient.DefaultConfig()
	hc.Timeout = cfg.Manifest.RequestTimeout
	hc.RetryAttempts = cfg.Manifest.RetryAttempts
	if cfg.Manifest.RetryDelay > 0 {
		hc.RetryDelay = cfg.Manifest.RetryDelay
	}
	hc.CircuitThreshold = cfg.CircuitBreaker.Threshold
	hc.CircuitTimeout = cfg.CircuitBreaker.Timeout
	hc.CircuitHalfOpenMax = cfg.CircuitBreaker.HalfOpenMax
	hc.MaxResponseSize = cfg.Manifest.MaxSize.Bytes()
	if cfg.Manifest.UserAgent != "" {
		hc.UserAgent = cfg.Manifest.UserAgent
	}
	hc.Logger = log.With(slog.String("component", "httpclient"))
	return hc
}

// blacklistBackend returns the configured backend. The memory backend is
// returned for an empty or "memory" setting.
func blacklistBackend(ctx context.Context, cfg *config.Config) (blacklist.Backend, error) {
	if cfg.Blacklist.Backend != config.BlacklistBackendRedis {
		return blacklist.NewMemoryBackend(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	backend, err := blacklist.NewRedisBackend(ctx, blacklist.RedisConfig{
		Addr:     cfg.Blacklist.Redis.Addr,
		Username: cfg.Blacklist.Redis.Username,
		Password: cfg.Blacklist.Redis.Password,
		DB:       cfg.Blacklist.Redis.DB,
		Prefix:   cfg.Blacklist.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting blacklist redis backend: %w", err)
	}
	return backend, nil
}

// sessionConfig maps configuration onto a session.
func sessionConfig(cfg *config.Config, log *slog.Logger, fetcher session.Fetcher, backend blacklist.Backend) session.Config {
	return session.Config{
		Logger:                    log,
		Fetcher:                   fetcher,
		RequestTimeout:            cfg.Manifest.RequestTimeout,
		EnableDurationMismatchFix: cfg.Manifest.EnableDurationMismatchFix,
		DocumentLocation:          cfg.Manifest.DocumentLocation,
		XlinkTimeout:              cfg.Xlink.Timeout,
		XlinkConcurrency:          cfg.Xlink.Concurrency,
		BlacklistBackend:          backend,
		BlacklistTTL:              cfg.Blacklist.TTL,
		DVBTierRemoval:            cfg.Selection.DVBTierRemoval,
		ApplySteering:             cfg.Steering.Apply,
		SteeringTimeout:           cfg.Steering.Timeout,
		EnableRefresh:             cfg.Refresh.Enabled,
		RefreshMinInterval:        cfg.Refresh.MinInterval,
		RefreshFallbackInterval:   cfg.Refresh.FallbackInterval,
	}
}

// newSession builds a session and the transport it fetches with.
func newSession(ctx context.Context, cfg *config.Config, log *slog.Logger) (*session.Session, *httpclient.Client, error) {
	client := httpclient.New(httpClientConfig(cfg, log))

	backend, err := blacklistBackend(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	sess, err := session.New(sessionConfig(cfg, log, urlutil.NewResourceFetcher(client), backend))
	if err != nil {
		_ = backend.Close()
		return nil, nil, fmt.Errorf("creating session: %w", err)
	}
	return sess, client, nil
}
