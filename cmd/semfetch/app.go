package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/semfetch/config"
	webfetcher "github.com/c360studio/semfetch/processor/web-fetcher"
	"github.com/c360studio/semfetch/ratelimit"
	"github.com/c360studio/semfetch/source/extract"
	"github.com/c360studio/semfetch/source/weburl"
)

// app holds the components built from one configuration.
type app struct {
	pipeline *webfetcher.Pipeline
	registry *prometheus.Registry
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	allowed, err := cfg.Security.AllowedPrefixes()
	if err != nil {
		return nil, err
	}
	if len(allowed) > 0 {
		logger.Warn("Private address ranges exempted from validation", "allowed_cidrs", cfg.Security.AllowedCIDRs)
	}

	validator, err := weburl.NewValidator(weburl.Options{
		MaxURLLength:    cfg.Security.MaxURLLength,
		DefaultTimeout:  cfg.Fetch.DefaultTimeout,
		MaxTimeout:      cfg.Fetch.MaxTimeout,
		BlockedHosts:    cfg.Security.BlockedHosts,
		DefaultScheme:   cfg.Security.DefaultScheme,
		AllowedPrefixes: allowed,
	})
	if err != nil {
		return nil, fmt.Errorf("create validator: %w", err)
	}

	extractor, err := extract.New(extract.Options{
		Format:        cfg.Extract.Format,
		MinTextLength: cfg.Extract.MinTextLength,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create extractor: %w", err)
	}

	redirects := cfg.Fetch.Redirects()
	if redirects == 0 {
		redirects = webfetcher.NoRedirects
	}
	fetcher := webfetcher.NewFetcher(webfetcher.FetcherConfig{
		UserAgent:        cfg.Fetch.UserAgent,
		MaxContentLength: cfg.Fetch.MaxContentLength,
		MaxRedirects:     redirects,
	}, validator, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pipeline, err := webfetcher.NewPipeline(webfetcher.Components{
		Validator:   validator,
		Limiter:     ratelimit.NewFixedWindow(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		HostLimiter: ratelimit.NewHostLimiter(cfg.RateLimit.PerHostRequests, cfg.RateLimit.PerHostWindow),
		Fetcher:     fetcher,
		Extractor:   extractor,
		Registerer:  registry,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	logger.Debug("Pipeline configured",
		"default_timeout", cfg.Fetch.DefaultTimeout,
		"max_timeout", cfg.Fetch.MaxTimeout,
		"max_content_length", cfg.Fetch.MaxContentLength,
		"rate_limit", cfg.RateLimit.Requests,
		"rate_window", cfg.RateLimit.Window,
		"format", cfg.Extract.Format)

	return &app{pipeline: pipeline, registry: registry}, nil
}

// metricsMux serves the registry on /metrics.
func (a *app) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	return mux
}
