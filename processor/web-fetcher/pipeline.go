package webfetcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/semfetch/fetcherr"
	"github.com/c360studio/semfetch/ratelimit"
	"github.com/c360studio/semfetch/source/extract"
	"github.com/c360studio/semfetch/source/weburl"
)

// TextExtractor turns a response body into a document. *extract.Extractor
// satisfies it.
type TextExtractor interface {
	ExtractPage(contentType string, body []byte, pageURL *url.URL) (*extract.Document, error)
}

// Components are the collaborators a Pipeline runs. Validator, Limiter,
// Fetcher and Extractor are required.
type Components struct {
	Validator *weburl.Validator
	Limiter   *ratelimit.FixedWindow
	// HostLimiter is optional; nil disables per-host limiting.
	HostLimiter *ratelimit.HostLimiter
	Fetcher     *Fetcher
	Extractor   TextExtractor
	// Registerer receives the pipeline metrics. Nil disables registration.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// Pipeline runs one URL through validation, rate limiting, the bounded
// fetch and text extraction. It is safe for concurrent use.
type Pipeline struct {
	validator *weburl.Validator
	limiter   *ratelimit.FixedWindow
	hosts     *ratelimit.HostLimiter
	fetcher   *Fetcher
	extractor TextExtractor
	metrics   *metrics
	logger    *slog.Logger
}

// NewPipeline creates a pipeline from its components.
func NewPipeline(c Components) (*Pipeline, error) {
	switch {
	case c.Validator == nil:
		return nil, errors.New("pipeline requires a validator")
	case c.Limiter == nil:
		return nil, errors.New("pipeline requires a rate limiter")
	case c.Fetcher == nil:
		return nil, errors.New("pipeline requires a fetcher")
	case c.Extractor == nil:
		return nil, errors.New("pipeline requires an extractor")
	}

	m, err := newMetrics(c.Registerer)
	if err != nil {
		return nil, err
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		validator: c.Validator,
		limiter:   c.Limiter,
		hosts:     c.HostLimiter,
		fetcher:   c.Fetcher,
		extractor: c.Extractor,
		metrics:   m,
		logger:    logger,
	}, nil
}

// Run processes rawURL with the requested timeout in seconds (nil for the
// default). It never panics and never returns an unclassified failure.
func (p *Pipeline) Run(ctx context.Context, rawURL string, timeout *float64) (resp Response) {
	requestID := uuid.NewString()
	logger := p.logger.With("request_id", requestID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pipeline panic recovered",
				"url", rawURL, "panic", r, "stack", string(debug.Stack()))
			resp = failure(StageInternal, rawURL, fetcherr.New(fetcherr.KindInternal, "internal error: %v", r))
		}
		resp.RequestID = requestID
		p.metrics.observeOutcome(resp.ErrorKind)

		if resp.Success {
			logger.Info("URL fetched",
				"url", resp.URL,
				"status", resp.StatusCode,
				"text_length", resp.TextLength,
				"duration", time.Since(start))
		} else {
			logger.Info("URL fetch failed",
				"url", rawURL,
				"stage", resp.Stage,
				"error_kind", resp.ErrorKind,
				"error", resp.Message,
				"duration", time.Since(start))
		}
	}()

	return p.run(ctx, logger, rawURL, timeout)
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, rawURL string, timeout *float64) Response {
	stageStart := time.Now()
	req, err := p.validator.Validate(ctx, rawURL, timeout)
	if err != nil {
		return failure(StageValidation, rawURL, err)
	}
	logger.Debug("URL validated",
		"url", req.String(), "addrs", req.Addrs, "duration", time.Since(stageStart))

	if d := p.limiter.Attempt(); !d.Allowed {
		err := fetcherr.New(fetcherr.KindRateLimitExceeded,
			"rate limit of %d requests per %s exceeded", p.limiter.Capacity(), p.limiter.Window())
		err.RetryAfter = d.RetryAfter
		return failure(StageRateLimit, req.String(), err)
	}
	if d := p.hosts.Attempt(req.Host); !d.Allowed {
		err := fetcherr.New(fetcherr.KindRateLimitExceeded, "rate limit for host %s exceeded", req.Host)
		err.RetryAfter = d.RetryAfter
		return failure(StageRateLimit, req.String(), err)
	}

	outcome, err := p.fetcher.Fetch(ctx, req)
	if outcome != nil {
		p.metrics.observeFetch(outcome.StatusCode, outcome.Elapsed)
	}
	if err != nil {
		return failure(StageFetch, req.String(), err)
	}
	logger.Debug("Response received",
		"status", outcome.StatusCode,
		"content_type", outcome.ContentType,
		"bytes", len(outcome.Body),
		"duration", outcome.Elapsed)

	if outcome.StatusCode < 200 || outcome.StatusCode > 299 {
		err := fetcherr.New(fetcherr.KindHTTPStatus, "HTTP %d: %s",
			outcome.StatusCode, http.StatusText(outcome.StatusCode)).
			WithStatus(outcome.StatusCode, outcome.ContentType)
		return failure(StageFetch, req.String(), err)
	}
	p.metrics.bodyBytes.Observe(float64(len(outcome.Body)))

	stageStart = time.Now()
	doc, err := p.extractor.ExtractPage(outcome.ContentType, outcome.Body, pageURL(outcome, req))
	if err != nil {
		fe := fetcherr.Classify(err).WithStatus(outcome.StatusCode, outcome.ContentType)
		return failure(StageExtraction, req.String(), fe)
	}
	p.metrics.textRunes.Observe(float64(doc.TextLength))
	logger.Debug("Text extracted",
		"strategy", doc.Strategy,
		"encoding", doc.Encoding,
		"text_length", doc.TextLength,
		"duration", time.Since(stageStart))

	return Response{
		Success:     true,
		URL:         req.String(),
		Title:       doc.Title,
		ContentType: outcome.ContentType,
		StatusCode:  outcome.StatusCode,
		Text:        doc.Text,
		TextLength:  doc.TextLength,
	}
}

// pageURL is the base for resolving relative links: the final URL after
// redirects when known.
func pageURL(outcome *Outcome, req *weburl.Request) *url.URL {
	if outcome.FinalURL != "" {
		if u, err := url.Parse(outcome.FinalURL); err == nil {
			return u
		}
	}
	return req.URL()
}
