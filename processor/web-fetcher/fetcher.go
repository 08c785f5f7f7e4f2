package webfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/c360studio/semfetch/fetcherr"
	"github.com/c360studio/semfetch/source/extract"
	"github.com/c360studio/semfetch/source/weburl"
)

// Fetcher defaults.
const (
	DefaultUserAgent        = "semfetch/1.0 (+https://github.com/c360studio/semfetch)"
	DefaultMaxContentLength = 10 * 1024 * 1024
	DefaultMaxRedirects     = 5
	DefaultChunkSize        = 32 * 1024

	// NoRedirects as FetcherConfig.MaxRedirects returns a redirect response
	// as the outcome instead of following it.
	NoRedirects = -1
)

const (
	acceptHeader         = "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.5"
	acceptLanguageHeader = "en-US,en;q=0.5"
)

// Outcome is the result of a completed HTTP exchange.
type Outcome struct {
	StatusCode  int
	ContentType string
	// Body holds at most the configured maximum number of bytes. It is empty
	// for non-2xx responses.
	Body []byte
	// Truncated is set when the body exceeded the maximum and was discarded.
	Truncated bool
	// FinalURL is the URL of the last request after redirects.
	FinalURL string
	Elapsed  time.Duration
}

// FetcherConfig configures a Fetcher. Zero values take defaults.
type FetcherConfig struct {
	UserAgent        string
	MaxContentLength int64
	MaxRedirects     int
	ChunkSize        int
}

// RedirectValidator re-validates redirect targets. *weburl.Validator
// satisfies it.
type RedirectValidator interface {
	ValidateRedirect(ctx context.Context, target *url.URL, orig *weburl.Request) (*weburl.Request, error)
}

// Fetcher performs size- and time-bounded GET requests for validated
// requests. It is safe for concurrent use and shares one pooled transport.
type Fetcher struct {
	client           *http.Client
	validator        RedirectValidator
	userAgent        string
	maxContentLength int64
	maxRedirects     int
	chunkSize        int
	logger           *slog.Logger
}

// NewFetcher creates a fetcher. Redirect targets are re-validated with
// validator before they are followed.
func NewFetcher(cfg FetcherConfig, validator RedirectValidator, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{
		validator:        validator,
		userAgent:        cfg.UserAgent,
		maxContentLength: cfg.MaxContentLength,
		maxRedirects:     cfg.MaxRedirects,
		chunkSize:        cfg.ChunkSize,
		logger:           logger,
	}
	if f.userAgent == "" {
		f.userAgent = DefaultUserAgent
	}
	if f.maxContentLength <= 0 {
		f.maxContentLength = DefaultMaxContentLength
	}
	if f.maxRedirects == 0 {
		f.maxRedirects = DefaultMaxRedirects
	}
	if f.chunkSize <= 0 {
		f.chunkSize = DefaultChunkSize
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	// Connect only to addresses pinned during validation so a second DNS
	// answer cannot redirect the connection (DNS rebinding).
	pinnedDialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address: %w", err)
		}
		pins := pinsFrom(ctx)
		if pins == nil {
			return nil, fmt.Errorf("connection to %s refused: no validated addresses", host)
		}
		addrs := pins.lookup(host)
		if len(addrs) == 0 {
			return nil, fmt.Errorf("connection to %s refused: host was not validated", host)
		}

		var lastErr error
		for _, ip := range addrs {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, fmt.Errorf("failed to connect to any validated address: %w", lastErr)
	}

	transport := &http.Transport{
		Proxy:               nil,
		DialContext:         pinnedDialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	f.client = &http.Client{
		Transport:     transport,
		CheckRedirect: f.checkRedirect,
	}
	return f
}

// checkRedirect validates and pins every hop before it is followed.
func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if f.maxRedirects < 0 {
		return http.ErrUseLastResponse
	}
	if len(via) > f.maxRedirects {
		return fetcherr.New(fetcherr.KindNetwork, "stopped after %d redirects", f.maxRedirects)
	}
	ctx := req.Context()
	pins := pinsFrom(ctx)
	if pins == nil || f.validator == nil {
		return fetcherr.New(fetcherr.KindNetwork, "redirect to %s refused: no validator", req.URL.Redacted())
	}
	next, err := f.validator.ValidateRedirect(ctx, req.URL, pins.origin)
	if err != nil {
		f.logger.Debug("Redirect blocked", "target", req.URL.Redacted(), "error", err)
		return err
	}
	pins.add(next.Host, next.Addrs)
	return nil
}

// Fetch performs a GET for req within req.Timeout.
//
// Non-2xx responses return an Outcome and no error; their body is not read.
// The returned error is always a *fetcherr.Error. A body exceeding the
// maximum returns both an Outcome with Truncated set and a
// ContentTooLargeError.
func (f *Fetcher) Fetch(ctx context.Context, req *weburl.Request) (*Outcome, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	pins := newPinSet(req)
	ctx = withPins(ctx, pins)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.String(), nil)
	if err != nil {
		return nil, fetcherr.Wrap(fetcherr.KindMalformedURL, err, "create request")
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", acceptHeader)
	httpReq.Header.Set("Accept-Language", acceptLanguageHeader)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, f.classify(ctx, err, req, "fetch")
	}
	defer resp.Body.Close()

	outcome := &Outcome{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome.Elapsed = time.Since(start)
		return outcome, nil
	}

	if !extract.Supported(outcome.ContentType) {
		ct := outcome.ContentType
		if ct == "" {
			ct = "none"
		}
		return nil, fetcherr.New(fetcherr.KindUnsupportedContentType,
			"content type %q is not supported", ct).WithStatus(resp.StatusCode, outcome.ContentType)
	}

	if resp.ContentLength > f.maxContentLength {
		return nil, fetcherr.New(fetcherr.KindContentTooLarge,
			"declared content length %d exceeds maximum of %d bytes", resp.ContentLength, f.maxContentLength).
			WithStatus(resp.StatusCode, outcome.ContentType)
	}

	body, err := f.readBounded(resp.Body)
	outcome.Elapsed = time.Since(start)
	if err != nil {
		if fetcherr.Is(err, fetcherr.KindContentTooLarge) {
			outcome.Truncated = true
			return outcome, fetcherr.Classify(err).WithStatus(resp.StatusCode, outcome.ContentType)
		}
		return nil, f.classify(ctx, err, req, "read body")
	}
	outcome.Body = body
	return outcome, nil
}

// readBounded streams r in chunks and stops as soon as the cumulative size
// exceeds the maximum. The partial body is discarded in that case.
func (f *Fetcher) readBounded(r io.Reader) ([]byte, error) {
	var body []byte
	chunk := make([]byte, f.chunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if int64(len(body)+n) > f.maxContentLength {
				return nil, fetcherr.New(fetcherr.KindContentTooLarge,
					"content exceeds maximum of %d bytes", f.maxContentLength)
			}
			body = append(body, chunk[:n]...)
		}
		if errors.Is(err, io.EOF) {
			return body, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// classify maps transport failures onto the error taxonomy. Errors already
// classified, such as a blocked redirect, keep their kind.
func (f *Fetcher) classify(ctx context.Context, err error, req *weburl.Request, op string) error {
	if fe, ok := fetcherr.As(err); ok {
		return fe
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fetcherr.Wrap(fetcherr.KindTimeout, err,
			"request timed out after "+strconv.FormatFloat(req.TimeoutSeconds(), 'f', -1, 64)+"s")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fetcherr.Wrap(fetcherr.KindTimeout, err, op)
	}
	if errors.Is(err, context.Canceled) {
		return fetcherr.Wrap(fetcherr.KindNetwork, err, op+" canceled")
	}
	return fetcherr.Wrap(fetcherr.KindNetwork, err, op)
}

// pinSet maps host names to the addresses validated for them during one
// Fetch, including redirect hops.
type pinSet struct {
	origin *weburl.Request

	mu    sync.Mutex
	hosts map[string][]netip.Addr
}

func newPinSet(req *weburl.Request) *pinSet {
	p := &pinSet{origin: req, hosts: make(map[string][]netip.Addr)}
	p.add(req.Host, req.Addrs)
	return p
}

func (p *pinSet) add(host string, addrs []netip.Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hosts[normalizeHost(host)] = addrs
}

func (p *pinSet) lookup(host string) []netip.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hosts[normalizeHost(host)]
}

func normalizeHost(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}

type pinsKey struct{}

func withPins(ctx context.Context, p *pinSet) context.Context {
	return context.WithValue(ctx, pinsKey{}, p)
}

func pinsFrom(ctx context.Context) *pinSet {
	p, _ := ctx.Value(pinsKey{}).(*pinSet)
	return p
}
