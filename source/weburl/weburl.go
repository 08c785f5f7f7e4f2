// Package weburl validates caller-supplied URLs before anything is fetched.
// It implements SSRF prevention: scheme allowlisting, local host name
// blocking, and resolution of the host with every resolved address checked
// against private and reserved address space.
package weburl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/c360studio/semfetch/fetcherr"
)

// DefaultMaxURLLength protects downstream parsers from oversized input.
const DefaultMaxURLLength = 2048

// Resolver resolves host names to addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Request is a validated, normalized fetch request. It is immutable once
// returned by Validate.
type Request struct {
	RawURL  string
	Scheme  string
	Host    string
	Port    int
	Timeout time.Duration

	// Addrs are the resolved addresses that passed validation. The fetcher
	// connects only to these.
	Addrs []netip.Addr

	url *url.URL
}

// URL returns a copy of the parsed URL.
func (r *Request) URL() *url.URL {
	u := *r.url
	return &u
}

// String returns the normalized URL.
func (r *Request) String() string {
	return r.url.String()
}

// TimeoutSeconds returns the fetch timeout in seconds.
func (r *Request) TimeoutSeconds() float64 {
	return r.Timeout.Seconds()
}

// Options configures a Validator.
type Options struct {
	// MaxURLLength is the maximum accepted URL length in bytes.
	MaxURLLength int
	// DefaultTimeout applies when the caller gives no timeout.
	DefaultTimeout time.Duration
	// MaxTimeout is the ceiling for caller-supplied timeouts.
	MaxTimeout time.Duration
	// BlockedHosts are extra glob patterns rejected without DNS.
	BlockedHosts []string
	// DefaultScheme, when set, is prefixed to input that has no "://".
	DefaultScheme string
	// AllowedPrefixes exempt addresses from the blocked-range rules. Host
	// name blocking still applies.
	AllowedPrefixes []netip.Prefix
	// Resolver defaults to net.DefaultResolver.
	Resolver Resolver
}

// Validator decides whether a URL is safe and well-formed to fetch.
type Validator struct {
	maxURLLength   int
	defaultTimeout time.Duration
	maxTimeout     time.Duration
	defaultScheme  string
	blocklist      *HostBlocklist
	allowed        []netip.Prefix
	resolver       Resolver
}

// NewValidator creates a validator. Zero-valued options take defaults.
func NewValidator(opts Options) (*Validator, error) {
	blocklist, err := NewHostBlocklist(opts.BlockedHosts)
	if err != nil {
		return nil, err
	}

	v := &Validator{
		maxURLLength:   opts.MaxURLLength,
		defaultTimeout: opts.DefaultTimeout,
		maxTimeout:     opts.MaxTimeout,
		defaultScheme:  strings.ToLower(opts.DefaultScheme),
		blocklist:      blocklist,
		allowed:        opts.AllowedPrefixes,
		resolver:       opts.Resolver,
	}
	if v.maxURLLength <= 0 {
		v.maxURLLength = DefaultMaxURLLength
	}
	if v.maxTimeout <= 0 {
		v.maxTimeout = 60 * time.Second
	}
	if v.defaultTimeout <= 0 {
		v.defaultTimeout = 10 * time.Second
	}
	if v.defaultTimeout > v.maxTimeout {
		v.defaultTimeout = v.maxTimeout
	}
	if v.resolver == nil {
		v.resolver = net.DefaultResolver
	}
	if v.defaultScheme != "" && v.defaultScheme != "http" && v.defaultScheme != "https" {
		return nil, fmt.Errorf("default scheme must be http or https, got %q", opts.DefaultScheme)
	}
	return v, nil
}

// Validate checks rawURL and the requested timeout (seconds, nil for the
// default). The returned error is always a *fetcherr.Error.
func (v *Validator) Validate(ctx context.Context, rawURL string, timeout *float64) (*Request, error) {
	parsed, err := v.parse(rawURL)
	if err != nil {
		return nil, err
	}

	port, err := portOf(parsed)
	if err != nil {
		return nil, err
	}

	d, err := v.timeout(timeout)
	if err != nil {
		return nil, err
	}

	host := parsed.Hostname()
	lookupCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	addrs, err := v.CheckHost(lookupCtx, host)
	if err != nil {
		return nil, err
	}

	return &Request{
		RawURL:  rawURL,
		Scheme:  parsed.Scheme,
		Host:    host,
		Port:    port,
		Timeout: d,
		Addrs:   addrs,
		url:     parsed,
	}, nil
}

// ValidateRedirect validates a redirect target, keeping the timeout of the
// original request.
func (v *Validator) ValidateRedirect(ctx context.Context, target *url.URL, orig *Request) (*Request, error) {
	seconds := orig.TimeoutSeconds()
	return v.Validate(ctx, target.String(), &seconds)
}

// parse enforces length, syntax and scheme rules.
func (v *Validator) parse(rawURL string) (*url.URL, error) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return nil, fetcherr.New(fetcherr.KindMalformedURL, "URL cannot be empty")
	}
	if len(s) > v.maxURLLength {
		return nil, fetcherr.New(fetcherr.KindMalformedURL, "URL is too long (max %d characters)", v.maxURLLength)
	}
	if v.defaultScheme != "" && !strings.Contains(s, "://") && !strings.Contains(s, ":") {
		s = v.defaultScheme + "://" + s
	}

	parsed, err := url.Parse(s)
	if err != nil {
		if blocked := v.blockedLiteral(s); blocked != nil {
			return nil, blocked
		}
		return nil, fetcherr.Wrap(fetcherr.KindMalformedURL, err, "invalid URL")
	}
	if parsed.Scheme == "" {
		return nil, fetcherr.New(fetcherr.KindMalformedURL, "URL has no scheme")
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fetcherr.New(fetcherr.KindUnsupportedScheme,
			"unsupported scheme %q: only http and https are allowed", scheme)
	}
	parsed.Scheme = scheme

	if parsed.Hostname() == "" {
		return nil, fetcherr.New(fetcherr.KindMalformedURL, "URL has no host")
	}
	if parsed.User != nil {
		return nil, fetcherr.New(fetcherr.KindMalformedURL, "URLs with credentials are not allowed")
	}
	parsed.Fragment = ""
	return parsed, nil
}

// blockedLiteral reports a bracketed IP literal in a blocked range for input
// url.Parse rejected. Newer parsers refuse some forms, such as IPv4-mapped
// IPv6, that still name a blocked address.
func (v *Validator) blockedLiteral(s string) *fetcherr.Error {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return nil
	}
	scheme = strings.ToLower(scheme)
	if scheme != "http" && scheme != "https" {
		return nil
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}
	if !strings.HasPrefix(rest, "[") {
		return nil
	}
	end := strings.Index(rest, "]")
	if end < 0 {
		return nil
	}
	addr, err := netip.ParseAddr(rest[1:end])
	if err != nil {
		return nil
	}
	if rule := v.blockedRule(addr); rule != "" {
		return fetcherr.New(fetcherr.KindBlockedHost, "address %s is in blocked range (%s)", addr, rule)
	}
	return nil
}

func portOf(u *url.URL) (int, error) {
	p := u.Port()
	if p == "" {
		if u.Scheme == "https" {
			return 443, nil
		}
		return 80, nil
	}
	port, err := strconv.Atoi(p)
	if err != nil || port < 1 || port > 65535 {
		return 0, fetcherr.New(fetcherr.KindMalformedURL, "invalid port %q", p)
	}
	return port, nil
}

func (v *Validator) timeout(requested *float64) (time.Duration, error) {
	if requested == nil {
		return v.defaultTimeout, nil
	}
	t := *requested
	if math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 {
		return 0, fetcherr.New(fetcherr.KindInvalidTimeout, "timeout must be greater than 0 seconds, got %v", t)
	}
	d := time.Duration(t * float64(time.Second))
	if d > v.maxTimeout {
		return 0, fetcherr.New(fetcherr.KindInvalidTimeout,
			"timeout %vs exceeds maximum of %vs", t, v.maxTimeout.Seconds())
	}
	return d, nil
}

// CheckHost rejects blocked host names and resolves host, returning its
// addresses only if every one of them is publicly routable.
func (v *Validator) CheckHost(ctx context.Context, host string) ([]netip.Addr, error) {
	if reason := v.blocklist.Match(host); reason != "" {
		return nil, fetcherr.New(fetcherr.KindBlockedHost, "access to %s is not allowed (%s)", host, reason)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if rule := v.blockedRule(addr); rule != "" {
			return nil, fetcherr.New(fetcherr.KindBlockedHost,
				"address %s is in blocked range (%s)", addr, rule)
		}
		return []netip.Addr{addr.WithZone("").Unmap()}, nil
	}

	addrs, err := v.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fetcherr.Wrap(fetcherr.KindTimeout, err, "resolve "+host)
		}
		return nil, fetcherr.Wrap(fetcherr.KindNetwork, err, "resolve "+host)
	}
	if len(addrs) == 0 {
		return nil, fetcherr.New(fetcherr.KindNetwork, "resolve %s: no addresses", host)
	}

	checked := make([]netip.Addr, 0, len(addrs))
	for _, addr := range addrs {
		if rule := v.blockedRule(addr); rule != "" {
			return nil, fetcherr.New(fetcherr.KindBlockedHost,
				"%s resolves to %s in blocked range (%s)", host, addr, rule)
		}
		checked = append(checked, addr.WithZone("").Unmap())
	}
	return checked, nil
}

func (v *Validator) blockedRule(addr netip.Addr) string {
	rule := BlockedAddrRule(addr)
	if rule == "" {
		return ""
	}
	plain := addr.WithZone("").Unmap()
	for _, p := range v.allowed {
		if p.Contains(plain) {
			return ""
		}
	}
	return rule
}
