// Package config provides configuration loading and management for semfetch.
package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Config represents the complete semfetch configuration
type Config struct {
	Fetch     FetchConfig     `yaml:"fetch"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Security  SecurityConfig  `yaml:"security"`
	Extract   ExtractConfig   `yaml:"extract"`
	Server    ServerConfig    `yaml:"server"`
}

// FetchConfig configures the HTTP fetcher
type FetchConfig struct {
	// DefaultTimeout applies when a caller gives no timeout (default: 10s)
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	// MaxTimeout is the largest timeout a caller may request (default: 60s)
	MaxTimeout time.Duration `yaml:"max_timeout"`
	// UserAgent is sent with every request
	UserAgent string `yaml:"user_agent"`
	// MaxContentLength is the response body limit in bytes (default: 10 MiB)
	MaxContentLength int64 `yaml:"max_content_length"`
	// MaxRedirects is the number of redirects followed; 0 returns the
	// redirect response instead (default: 5)
	MaxRedirects *int `yaml:"max_redirects,omitempty"`
}

// Redirects returns the redirect limit. Zero means redirects are not
// followed.
func (f FetchConfig) Redirects() int {
	if f.MaxRedirects == nil {
		return defaultMaxRedirects
	}
	return *f.MaxRedirects
}

// RateLimitConfig configures request throttling
type RateLimitConfig struct {
	// Requests is the number of fetches allowed per window, process-wide (default: 60)
	Requests int `yaml:"requests"`
	// Window is the fixed window length (default: 1m)
	Window time.Duration `yaml:"window"`
	// PerHostRequests enables per-host limiting when positive (default: 0, disabled)
	PerHostRequests int `yaml:"per_host_requests"`
	// PerHostWindow is the per-host window (default: 1m)
	PerHostWindow time.Duration `yaml:"per_host_window"`
}

// SecurityConfig configures URL validation
type SecurityConfig struct {
	// MaxURLLength is the longest accepted URL (default: 2048)
	MaxURLLength int `yaml:"max_url_length"`
	// BlockedHosts are extra host name globs to reject, e.g. "metadata.*"
	BlockedHosts []string `yaml:"blocked_hosts,omitempty"`
	// AllowedCIDRs exempt address ranges from the private address rules.
	// Use with care: this reopens the ranges to every caller.
	AllowedCIDRs []string `yaml:"allowed_cidrs,omitempty"`
	// DefaultScheme is prefixed to URLs given without one (empty = reject them)
	DefaultScheme string `yaml:"default_scheme"`
}

// ExtractConfig configures text extraction
type ExtractConfig struct {
	// Format is "text" or "markdown" (default: text)
	Format string `yaml:"format"`
	// MinTextLength is the character count below which the next strategy is tried (default: 50)
	MinTextLength int `yaml:"min_text_length"`
}

// ServerConfig configures the long-running server
type ServerConfig struct {
	// MetricsAddr serves Prometheus metrics on /metrics when set, e.g. "127.0.0.1:9090"
	MetricsAddr string `yaml:"metrics_addr"`
}

// defaultMaxRedirects applies when no layer sets fetch.max_redirects.
const defaultMaxRedirects = 5

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Fetch: FetchConfig{
			DefaultTimeout:   10 * time.Second,
			MaxTimeout:       60 * time.Second,
			UserAgent:        "semfetch/1.0 (+https://github.com/c360studio/semfetch)",
			MaxContentLength: 10 * 1024 * 1024,
			MaxRedirects:     intPtr(defaultMaxRedirects),
		},
		RateLimit: RateLimitConfig{
			Requests:      60,
			Window:        time.Minute,
			PerHostWindow: time.Minute,
		},
		Security: SecurityConfig{
			MaxURLLength: 2048,
		},
		Extract: ExtractConfig{
			Format:        "text",
			MinTextLength: 50,
		},
	}
}

// Normalize clamps the default timeout into [1s, max_timeout], logging a
// warning when it changes.
func (c *Config) Normalize(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if c.Fetch.MaxTimeout <= 0 {
		return
	}
	if c.Fetch.DefaultTimeout < time.Second {
		logger.Warn("Default timeout below minimum, clamping",
			"configured", c.Fetch.DefaultTimeout, "clamped", time.Second)
		c.Fetch.DefaultTimeout = time.Second
	}
	if c.Fetch.DefaultTimeout > c.Fetch.MaxTimeout {
		logger.Warn("Default timeout above max_timeout, clamping",
			"configured", c.Fetch.DefaultTimeout, "clamped", c.Fetch.MaxTimeout)
		c.Fetch.DefaultTimeout = c.Fetch.MaxTimeout
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Fetch.MaxTimeout <= 0 {
		return fmt.Errorf("fetch.max_timeout must be positive")
	}
	if c.Fetch.DefaultTimeout <= 0 || c.Fetch.DefaultTimeout > c.Fetch.MaxTimeout {
		return fmt.Errorf("fetch.default_timeout must be between 0 and fetch.max_timeout")
	}
	if c.Fetch.UserAgent == "" {
		return fmt.Errorf("fetch.user_agent is required")
	}
	if c.Fetch.MaxContentLength <= 0 {
		return fmt.Errorf("fetch.max_content_length must be positive")
	}
	if c.Fetch.MaxRedirects != nil && *c.Fetch.MaxRedirects < 0 {
		return fmt.Errorf("fetch.max_redirects must not be negative")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("rate_limit.requests must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be positive")
	}
	if c.RateLimit.PerHostRequests < 0 {
		return fmt.Errorf("rate_limit.per_host_requests must not be negative")
	}
	if c.RateLimit.PerHostRequests > 0 && c.RateLimit.PerHostWindow <= 0 {
		return fmt.Errorf("rate_limit.per_host_window must be positive when per-host limiting is enabled")
	}
	if c.Security.MaxURLLength <= 0 {
		return fmt.Errorf("security.max_url_length must be positive")
	}
	for _, pattern := range c.Security.BlockedHosts {
		if !doublestar.ValidatePattern(strings.ToLower(pattern)) {
			return fmt.Errorf("security.blocked_hosts: invalid pattern %q", pattern)
		}
	}
	if _, err := c.Security.AllowedPrefixes(); err != nil {
		return err
	}
	switch strings.ToLower(c.Security.DefaultScheme) {
	case "", "http", "https":
	default:
		return fmt.Errorf("security.default_scheme must be http or https")
	}
	switch strings.ToLower(c.Extract.Format) {
	case "", "text", "markdown":
	default:
		return fmt.Errorf("extract.format must be text or markdown")
	}
	if c.Extract.MinTextLength < 0 {
		return fmt.Errorf("extract.min_text_length must not be negative")
	}
	return nil
}

// AllowedPrefixes parses AllowedCIDRs. Bare addresses are accepted as
// single-address prefixes.
func (s SecurityConfig) AllowedPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(s.AllowedCIDRs))
	for _, raw := range s.AllowedCIDRs {
		raw = strings.TrimSpace(raw)
		if p, err := netip.ParsePrefix(raw); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("security.allowed_cidrs: invalid entry %q", raw)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Fetch
	if other.Fetch.DefaultTimeout != 0 {
		c.Fetch.DefaultTimeout = other.Fetch.DefaultTimeout
	}
	if other.Fetch.MaxTimeout != 0 {
		c.Fetch.MaxTimeout = other.Fetch.MaxTimeout
	}
	if other.Fetch.UserAgent != "" {
		c.Fetch.UserAgent = other.Fetch.UserAgent
	}
	if other.Fetch.MaxContentLength != 0 {
		c.Fetch.MaxContentLength = other.Fetch.MaxContentLength
	}
	if other.Fetch.MaxRedirects != nil {
		c.Fetch.MaxRedirects = intPtr(*other.Fetch.MaxRedirects)
	}

	// Rate limit
	if other.RateLimit.Requests != 0 {
		c.RateLimit.Requests = other.RateLimit.Requests
	}
	if other.RateLimit.Window != 0 {
		c.RateLimit.Window = other.RateLimit.Window
	}
	if other.RateLimit.PerHostRequests != 0 {
		c.RateLimit.PerHostRequests = other.RateLimit.PerHostRequests
	}
	if other.RateLimit.PerHostWindow != 0 {
		c.RateLimit.PerHostWindow = other.RateLimit.PerHostWindow
	}

	// Security
	if other.Security.MaxURLLength != 0 {
		c.Security.MaxURLLength = other.Security.MaxURLLength
	}
	if len(other.Security.BlockedHosts) > 0 {
		c.Security.BlockedHosts = other.Security.BlockedHosts
	}
	if len(other.Security.AllowedCIDRs) > 0 {
		c.Security.AllowedCIDRs = other.Security.AllowedCIDRs
	}
	if other.Security.DefaultScheme != "" {
		c.Security.DefaultScheme = other.Security.DefaultScheme
	}

	// Extract
	if other.Extract.Format != "" {
		c.Extract.Format = other.Extract.Format
	}
	if other.Extract.MinTextLength != 0 {
		c.Extract.MinTextLength = other.Extract.MinTextLength
	}

	// Server
	if other.Server.MetricsAddr != "" {
		c.Server.MetricsAddr = other.Server.MetricsAddr
	}
}

func intPtr(v int) *int {
	return &v
}
