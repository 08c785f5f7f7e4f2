package weburl

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// localSuffixes are name suffixes that never resolve to public hosts.
var localSuffixes = []string{
	".localhost",
	".local",
	".internal",
	".localdomain",
	".home.arpa",
}

// HostBlocklist rejects host names before any DNS resolution.
type HostBlocklist struct {
	patterns []string
}

// NewHostBlocklist builds a blocklist from extra glob patterns such as
// "metadata.*" or "*.corp.example.com". Patterns are matched
// case-insensitively against the whole host name.
func NewHostBlocklist(patterns []string) (*HostBlocklist, error) {
	b := &HostBlocklist{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid blocked host pattern %q", p)
		}
		b.patterns = append(b.patterns, p)
	}
	return b, nil
}

// Match returns a description of why host is blocked, or "" if it is not.
func (b *HostBlocklist) Match(host string) string {
	h := strings.TrimSuffix(strings.ToLower(host), ".")
	if h == "localhost" {
		return "localhost"
	}
	for _, suffix := range localSuffixes {
		if strings.HasSuffix(h, suffix) {
			return "local domain " + suffix
		}
	}
	if b == nil {
		return ""
	}
	for _, p := range b.patterns {
		if ok, _ := doublestar.Match(p, h); ok {
			return "pattern " + p
		}
	}
	return ""
}
