package weburl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostBlocklist_Match(t *testing.T) {
	b, err := NewHostBlocklist([]string{"metadata.*", "*.corp.example.com", ""})
	require.NoError(t, err)

	tests := []struct {
		host    string
		blocked bool
	}{
		{"localhost", true},
		{"LOCALHOST", true},
		{"localhost.", true},
		{"app.localhost", true},
		{"printer.local", true},
		{"api.internal", true},
		{"nas.home.arpa", true},
		{"box.localdomain", true},
		{"metadata.google.internal", true},
		{"metadata.azure", true},
		{"wiki.corp.example.com", true},
		{"a.b.corp.example.com", true},
		{"example.com", false},
		{"localhost.example.com", false},
		{"notlocal", false},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got := b.Match(tt.host)
			assert.Equal(t, tt.blocked, got != "", "Match(%q) = %q", tt.host, got)
		})
	}
}

func TestNewHostBlocklist_InvalidPattern(t *testing.T) {
	_, err := NewHostBlocklist([]string{"[unclosed"})
	assert.Error(t, err)
}

func TestHostBlocklist_NilUsesBuiltins(t *testing.T) {
	var b *HostBlocklist
	assert.Equal(t, "localhost", b.Match("localhost"))
	assert.Empty(t, b.Match("example.org"))
}
