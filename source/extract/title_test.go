package extract

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "simple title",
			html:     "<html><head><title>My Page</title></head><body></body></html>",
			expected: "My Page",
		},
		{
			name:     "title with whitespace",
			html:     "<html><head><title>  Spaced \n Title  </title></head></html>",
			expected: "Spaced Title",
		},
		{
			name:     "svg title ignored",
			html:     "<html><body><svg><title>icon</title></svg><h2>Real Heading</h2></body></html>",
			expected: "Real Heading",
		},
		{
			name:     "first heading fallback",
			html:     "<html><body><h3>Third</h3><h1>First</h1></body></html>",
			expected: "Third",
		},
		{
			name:     "empty heading skipped",
			html:     "<html><body><h1> </h1><h2>Next</h2></body></html>",
			expected: "Next",
		},
		{
			name:     "open graph fallback",
			html:     `<html><head><meta property="og:title" content="OG Title"></head><body><p>x</p></body></html>`,
			expected: "OG Title",
		},
		{
			name:     "no title",
			html:     "<html><head></head><body>Content</body></html>",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := html.Parse(strings.NewReader(tt.html))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got := extractTitle(doc, tt.html)
			if got != tt.expected {
				t.Errorf("extractTitle() = %q, want %q", got, tt.expected)
			}
		})
	}
}
