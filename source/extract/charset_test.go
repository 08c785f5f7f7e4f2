package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// longHead pushes later declarations past the first kilobyte.
var longHead = "<html><head><title>t</title><!-- " + strings.Repeat("padding ", 160) + "-->"

func TestDecode(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
		want        string
	}{
		{
			name:        "utf-8 declared",
			contentType: "text/plain; charset=utf-8",
			body:        []byte("naïve café"),
			want:        "naïve café",
		},
		{
			name:        "windows-1252 declared",
			contentType: "text/plain; charset=windows-1252",
			body:        []byte("caf\xe9"),
			want:        "café",
		},
		{
			name:        "meta charset",
			contentType: "text/html",
			body:        []byte(`<html><head><meta charset="iso-8859-1"></head><body>caf` + "\xe9" + `</body></html>`),
			want:        `<html><head><meta charset="iso-8859-1"></head><body>café</body></html>`,
		},
		{
			name:        "byte order mark stripped",
			contentType: "text/plain",
			body:        []byte("\xef\xbb\xbfhello"),
			want:        "hello",
		},
		{
			name:        "undeclared utf-8 after an ascii prefix",
			contentType: "text/plain",
			body:        []byte(strings.Repeat("a", 1100) + " café naïve"),
			want:        strings.Repeat("a", 1100) + " café naïve",
		},
		{
			name:        "meta charset beyond the first kilobyte",
			contentType: "text/html",
			body:        []byte(longHead + `<meta charset="koi8-r"></head><body>` + "\xc1\xc2" + `</body></html>`),
			want:        longHead + `<meta charset="koi8-r"></head><body>аб</body></html>`,
		},
		{
			name:        "http-equiv content type",
			contentType: "text/html",
			body:        []byte(`<head><meta http-equiv="Content-Type" content="text/html; charset=koi8-r"></head>` + "\xc1"),
			want:        `<head><meta http-equiv="Content-Type" content="text/html; charset=koi8-r"></head>а`,
		},
		{
			name:        "undeclared utf-8",
			contentType: "text/plain",
			body:        []byte("héllo"),
			want:        "héllo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Decode(tt.contentType, tt.body)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeInvalidUTF8NeverFails(t *testing.T) {
	got, dec := Decode("text/plain; charset=utf-8", []byte("ok \xff\xfe bytes"))
	assert.Contains(t, got, "ok ")
	assert.Contains(t, got, "bytes")
	assert.Contains(t, got, "�")
	assert.NotEmpty(t, dec.Name)
}

func TestSniffCertainty(t *testing.T) {
	declared := Sniff("text/html; charset=utf-8", []byte("<p>x</p>"))
	assert.True(t, declared.Certain)
	assert.Equal(t, "utf-8", declared.Name)

	guessed := Sniff("text/html", []byte("<p>x</p>"))
	assert.False(t, guessed.Certain)
}

func TestSniffEncodingName(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"declared", "text/html; charset=koi8-r", "<p>x</p>", "koi8-r"},
		{"late meta", "text/html", longHead + `<meta charset="koi8-r">` + "\xc1", "koi8-r"},
		{"meta after body ignored", "text/html", "<html><head></head><body>" + strings.Repeat("text ", 250) + `<meta charset="koi8-r">` + "\xc1", "windows-1252"},
		{"meta ignored for plain text", "text/plain", longHead + `<meta charset="koi8-r">` + "\xc1", "windows-1252"},
		{"late utf-8", "text/plain", strings.Repeat("a", 2000) + "é", "utf-8"},
		{"ascii only", "text/plain", "hello", "utf-8"},
		{"latin-1 bytes", "text/plain", "caf\xe9", "windows-1252"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sniff(tt.contentType, []byte(tt.body)).Name)
		})
	}
}
