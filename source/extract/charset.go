package extract

import (
	"bytes"
	"mime"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// sniffLen is how much of the body the byte order mark and prescan checks
// look at.
const sniffLen = 1024

// metaScanLen bounds the search for a <meta> charset declaration in a long
// document head.
const metaScanLen = 64 * 1024

// Decoding is the character decoding chosen for a response body.
type Decoding struct {
	// Name is the canonical encoding name, e.g. "utf-8" or "windows-1252".
	Name string
	// Certain is true when the encoding came from a BOM or the declared
	// charset rather than a guess.
	Certain bool

	enc encoding.Encoding
}

// Sniff picks a decoding from the declared Content-Type header and the body.
// It inspects, in order, a byte order mark, the charset parameter, a <meta>
// declaration in an HTML head, and UTF-8 validity of the whole body,
// defaulting to windows-1252.
func Sniff(contentType string, body []byte) Decoding {
	prefix := body
	if len(prefix) > sniffLen {
		prefix = prefix[:sniffLen]
	}
	enc, name, certain := charset.DetermineEncoding(prefix, contentType)
	if certain {
		return Decoding{Name: name, Certain: true, enc: enc}
	}

	if ClassifyMediaType(contentType) == MediaHTML {
		if metaEnc, metaName := metaCharset(body); metaEnc != nil {
			return Decoding{Name: metaName, enc: metaEnc}
		}
	}
	if utf8.Valid(body) {
		return Decoding{Name: "utf-8", enc: unicode.UTF8}
	}
	if name == "utf-8" {
		// The prefix was valid but the rest is not; replace bad sequences.
		enc = unicode.UTF8
	}
	return Decoding{Name: name, enc: enc}
}

// metaCharset finds a <meta charset> or <meta http-equiv="Content-Type">
// declaration before <body>.
func metaCharset(body []byte) (encoding.Encoding, string) {
	if len(body) > metaScanLen {
		body = body[:metaScanLen]
	}
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return nil, ""
		case html.StartTagToken, html.SelfClosingTagToken:
			tag, hasAttr := z.TagName()
			switch string(tag) {
			case "body":
				return nil, ""
			case "meta":
				if !hasAttr {
					continue
				}
				label := metaLabel(z)
				if label == "" {
					continue
				}
				enc, name := charset.Lookup(label)
				if enc == nil {
					continue
				}
				if strings.HasPrefix(name, "utf-16") {
					return unicode.UTF8, "utf-8"
				}
				return enc, name
			}
		}
	}
}

func metaLabel(z *html.Tokenizer) string {
	var declared, content string
	var contentType bool
	for {
		key, val, more := z.TagAttr()
		switch string(key) {
		case "charset":
			declared = strings.TrimSpace(string(val))
		case "http-equiv":
			contentType = strings.EqualFold(strings.TrimSpace(string(val)), "content-type")
		case "content":
			content = string(val)
		}
		if !more {
			break
		}
	}
	if declared != "" {
		return declared
	}
	if contentType && content != "" {
		if _, params, err := mime.ParseMediaType(content); err == nil {
			return params["charset"]
		}
	}
	return ""
}

// Decode converts body to UTF-8 using d. Undecodable input never fails: the
// body is then treated as UTF-8 with invalid sequences replaced by U+FFFD.
// The second return reports whether the permissive fallback was used.
func (d Decoding) Decode(body []byte) (string, bool) {
	if d.enc != nil {
		if out, err := d.enc.NewDecoder().Bytes(body); err == nil {
			return strings.TrimPrefix(string(out), "\uFEFF"), false
		}
	}
	return permissiveUTF8(body), true
}

// Decode sniffs and decodes body in one step.
func Decode(contentType string, body []byte) (string, Decoding) {
	d := Sniff(contentType, body)
	text, fallback := d.Decode(body)
	if fallback {
		d = Decoding{Name: "utf-8", Certain: false}
	}
	return text, d
}

func permissiveUTF8(body []byte) string {
	s := string(body)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	return strings.TrimPrefix(s, "\uFEFF")
}
