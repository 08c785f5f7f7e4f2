package extract

import (
	"mime"
	"strings"
)

// MediaKind groups the content types the extractor understands.
type MediaKind int

// Media kinds.
const (
	MediaUnsupported MediaKind = iota
	MediaHTML
	MediaText
	MediaXML
)

func (k MediaKind) String() string {
	switch k {
	case MediaHTML:
		return "html"
	case MediaText:
		return "text"
	case MediaXML:
		return "xml"
	default:
		return "unsupported"
	}
}

// ClassifyMediaType maps a Content-Type header value to a MediaKind.
// Parameters such as charset are ignored.
func ClassifyMediaType(contentType string) MediaKind {
	mt := mediaType(contentType)
	switch {
	case mt == "text/html" || mt == "application/xhtml+xml":
		return MediaHTML
	case mt == "text/plain":
		return MediaText
	case mt == "text/xml" || mt == "application/xml" || strings.HasSuffix(mt, "+xml"):
		return MediaXML
	default:
		return MediaUnsupported
	}
}

// Supported reports whether contentType can be extracted.
func Supported(contentType string) bool {
	return ClassifyMediaType(contentType) != MediaUnsupported
}

func mediaType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	// Tolerate malformed parameters; only the type matters here.
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
