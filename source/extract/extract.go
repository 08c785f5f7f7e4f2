// Package extract converts fetched HTML, plain text and XML bodies into clean
// readable text plus a title.
package extract

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/c360studio/semfetch/fetcherr"
)

// Output formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// DefaultMinTextLength is the rune count below which a strategy's output is
// considered near-empty and the next strategy is tried.
const DefaultMinTextLength = 50

// Document is the readable content extracted from a response body.
type Document struct {
	Title      string
	Text       string
	TextLength int
	// Strategy names the extraction strategy that produced Text.
	Strategy string
	// Encoding is the character encoding used to decode the body.
	Encoding string
}

// Options configures an Extractor.
type Options struct {
	// Format is FormatText (default) or FormatMarkdown.
	Format string
	// MinTextLength overrides DefaultMinTextLength.
	MinTextLength int
	Logger        *slog.Logger
}

// Extractor turns response bodies into Documents. It is safe for concurrent
// use.
type Extractor struct {
	format        string
	minTextLength int
	logger        *slog.Logger
}

// New creates an extractor.
func New(opts Options) (*Extractor, error) {
	format := strings.ToLower(opts.Format)
	switch format {
	case "":
		format = FormatText
	case FormatText, FormatMarkdown:
	default:
		return nil, fmt.Errorf("unknown output format %q", opts.Format)
	}

	minLen := opts.MinTextLength
	if minLen <= 0 {
		minLen = DefaultMinTextLength
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{format: format, minTextLength: minLen, logger: logger}, nil
}

// Extract converts body, served with contentType, into a Document.
func (e *Extractor) Extract(contentType string, body []byte) (*Document, error) {
	return e.ExtractPage(contentType, body, nil)
}

// ExtractPage is Extract with the page URL, used to resolve relative links in
// markdown output. pageURL may be nil.
func (e *Extractor) ExtractPage(contentType string, body []byte, pageURL *url.URL) (*Document, error) {
	kind := ClassifyMediaType(contentType)
	if kind == MediaUnsupported {
		return nil, fetcherr.New(fetcherr.KindExtraction, "cannot extract text from content type %q", contentType)
	}

	text, dec := Decode(contentType, body)

	var (
		doc *Document
		err error
	)
	if kind == MediaHTML {
		doc, err = e.extractHTML(text, pageURL)
	} else {
		doc, err = extractPlain(text)
	}
	if err != nil {
		return nil, err
	}
	doc.Encoding = dec.Name
	return doc, nil
}

func extractPlain(text string) (*Document, error) {
	text = NormalizeText(text)
	if text == "" {
		return nil, fetcherr.New(fetcherr.KindExtraction, "no readable text content found")
	}
	return &Document{
		Text:       text,
		TextLength: utf8.RuneCountInString(text),
		Strategy:   "plain",
	}, nil
}

// page is the input shared by the HTML strategies.
type page struct {
	html string
	url  *url.URL
}

// candidate is one strategy's result: plain text plus the HTML it came from.
type candidate struct {
	text string
	html string
}

// strategy is one step of the HTML extraction chain.
type strategy struct {
	name string
	run  func(p page) (candidate, error)
}

// htmlStrategies run in order until one yields at least the minimum text
// length.
var htmlStrategies = []strategy{
	{name: "readability", run: readabilityStrategy},
	{name: "main-content", run: mainContentStrategy},
	{name: "visible-text", run: visibleTextStrategy},
}

func (e *Extractor) extractHTML(text string, pageURL *url.URL) (*Document, error) {
	root, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return nil, fetcherr.Wrap(fetcherr.KindExtraction, err, "parse HTML")
	}
	title := extractTitle(root, text)

	p := page{html: text, url: pageURL}
	var (
		best     candidate
		bestName string
		bestLen  int
	)
	for _, s := range htmlStrategies {
		c, err := s.run(p)
		if err != nil {
			e.logger.Debug("Extraction strategy failed", "strategy", s.name, "error", err)
			continue
		}
		n := utf8.RuneCountInString(c.text)
		if n > bestLen {
			best, bestName, bestLen = c, s.name, n
		}
		if n >= e.minTextLength {
			break
		}
		e.logger.Debug("Extraction strategy yielded too little text",
			"strategy", s.name, "length", n, "min", e.minTextLength)
	}

	if bestLen == 0 {
		return nil, fetcherr.New(fetcherr.KindExtraction, "no readable text content found")
	}

	out := best.text
	if e.format == FormatMarkdown && best.html != "" {
		if markdown, err := renderMarkdown(best.html, pageURL); err == nil && markdown != "" {
			out = markdown
		} else if err != nil {
			e.logger.Debug("Markdown rendering failed, using plain text", "error", err)
		}
	}

	return &Document{
		Title:      title,
		Text:       out,
		TextLength: utf8.RuneCountInString(out),
		Strategy:   bestName,
	}, nil
}

// readabilityStrategy runs the Mozilla Readability port tuned for
// article-like pages.
func readabilityStrategy(p page) (c candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("readability panic: %v", r)
		}
	}()

	article, err := readability.FromReader(strings.NewReader(p.html), p.url)
	if err != nil {
		return candidate{}, err
	}
	return candidate{text: NormalizeText(article.TextContent), html: article.Content}, nil
}

// mainContentStrategy keeps the semantic main region after removing page
// chrome.
func mainContentStrategy(p page) (candidate, error) {
	doc, err := html.Parse(strings.NewReader(p.html))
	if err != nil {
		return candidate{}, err
	}
	node := mainContent(doc)
	return candidate{text: nodeText(node), html: renderNode(node)}, nil
}

// visibleTextStrategy keeps every visible piece of text in the body.
func visibleTextStrategy(p page) (candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.html))
	if err != nil {
		return candidate{}, err
	}
	doc.Find("script, style, noscript, template, iframe, object, embed, svg").Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	var sb strings.Builder
	for _, n := range body.Nodes {
		sb.WriteString(nodeText(n))
		sb.WriteByte('\n')
	}
	fragment, _ := body.Html()
	return candidate{text: NormalizeText(sb.String()), html: fragment}, nil
}
