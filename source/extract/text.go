package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// blockElements start and end on their own line in extracted text.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"tr": true, "ul": true,
}

// invisibleElements never contribute text.
var invisibleElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"head": true, "iframe": true, "object": true, "embed": true,
	"svg": true, "canvas": true,
}

// NormalizeText trims every line, collapses runs of inner whitespace to a
// single space and keeps at most one blank line between paragraphs.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// nodeText returns the visible text under n with block elements separated by
// line breaks. Whitespace inside text runs collapses the way a browser renders
// it, except under <pre>.
func nodeText(n *html.Node) string {
	var buf []byte
	newline := func() {
		for len(buf) > 0 && buf[len(buf)-1] == ' ' {
			buf = buf[:len(buf)-1]
		}
		if len(buf) > 0 && buf[len(buf)-1] != '\n' {
			buf = append(buf, '\n')
		}
	}
	space := func() {
		if len(buf) > 0 && buf[len(buf)-1] != ' ' && buf[len(buf)-1] != '\n' {
			buf = append(buf, ' ')
		}
	}

	pre := 0
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			if pre > 0 {
				buf = append(buf, node.Data...)
				return
			}
			fields := strings.Fields(node.Data)
			if len(fields) == 0 {
				space()
				return
			}
			if startsWithSpace(node.Data) {
				space()
			}
			buf = append(buf, strings.Join(fields, " ")...)
			if endsWithSpace(node.Data) {
				space()
			}
			return
		case html.CommentNode, html.DoctypeNode:
			return
		case html.ElementNode:
			if invisibleElements[node.Data] {
				return
			}
		}

		isElem := node.Type == html.ElementNode
		block := isElem && blockElements[node.Data]
		if block {
			newline()
		}
		if isElem && node.Data == "pre" {
			pre++
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if isElem && node.Data == "pre" {
			pre--
		}
		switch {
		case block:
			newline()
		case isElem && (node.Data == "td" || node.Data == "th"):
			space()
		}
	}
	walk(n)
	return NormalizeText(string(buf))
}

func startsWithSpace(s string) bool {
	return s != "" && strings.ContainsRune(" \t\n\r\f", rune(s[0]))
}

func endsWithSpace(s string) bool {
	return s != "" && strings.ContainsRune(" \t\n\r\f", rune(s[len(s)-1]))
}
