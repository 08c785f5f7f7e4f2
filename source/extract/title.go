package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
	"golang.org/x/net/html"
)

// extractTitle returns the document title: the <title> element, else the
// first heading, else the og:title property.
func extractTitle(doc *html.Node, rawHTML string) string {
	if title := extractHTMLTitle(doc); title != "" {
		return title
	}
	if title := firstHeading(doc); title != "" {
		return title
	}
	return openGraphTitle(rawHTML)
}

// extractHTMLTitle extracts the text of the first <title> element.
func extractHTMLTitle(doc *html.Node) string {
	var title string
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "svg" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			title = collapseSpaces(textContent(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(doc)
	return title
}

// firstHeading returns the text of the first h1-h6 element in document order.
func firstHeading(doc *html.Node) string {
	sel := goquery.NewDocumentFromNode(doc).Find("h1, h2, h3, h4, h5, h6")
	for i := range sel.Nodes {
		if text := collapseSpaces(sel.Eq(i).Text()); text != "" {
			return text
		}
	}
	return ""
}

func openGraphTitle(rawHTML string) string {
	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(strings.NewReader(rawHTML)); err != nil {
		return ""
	}
	return collapseSpaces(og.Title)
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
