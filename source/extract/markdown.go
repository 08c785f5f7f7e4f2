package extract

import (
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
)

var excessiveLinesRe = regexp.MustCompile(`\n{3,}`)

// renderMarkdown converts an HTML fragment to GitHub flavored markdown.
// Relative links and image sources resolve against base when it is set.
func renderMarkdown(fragment string, base *url.URL) (string, error) {
	converter := md.NewConverter("", true, &md.Options{
		GetAbsoluteURL: func(_ *goquery.Selection, rawURL, _ string) string {
			return absoluteURL(base, rawURL)
		},
	})
	converter.Use(plugin.GitHubFlavored())
	converter.Remove("script", "style", "noscript", "template")

	markdown, err := converter.ConvertString(fragment)
	if err != nil {
		return "", err
	}
	return cleanMarkdown(markdown), nil
}

func absoluteURL(base *url.URL, rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if base == nil || rawURL == "" {
		return rawURL
	}
	ref, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return base.ResolveReference(ref).String()
}

// cleanMarkdown trims trailing spaces from each line and caps blank runs at
// one empty line.
func cleanMarkdown(content string) string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	content = strings.Join(lines, "\n")
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
