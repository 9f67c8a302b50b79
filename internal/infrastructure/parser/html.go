package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	spaceExpr = regexp.MustCompile(`[ \t]+`)
	blankExpr = regexp.MustCompile(`\n{3,}`)
	urlExpr   = regexp.MustCompile(`https?://[^\s<>"']+`)
)

const blockSelector = "p, div, br, li, h1, h2, h3, h4, blockquote"

// FlattenHTML turns an HTML post body into plain text and returns every absolute link it carries.
func FlattenHTML(raw string) (string, []string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", nil, fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	var links []string
	seen := map[string]struct{}{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if !isAbsolute(href) {
			return
		}
		if _, ok := seen[href]; ok {
			return
		}
		seen[href] = struct{}{}
		links = append(links, href)
	})

	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	text := doc.Text()
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceExpr.ReplaceAllString(line, " "))
	}
	text = blankExpr.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")

	return strings.TrimSpace(text), links, nil
}

// LinksInText finds bare http(s) links in plain text.
func LinksInText(text string) []string {
	found := urlExpr.FindAllString(text, -1)
	for i := range found {
		found[i] = strings.TrimRight(found[i], ".,;:!?)")
	}
	return found
}

// LooksLikeHTML is a cheap check used to decide whether a text field needs flattening.
func LooksLikeHTML(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "<") && strings.Contains(s, ">")
}

func isAbsolute(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
