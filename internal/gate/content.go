package gate

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"AnnounceRelay/internal/domain"
	"AnnounceRelay/internal/infrastructure/parser"
)

// Payload is the union of inbound shapes accepted from the upstream automation service.
type Payload struct {
	Text    string    `json:"text"`
	Message string    `json:"message"`
	HTML    string    `json:"html"`
	URL     string    `json:"url"`
	Link    string    `json:"link"`
	Post    *PostBody `json:"post"`
}

// PostBody is the nested {post: {...}} shape.
type PostBody struct {
	Text string `json:"text"`
	URL  string `json:"url"`
	HTML string `json:"html"`
}

// ContentGate validates inbound payload structure. It holds no state.
type ContentGate struct {
	minLength   int
	requireLink bool
	linkPattern *regexp.Regexp
}

// NewContentGate builds a gate; a nil pattern accepts any absolute link as qualifying.
func NewContentGate(minLength int, requireLink bool, linkPattern *regexp.Regexp) *ContentGate {
	if minLength <= 0 {
		minLength = 20
	}
	return &ContentGate{minLength: minLength, requireLink: requireLink, linkPattern: linkPattern}
}

// Check extracts the candidate from p or reports why it cannot be admitted.
func (g *ContentGate) Check(p Payload, receivedAt time.Time) (domain.InboundCandidate, error) {
	text, links, err := g.extractText(p)
	if err != nil {
		return domain.InboundCandidate{}, err
	}

	if text == "" || utf8.RuneCountInString(text) < g.minLength {
		return domain.InboundCandidate{}, fmt.Errorf("%w: no post text found or too short (min %d chars)", domain.ErrInvalidPayload, g.minLength)
	}

	url := firstNonEmpty(p.URL, postField(p, func(b *PostBody) string { return b.URL }), p.Link)
	if url == "" {
		url = g.pickLink(append(links, parser.LinksInText(text)...))
	}

	if g.requireLink && !g.qualifies(url) {
		qualifying := g.pickLink(append(links, parser.LinksInText(text)...))
		if qualifying == "" {
			return domain.InboundCandidate{}, fmt.Errorf("%w: expected a link matching %s", domain.ErrMissingQualifyingLink, g.patternString())
		}
		url = qualifying
	}

	return domain.InboundCandidate{
		SourceText: text,
		SourceURL:  url,
		Origin:     domain.OriginWebhook,
		ReceivedAt: receivedAt,
	}, nil
}

func (g *ContentGate) extractText(p Payload) (string, []string, error) {
	text := firstNonEmpty(p.Text, postField(p, func(b *PostBody) string { return b.Text }), p.Message)

	html := firstNonEmpty(p.HTML, postField(p, func(b *PostBody) string { return b.HTML }))
	if text != "" && parser.LooksLikeHTML(text) {
		html, text = text, ""
	}
	if text != "" || html == "" {
		return text, nil, nil
	}

	flat, links, err := parser.FlattenHTML(html)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return flat, links, nil
}

// pickLink returns the first qualifying link, or the first link at all when no pattern is set.
func (g *ContentGate) pickLink(links []string) string {
	for _, l := range links {
		if g.qualifies(l) {
			return l
		}
	}
	return ""
}

func (g *ContentGate) qualifies(link string) bool {
	if link == "" {
		return false
	}
	if g.linkPattern == nil {
		return true
	}
	return g.linkPattern.MatchString(link)
}

func (g *ContentGate) patternString() string {
	if g.linkPattern == nil {
		return "any url"
	}
	return g.linkPattern.String()
}

func postField(p Payload, get func(*PostBody) string) string {
	if p.Post == nil {
		return ""
	}
	return get(p.Post)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
