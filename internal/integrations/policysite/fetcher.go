package policysite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"holiday-policy-bot/internal/domain"
)

const (
	DefaultURL     = "https://resources.workable.com/company-holiday-policy"
	defaultTimeout = 10 * time.Second
	userAgent      = "Mozilla/5.0"
	maxBodyBytes   = 2 << 20
)

// HTTPStatusError reports a non-2xx response from the policy page.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("policysite: unexpected status %d from %s", e.StatusCode, e.URL)
}

// Fetcher downloads the policy page and reduces it to plain text.
type Fetcher struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Fetcher)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = httpClient
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher creates a Fetcher for the given page URL. An empty URL selects
// DefaultURL.
func NewFetcher(url string, opts ...Option) *Fetcher {
	url = strings.TrimSpace(url)
	if url == "" {
		url = DefaultURL
	}
	f := &Fetcher{
		url:        url,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Fetch returns the sanitized policy text, or domain.PolicyUnavailable when
// the page could not be retrieved or parsed. It makes a single attempt.
func (f *Fetcher) Fetch(ctx context.Context) string {
	text, err := f.fetch(ctx)
	if err != nil {
		f.logger.Warn("policy fetch failed", "url", f.url, "err", err)
		return domain.PolicyUnavailable
	}
	return text
}

func (f *Fetcher) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", fmt.Errorf("policysite: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	client := f.httpClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("policysite: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", &HTTPStatusError{StatusCode: res.StatusCode, URL: f.url}
	}
	return Extract(io.LimitReader(res.Body, maxBodyBytes))
}

// Extract parses an HTML document and returns its visible body text with
// page chrome removed, whitespace collapsed and length capped at
// domain.MaxPolicyRunes.
func Extract(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("policysite: parse html: %w", err)
	}
	root := findBody(doc)
	if root == nil {
		root = doc
	}

	var sb strings.Builder
	collectText(root, &sb)

	text := strings.Join(strings.Fields(sb.String()), " ")
	if text == "" {
		return "", errors.New("policysite: page has no visible text")
	}
	return strings.TrimSpace(truncateRunes(text, domain.MaxPolicyRunes)), nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if body := findBody(c); body != nil {
			return body
		}
	}
	return nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if isChrome(n) {
			return
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}

	block := n.Type == html.ElementNode && isBlock(n)
	if block {
		sb.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if block {
		sb.WriteByte(' ')
	}
}

// isChrome reports elements that carry navigation or page furniture rather
// than policy content.
func isChrome(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Nav, atom.Footer, atom.Header:
		return true
	}
	return false
}

func isBlock(n *html.Node) bool {
	switch n.DataAtom {
	case atom.P, atom.Div, atom.Br, atom.Li, atom.Ul, atom.Ol, atom.Tr, atom.Td, atom.Th,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Section, atom.Article, atom.Main, atom.Aside, atom.Table,
		atom.Blockquote, atom.Pre, atom.Dd, atom.Dt:
		return true
	}
	return false
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}
