package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	webUserAgent    = "ragd/1.0 (+https://github.com/zero1hq/rag-assistant)"
	maxWebPageBytes = 8 << 20
)

// WebFetcher downloads web pages and extracts their paragraph text.
//
// Only <p> elements count as content. Navigation chrome, scripts, and
// styles are dropped, which keeps indexed pages close to their readable
// text.
type WebFetcher struct {
	client *http.Client
	now    func() time.Time
}

// NewWebFetcher creates a WebFetcher. A nil client gets a default with
// a 15 second timeout.
func NewWebFetcher(client *http.Client) *WebFetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &WebFetcher{client: client, now: time.Now}
}

// Fetch downloads the page at url and returns it as a Document.
//
// The Document ID and Source are both the URL. Name is the page title
// when one exists, otherwise the URL.
func (w *WebFetcher) Fetch(ctx context.Context, url string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Document{}, fmt.Errorf("failed to build request for %q: %w", url, err)
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("failed to fetch %q: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("fetch %q returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebPageBytes))
	if err != nil {
		return Document{}, fmt.Errorf("failed to read %q: %w", url, err)
	}

	title, text, err := extractReadableText(strings.NewReader(string(body)))
	if err != nil {
		return Document{}, fmt.Errorf("failed to parse %q: %w", url, err)
	}
	if title == "" {
		title = url
	}

	return Document{
		ID:        url,
		Name:      title,
		Source:    url,
		MIMEType:  "text/html",
		Content:   text,
		Retrieved: w.now(),
	}, nil
}

// extractReadableText parses HTML and returns the page title and the
// text of every <p> element, paragraphs separated by blank lines.
func extractReadableText(r io.Reader) (title, text string, err error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var paragraphs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if title == "" {
					title = strings.TrimSpace(nodeText(n))
				}
				return
			case "p":
				if p := strings.TrimSpace(nodeText(n)); p != "" {
					paragraphs = append(paragraphs, p)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return title, strings.Join(paragraphs, "\n\n"), nil
}

// nodeText concatenates the text nodes under n, collapsing whitespace.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
