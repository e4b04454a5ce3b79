// Package search provides web search for index-on-demand ingestion.
//
// The only implementation talks to SerpAPI's Google Search endpoint.
// Searching is used to discover pages worth indexing; fetching and
// parsing the pages themselves is the ingest package's job.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultEndpoint = "https://serpapi.com/search"

// Result is a single organic search result.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Searcher finds web pages relevant to a query.
type Searcher interface {
	// Search returns up to topK organic results for the query.
	Search(ctx context.Context, query string, topK int) ([]Result, error)
}

// SerpAPIClient implements Searcher against serpapi.com.
type SerpAPIClient struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// SerpAPIOption configures a SerpAPIClient.
type SerpAPIOption func(*SerpAPIClient)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) SerpAPIOption {
	return func(c *SerpAPIClient) {
		c.client = client
	}
}

// WithEndpoint overrides the SerpAPI endpoint URL.
func WithEndpoint(endpoint string) SerpAPIOption {
	return func(c *SerpAPIClient) {
		c.endpoint = endpoint
	}
}

// NewSerpAPIClient creates a SerpAPI search client.
func NewSerpAPIClient(apiKey string, opts ...SerpAPIOption) (*SerpAPIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("SerpAPI key is required")
	}
	c := &SerpAPIClient{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// serpResponse is the subset of SerpAPI's response the client reads.
type serpResponse struct {
	OrganicResults []Result `json:"organic_results"`
	Error          string   `json:"error"`
}

// Search implements Searcher.
func (c *SerpAPIClient) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if topK <= 0 {
		return []Result{}, nil
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", c.apiKey)
	params.Set("num", fmt.Sprintf("%d", topK))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed serpResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("search API error: %s", parsed.Error)
	}

	results := parsed.OrganicResults
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
