package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Pricing Update</title>
  <style>p { color: red }</style>
</head>
<body>
  <nav><a href="/">Home</a></nav>
  <h1>Pricing Update</h1>
  <p>We are adjusting our plans <b>next quarter</b>.</p>
  <script>console.log("tracking")</script>
  <p>
    Existing customers keep their
    current rate.
  </p>
  <p>   </p>
  <footer>Copyright</footer>
</body>
</html>`

func TestWebFetcherFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.HasPrefix(ua, "ragd/") {
			t.Errorf("unexpected User-Agent: %q", ua)
		}
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	fetcher := NewWebFetcher(srv.Client())
	doc, err := fetcher.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if doc.ID != srv.URL || doc.Source != srv.URL {
		t.Errorf("expected URL as ID and Source, got ID=%q Source=%q", doc.ID, doc.Source)
	}
	if doc.Name != "Pricing Update" {
		t.Errorf("expected page title as Name, got %q", doc.Name)
	}

	want := "We are adjusting our plans next quarter.\n\nExisting customers keep their current rate."
	if doc.Content != want {
		t.Errorf("content mismatch:\n got: %q\nwant: %q", doc.Content, want)
	}
}

func TestWebFetcherNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	fetcher := NewWebFetcher(srv.Client())
	if _, err := fetcher.Fetch(context.Background(), srv.URL); err == nil {
		t.Error("expected error for 404 response")
	}
}

func TestWebFetcherTitleFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>no title here</p></body></html>"))
	}))
	defer srv.Close()

	fetcher := NewWebFetcher(srv.Client())
	doc, err := fetcher.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if doc.Name != srv.URL {
		t.Errorf("expected URL fallback for Name, got %q", doc.Name)
	}
}

func TestWebFetcherPageWithoutParagraphs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><head><title>Empty</title></head><body><div>divs only</div></body></html>"))
	}))
	defer srv.Close()

	fetcher := NewWebFetcher(srv.Client())
	doc, err := fetcher.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !doc.Empty() {
		t.Errorf("expected empty document, got content %q", doc.Content)
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"trims lines", "  a  \n  b  ", "a\nb"},
		{"collapses blank runs", "a\n\n\n\nb", "a\n\nb"},
		{"drops leading blanks", "\n\n\na", "a"},
		{"windows newlines", "a\r\n\r\nb", "a\n\nb"},
		{"empty", "   \n  \n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanText(tt.in); got != tt.want {
				t.Errorf("cleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
