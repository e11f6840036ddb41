// Package fetch retrieves reference URLs and extracts plain text from them.
// Individual URLs may fail without failing the caller: FetchAll records
// per-URL failures as tagged lines in the assembled corpus.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 5 << 20 // 5MB
	maxConcurrency = 4
)

// Fetcher downloads URLs and extracts their text content.
type Fetcher struct {
	httpClient *http.Client
}

// New creates a Fetcher. Pass nil to use a default client with a 10s timeout.
func New(httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Fetcher{httpClient: httpClient}
}

// Fetch downloads a single URL and returns its extracted plain text. HTML is
// stripped to visible text, PDFs are extracted page by page, everything else
// is returned as-is up to the size cap.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return extractHTML(body)
	case "application/pdf":
		return extractPDF(body)
	default:
		return string(body), nil
	}
}

// FetchAll downloads all URLs concurrently and assembles a corpus, one block
// per URL in input order. A failed URL contributes a tagged failure line
// instead of aborting the whole corpus.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) string {
	if len(urls) == 0 {
		return ""
	}

	blocks := make([]string, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)
	for i, url := range urls {
		g.Go(func() error {
			text, err := f.Fetch(gctx, url)
			if err != nil {
				blocks[i] = fmt.Sprintf("[fetch failed] %s: %v", url, err)
				return nil
			}
			blocks[i] = fmt.Sprintf("[source] %s\n%s", url, strings.TrimSpace(text))
			return nil
		})
	}
	g.Wait()

	return strings.Join(blocks, "\n\n")
}

// extractHTML walks the parsed document collecting visible text nodes.
func extractHTML(body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text)
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.TrimSpace(b.String()), nil
}

// extractPDF pulls plain text out of a PDF document.
func extractPDF(body []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("parsing pdf: %w", err)
	}

	text, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}

	var b strings.Builder
	if _, err := io.Copy(&b, text); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}
