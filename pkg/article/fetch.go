package article

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// Extraction modes for Fetcher.
const (
	ModeRegion      = "region"
	ModeReadability = "readability"
)

const maxPageBytes = 5 << 20

var ErrFetch = errors.New("failed to fetch article from url")

// Fetcher downloads a page and returns its readable text.
type Fetcher struct {
	client *http.Client
	mode   string
}

// NewFetcher builds a Fetcher. An unknown or empty mode selects ModeRegion.
func NewFetcher(timeout time.Duration, mode string) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if mode != ModeReadability {
		mode = ModeRegion
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		mode: mode,
	}
}

// Fetch returns the article text found at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") || pageURL.Host == "" {
		return "", fmt.Errorf("%w: invalid url %q", ErrFetch, rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", "LangGrade/1.0 (article grader)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: %s", ErrFetch, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}

	if f.mode == ModeReadability {
		art, err := readability.FromReader(strings.NewReader(string(body)), pageURL)
		if err == nil {
			if text := strings.TrimSpace(art.TextContent); text != "" {
				return text, nil
			}
		}
	}
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return RegionText(doc), nil
}

var strippedTags = map[string]bool{
	"script": true,
	"style":  true,
	"nav":    true,
	"header": true,
	"footer": true,
}

// RegionText drops script, style, nav, header and footer elements and
// returns the text of every article element, falling back to main elements
// and then the whole body.
func RegionText(doc *html.Node) string {
	for _, tag := range []string{"article", "main", "body"} {
		var buf strings.Builder
		for _, n := range elements(doc, tag) {
			writeText(&buf, n)
		}
		if text := strings.TrimSpace(buf.String()); text != "" {
			return text
		}
	}
	return ""
}

func elements(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if strippedTags[n.Data] {
				return
			}
			if n.Data == tag {
				out = append(out, n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func writeText(buf *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		buf.WriteString(n.Data)
		return
	}
	if n.Type == html.ElementNode && strippedTags[n.Data] {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(buf, c)
	}
}
