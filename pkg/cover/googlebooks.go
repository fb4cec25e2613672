package cover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGoogleBooksURL = "https://www.googleapis.com/books/v1"

// GoogleBooks searches the Google Books volumes API.
type GoogleBooks struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewGoogleBooks(apiKey, baseURL string) *GoogleBooks {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultGoogleBooksURL
	}
	return &GoogleBooks{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// FindCover returns the first volume's thumbnail, served over https and
// without the zoom parameter.
func (g *GoogleBooks) FindCover(ctx context.Context, title, author string) (string, bool, error) {
	params := url.Values{}
	params.Set("q", strings.TrimSpace(title+" "+author))
	if g.apiKey != "" {
		params.Set("key", g.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/volumes?"+params.Encode(), nil)
	if err != nil {
		return "", false, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("google books search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("google books search: %s", resp.Status)
	}
	var out struct {
		Items []struct {
			VolumeInfo struct {
				ImageLinks struct {
					Thumbnail string `json:"thumbnail"`
				} `json:"imageLinks"`
			} `json:"volumeInfo"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("google books decode: %w", err)
	}
	if len(out.Items) == 0 || out.Items[0].VolumeInfo.ImageLinks.Thumbnail == "" {
		return "", false, nil
	}
	return NormalizeThumbnail(out.Items[0].VolumeInfo.ImageLinks.Thumbnail), true, nil
}

// NormalizeThumbnail upgrades the scheme to https and drops "&zoom=1".
func NormalizeThumbnail(raw string) string {
	raw = strings.Replace(raw, "http://", "https://", 1)
	return strings.Replace(raw, "&zoom=1", "", 1)
}
