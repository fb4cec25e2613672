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

const (
	defaultOpenLibraryURL = "https://openlibrary.org"
	defaultCoversURL      = "https://covers.openlibrary.org"
)

// probeSizes are tried largest first.
var probeSizes = []string{"L", "M", "S"}

// OpenLibrary searches openlibrary.org.
type OpenLibrary struct {
	baseURL   string
	coversURL string
	client    *http.Client
}

// NewOpenLibrary builds a client. Empty URLs select the public hosts.
func NewOpenLibrary(baseURL, coversURL string) *OpenLibrary {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultOpenLibraryURL
	}
	coversURL = strings.TrimRight(strings.TrimSpace(coversURL), "/")
	if coversURL == "" {
		coversURL = defaultCoversURL
	}
	return &OpenLibrary{
		baseURL:   baseURL,
		coversURL: coversURL,
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

type openLibraryDoc struct {
	Key        string   `json:"key"`
	CoverID    int64    `json:"cover_i"`
	AuthorName []string `json:"author_name"`
}

// CoverURL is the image URL for a cover id at size L, M or S.
func (o *OpenLibrary) CoverURL(coverID int64, size string) string {
	return fmt.Sprintf("%s/b/id/%d-%s.jpg", o.coversURL, coverID, size)
}

// FindCover searches by title and author and returns the large cover of the
// first hit.
func (o *OpenLibrary) FindCover(ctx context.Context, title, author string) (string, bool, error) {
	q := strings.TrimSpace(title + " " + author)
	docs, err := o.search(ctx, "q="+url.QueryEscape(q)+"&fields=key,cover_i")
	if err != nil {
		return "", false, err
	}
	if len(docs) == 0 || docs[0].CoverID == 0 {
		return "", false, nil
	}
	return o.CoverURL(docs[0].CoverID, "L"), true, nil
}

// BookInfo is the answer to a title lookup.
type BookInfo struct {
	CoverURL string  `json:"coverUrl"`
	Author   *string `json:"author"`
}

// LookupBook searches by title only and returns the first size of the first
// hit's cover that actually downloads, plus its first author. Without a
// usable cover the placeholder is returned and author is nil. Only a failed
// search is an error.
func (o *OpenLibrary) LookupBook(ctx context.Context, title string) (BookInfo, error) {
	q := strings.ReplaceAll(url.QueryEscape(strings.TrimSpace(title)), "%20", "+")
	docs, err := o.search(ctx, "q="+q)
	if err != nil {
		return BookInfo{}, err
	}
	if len(docs) > 0 && docs[0].CoverID != 0 {
		for _, size := range probeSizes {
			imageURL := o.CoverURL(docs[0].CoverID, size)
			if o.probe(ctx, imageURL) {
				info := BookInfo{CoverURL: imageURL}
				if len(docs[0].AuthorName) > 0 && docs[0].AuthorName[0] != "" {
					author := docs[0].AuthorName[0]
					info.Author = &author
				}
				return info, nil
			}
		}
	}
	return BookInfo{CoverURL: Placeholder}, nil
}

func (o *OpenLibrary) search(ctx context.Context, query string) ([]openLibraryDoc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/search.json?"+query, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open library search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("open library search: %s", resp.Status)
	}
	var out struct {
		Docs []openLibraryDoc `json:"docs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("open library decode: %w", err)
	}
	return out.Docs, nil
}

func (o *OpenLibrary) probe(ctx context.Context, imageURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
