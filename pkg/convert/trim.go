package convert

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// PageCount returns the number of pages in a PDF.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), pdfConfig())
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// TrimPages keeps the first maxPages pages of a PDF in their original order.
// Documents already within the limit are returned unchanged.
func TrimPages(data []byte, maxPages int) ([]byte, int, error) {
	total, err := PageCount(data)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, ErrNoPages
	}
	if maxPages <= 0 || total <= maxPages {
		return data, total, nil
	}
	var buf bytes.Buffer
	selection := []string{fmt.Sprintf("1-%d", maxPages)}
	if err := api.Trim(bytes.NewReader(data), &buf, selection, pdfConfig()); err != nil {
		return nil, 0, fmt.Errorf("trim pdf: %w", err)
	}
	return buf.Bytes(), maxPages, nil
}
