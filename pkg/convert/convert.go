// Package convert turns uploads into bounded PDF documents: EPUB books are
// laid out as text pages, PDFs are cut to a page limit and raster images are
// packed one per page.
package convert

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	// DefaultMaxPages bounds every normalized document.
	DefaultMaxPages = 25
	// DefaultMaxWords bounds the text laid out from one EPUB.
	DefaultMaxWords = 15000
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file type")
	ErrNoPages           = errors.New("document contains no pages")
	ErrNoImages          = errors.New("no images could be converted")
)

// Supported reports whether name has an extension Normalize accepts.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".epub":
		return true
	default:
		return false
	}
}

var disableConfigDir sync.Once

// pdfConfig returns a fresh pdfcpu configuration that never touches the
// user's config directory.
func pdfConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	return model.NewDefaultConfiguration()
}
