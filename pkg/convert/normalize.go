package convert

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"langgrade/internal/util"
	"langgrade/pkg/domain"
)

// Options configures a Normalizer.
type Options struct {
	// CacheDir receives converted EPUB books, one file per input path.
	CacheDir string
	MaxPages int
	MaxWords int
}

// Result is a bounded PDF produced from one input file.
type Result struct {
	// Path is the cache file of a converted EPUB. PDFs are not cached and
	// leave it empty.
	Path     string
	Data     []byte
	Pages    int
	Metadata domain.DocumentMetadata
	// Cached is set when the output already existed. Metadata is empty then.
	Cached bool
}

// Normalizer converts EPUB and PDF files into bounded PDFs.
type Normalizer struct {
	cacheDir string
	maxPages int
	layout   Layout
}

func NewNormalizer(opts Options) (*Normalizer, error) {
	if strings.TrimSpace(opts.CacheDir) == "" {
		return nil, errors.New("cache dir required")
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	layout := DefaultLayout(CoreFontMeasurer(TextFont, 12))
	if opts.MaxWords > 0 {
		layout.MaxWords = opts.MaxWords
	}
	return &Normalizer{cacheDir: opts.CacheDir, maxPages: opts.MaxPages, layout: layout}, nil
}

// CachePath is the converted EPUB location for inputPath. The key is the path
// string, so two different books staged at the same path share one entry.
func (n *Normalizer) CachePath(inputPath string) string {
	sum := md5.Sum([]byte(inputPath))
	return filepath.Join(n.cacheDir, hex.EncodeToString(sum[:])+".pdf")
}

// Normalize converts the file at inputPath. EPUB books are laid out as text
// pages and cached by input path. PDFs are cut to the page limit on every
// call.
func (n *Normalizer) Normalize(ctx context.Context, inputPath string) (Result, error) {
	ext := strings.ToLower(filepath.Ext(inputPath))
	if ext != ".pdf" && ext != ".epub" {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	logger := util.LoggerFromContext(ctx)

	if ext == ".pdf" {
		raw, err := os.ReadFile(inputPath)
		if err != nil {
			return Result{}, fmt.Errorf("read input: %w", err)
		}
		res, err := n.fromPDF(raw)
		if err != nil {
			return Result{}, err
		}
		logger.Info("normalized document", "input", filepath.Base(inputPath), "pages", res.Pages)
		return res, nil
	}

	out := n.CachePath(inputPath)
	if data, err := os.ReadFile(out); err == nil {
		pages, err := PageCount(data)
		if err != nil {
			return Result{}, err
		}
		logger.Info("normalize cache hit", "input", filepath.Base(inputPath))
		return Result{Path: out, Data: data, Pages: pages, Cached: true}, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Result{}, fmt.Errorf("read cached document: %w", err)
	}

	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return Result{}, fmt.Errorf("read input: %w", err)
	}
	res, err := n.fromEPUB(raw)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(n.cacheDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(out, res.Data, 0o644); err != nil {
		return Result{}, fmt.Errorf("write normalized document: %w", err)
	}
	res.Path = out
	logger.Info("normalized document", "input", filepath.Base(inputPath), "pages", res.Pages)
	return res, nil
}

func (n *Normalizer) fromEPUB(raw []byte) (Result, error) {
	book, err := readEPUB(raw)
	if err != nil {
		return Result{}, err
	}
	pages, _ := n.layout.Paginate(book.Parts)
	if len(pages) == 0 {
		return Result{}, ErrNoPages
	}
	if len(pages) > n.maxPages {
		pages = pages[:n.maxPages]
	}
	data, err := writeTextPDF(pages, n.layout, book.Metadata)
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Pages: len(pages), Metadata: book.Metadata}, nil
}

func (n *Normalizer) fromPDF(raw []byte) (Result, error) {
	data, pages, err := TrimPages(raw, n.maxPages)
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Pages: pages}, nil
}
