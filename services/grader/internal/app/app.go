package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"langgrade/internal/staging"
	"langgrade/internal/util"
	"langgrade/pkg/analysis"
	"langgrade/pkg/article"
	"langgrade/pkg/convert"
	"langgrade/pkg/cover"
	"langgrade/pkg/domain"
	"langgrade/pkg/queue"
	"langgrade/pkg/storage"
	"langgrade/pkg/store"
)

var (
	ErrFileNameRequired = errors.New("fileName is required")
	ErrTitleRequired    = errors.New("title is required")
	ErrBookNotFound     = errors.New("book not found")
	ErrForbidden        = errors.New("forbidden")
	ErrArchiveDisabled  = errors.New("document archive not configured")
	ErrJobNotFound      = errors.New("job not found")
)

// BookLookup answers the title lookups behind /bookcover.
type BookLookup interface {
	LookupBook(ctx context.Context, title string) (cover.BookInfo, error)
}

// JobQueue carries cover backfill jobs.
type JobQueue interface {
	Enqueue(ctx context.Context, kind, bookID string) (queue.Job, error)
	GetJob(ctx context.Context, jobID string) (queue.Job, bool, error)
}

// Config holds runtime dependencies for the core application. Archive and
// Queue are optional.
type Config struct {
	Staging    *staging.Area
	Normalizer *convert.Normalizer
	Analyzer   *analysis.Orchestrator
	Articles   *article.Service
	Covers     *cover.Resolver
	Lookup     BookLookup
	Store      store.Store
	Archive    *storage.Archive
	Queue      JobQueue
}

// App sequences staging, normalization, analysis and persistence.
type App struct {
	staging    *staging.Area
	normalizer *convert.Normalizer
	analyzer   *analysis.Orchestrator
	articles   *article.Service
	covers     *cover.Resolver
	lookup     BookLookup
	store      store.Store
	archive    *storage.Archive
	queue      JobQueue
}

// New validates cfg and prepares the staging directories.
func New(cfg Config) (*App, error) {
	switch {
	case cfg.Staging == nil:
		return nil, errors.New("staging area required")
	case cfg.Normalizer == nil:
		return nil, errors.New("normalizer required")
	case cfg.Analyzer == nil:
		return nil, errors.New("analyzer required")
	case cfg.Articles == nil:
		return nil, errors.New("article service required")
	case cfg.Covers == nil || cfg.Lookup == nil:
		return nil, errors.New("cover resolution required")
	case cfg.Store == nil:
		return nil, errors.New("store required")
	}
	if err := cfg.Staging.Ensure(); err != nil {
		return nil, err
	}
	return &App{
		staging:    cfg.Staging,
		normalizer: cfg.Normalizer,
		analyzer:   cfg.Analyzer,
		articles:   cfg.Articles,
		covers:     cfg.Covers,
		lookup:     cfg.Lookup,
		store:      cfg.Store,
		archive:    cfg.Archive,
		queue:      cfg.Queue,
	}, nil
}

// UploadResult describes a normalized upload ready for analysis.
type UploadResult struct {
	Message  string                  `json:"message"`
	FileName string                  `json:"fileName"`
	Pages    int                     `json:"pages"`
	Metadata domain.DocumentMetadata `json:"metadata"`
}

var whitespace = regexp.MustCompile(`\s`)

// UploadName is the stored form of a client file name: base name with every
// whitespace character replaced by an underscore.
func UploadName(name string) string {
	return whitespace.ReplaceAllString(filepath.Base(strings.TrimSpace(name)), "_")
}

// Upload stages r, normalizes it into a bounded PDF and stores it in the
// uploaded directory. EPUB books are stored as <name>.pdf.
func (a *App) Upload(ctx context.Context, fileName string, r io.Reader) (UploadResult, error) {
	name := UploadName(fileName)
	if name == "" || name == "." {
		return UploadResult{}, ErrFileNameRequired
	}
	if !convert.Supported(name) {
		return UploadResult{}, fmt.Errorf("%w: %s", convert.ErrUnsupportedFormat, filepath.Ext(name))
	}
	logger := util.LoggerFromContext(ctx)

	session := a.staging.Begin()
	defer session.Release(ctx)

	staged := session.ScratchPath("temp_" + name)
	if err := writeFile(staged, r); err != nil {
		return UploadResult{}, fmt.Errorf("stage upload: %w", err)
	}
	res, err := a.normalizer.Normalize(ctx, staged)
	if err != nil {
		return UploadResult{}, err
	}

	outName := name
	if strings.EqualFold(filepath.Ext(name), ".epub") {
		outName = strings.TrimSuffix(name, filepath.Ext(name)) + ".pdf"
	}
	if err := os.WriteFile(a.staging.UploadedPath(outName), res.Data, 0o644); err != nil {
		return UploadResult{}, fmt.Errorf("store upload: %w", err)
	}
	if a.archive != nil {
		if err := a.archive.Save(ctx, outName, res.Data); err != nil {
			logger.Warn("archive upload failed", "file", outName, "err", err)
		}
	}
	logger.Info("upload processed", "file", outName, "pages", res.Pages, "cached", res.Cached)
	return UploadResult{
		Message:  "File processed successfully",
		FileName: outName,
		Pages:    res.Pages,
		Metadata: res.Metadata,
	}, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ConvertImages packs images into one PDF, one page each.
func (a *App) ConvertImages(ctx context.Context, images []convert.Image) ([]byte, int, error) {
	if len(images) == 0 {
		return nil, 0, convert.ErrNoImages
	}
	return convert.PackImages(ctx, images)
}

// Analyze grades an uploaded document. On success the upload is consumed:
// the file is removed and the parsed directory cleared.
func (a *App) Analyze(ctx context.Context, fileName string, length domain.SummaryLength) (domain.Analysis, error) {
	name := filepath.Base(strings.TrimSpace(fileName))
	if name == "" || name == "." {
		return domain.Analysis{}, ErrFileNameRequired
	}
	path := a.staging.UploadedPath(name)
	result, err := a.analyzer.Analyze(ctx, path, length)
	if err != nil {
		return domain.Analysis{}, err
	}
	a.staging.Cleanup(ctx, []string{staging.ParsedDir}, path)
	return result, nil
}

// ArticleRequest is the input of /article.
type ArticleRequest struct {
	Text        string `json:"text"`
	IsURL       bool   `json:"isUrl"`
	TargetLevel string `json:"targetLevel"`
}

// DetectArticle resolves the article and detects its level.
func (a *App) DetectArticle(ctx context.Context, req ArticleRequest) (domain.ArticleLevel, error) {
	return a.articles.Process(ctx, req.Text, req.IsURL)
}

// RewriteArticle rewrites the article at req.TargetLevel. URLs are fetched
// first.
func (a *App) RewriteArticle(ctx context.Context, req ArticleRequest) (string, error) {
	text, err := a.articles.ResolveText(ctx, req.Text, req.IsURL)
	if err != nil {
		return "", err
	}
	return a.articles.Rewrite(ctx, text, req.TargetLevel)
}

// BookCover looks up a cover and author by title.
func (a *App) BookCover(ctx context.Context, title string) (cover.BookInfo, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return cover.BookInfo{}, ErrTitleRequired
	}
	return a.lookup.LookupBook(ctx, title)
}

// DownloadURL returns a presigned URL for an archived normalized document.
func (a *App) DownloadURL(ctx context.Context, fileName string) (string, error) {
	if a.archive == nil {
		return "", ErrArchiveDisabled
	}
	name := filepath.Base(strings.TrimSpace(fileName))
	if name == "" || name == "." {
		return "", ErrFileNameRequired
	}
	return a.archive.DownloadURL(ctx, name)
}

// Job returns a cover backfill job.
func (a *App) Job(ctx context.Context, id string) (queue.Job, error) {
	if a.queue == nil {
		return queue.Job{}, ErrJobNotFound
	}
	job, ok, err := a.queue.GetJob(ctx, id)
	if err != nil {
		return queue.Job{}, err
	}
	if !ok {
		return queue.Job{}, ErrJobNotFound
	}
	return job, nil
}
