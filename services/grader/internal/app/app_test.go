package app

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"langgrade/internal/staging"
	"langgrade/pkg/ai"
	"langgrade/pkg/analysis"
	"langgrade/pkg/article"
	"langgrade/pkg/convert"
	"langgrade/pkg/cover"
	"langgrade/pkg/domain"
	"langgrade/pkg/library"
	"langgrade/pkg/parse"
	"langgrade/pkg/queue"
	"langgrade/pkg/storage"
	"langgrade/pkg/store"
)

type stubParser struct {
	text string
}

func (p stubParser) Parse(ctx context.Context, path string) ([]parse.Document, error) {
	return []parse.Document{{Text: p.text}}, nil
}

type stubLLM struct {
	mu    sync.Mutex
	calls int
}

func (g *stubLLM) Generate(ctx context.Context, req ai.Request) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	switch {
	case req.JSON:
		return `{"bookName":"The Hobbit","author":"J. R. R. Tolkien","languageLevel":"B1 - B2","bookLanguage":"English"}`, nil
	case req.MaxTokens == 5:
		return "B2", nil
	case req.MaxTokens > 5:
		return "  A simpler story.  ", nil
	default:
		return "A hobbit goes on an adventure.", nil
	}
}

type stubFinder struct {
	mu    sync.Mutex
	url   string
	calls int
}

func (f *stubFinder) FindCover(ctx context.Context, title, author string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.url == "" {
		return "", false, nil
	}
	return f.url, true, nil
}

type stubLookup struct{}

func (stubLookup) LookupBook(ctx context.Context, title string) (cover.BookInfo, error) {
	return cover.BookInfo{CoverURL: cover.Placeholder}, nil
}

type testEnv struct {
	app     *App
	area    *staging.Area
	llm     *stubLLM
	finder  *stubFinder
	store   *store.MemoryStore
	objects *storage.MemoryStore
}

func newTestEnv(t *testing.T, q JobQueue) *testEnv {
	t.Helper()
	area, err := staging.New(t.TempDir())
	if err != nil {
		t.Fatalf("staging: %v", err)
	}
	normalizer, err := convert.NewNormalizer(convert.Options{CacheDir: area.Dir(staging.ConvertDir)})
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	llm := &stubLLM{}
	finder := &stubFinder{url: "https://covers.example/1-L.jpg"}
	books := store.NewMemoryStore()
	objects := storage.NewMemoryStore()
	a, err := New(Config{
		Staging:    area,
		Normalizer: normalizer,
		Analyzer:   analysis.New(stubParser{text: "In a hole in the ground there lived a hobbit."}, llm, nil),
		Articles:   article.NewService(llm, nil),
		Covers:     cover.NewResolver(finder).WithDelay(time.Millisecond),
		Lookup:     stubLookup{},
		Store:      books,
		Archive:    storage.NewArchive(objects, "documents", 0),
		Queue:      q,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return &testEnv{app: a, area: area, llm: llm, finder: finder, store: books, objects: objects}
}

func epubBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("chapter1.xhtml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	_, _ = w.Write([]byte(`<html><body><h1>Chapter One</h1><p>In a hole in the ground there lived a hobbit.</p></body></html>`))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestUploadName(t *testing.T) {
	cases := map[string]string{
		"my book.pdf":             "my_book.pdf",
		"dir/with tab\there.epub": "with_tab_here.epub",
		"plain.pdf":               "plain.pdf",
	}
	for in, want := range cases {
		if got := UploadName(in); got != want {
			t.Fatalf("UploadName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUploadEPUBStoresPDFAndArchives(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res, err := env.app.Upload(ctx, "The Hobbit.epub", bytes.NewReader(epubBytes(t)))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.FileName != "The_Hobbit.pdf" || res.Pages != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	data, err := os.ReadFile(env.area.UploadedPath(res.FileName))
	if err != nil {
		t.Fatalf("uploaded file missing: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("uploaded file is not a PDF")
	}
	if _, _, ok := env.objects.Object("documents/The_Hobbit.pdf"); !ok {
		t.Fatalf("normalized document not archived")
	}
	entries, _ := os.ReadDir(env.area.Dir(staging.ScratchDir))
	if len(entries) != 0 {
		t.Fatalf("scratch dir not released: %d entries", len(entries))
	}

	url, err := env.app.DownloadURL(ctx, res.FileName)
	if err != nil || !strings.Contains(url, "documents/The_Hobbit.pdf") {
		t.Fatalf("download url = %q err=%v", url, err)
	}
}

// imagePDF builds an n page PDF by packing n small PNGs.
func imagePDF(t *testing.T, n int) []byte {
	t.Helper()
	images := make([]convert.Image, n)
	for i := range images {
		var buf bytes.Buffer
		if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8+i, 8))); err != nil {
			t.Fatalf("encode png: %v", err)
		}
		images[i] = convert.Image{Name: "p.png", Data: buf.Bytes()}
	}
	data, _, err := convert.PackImages(context.Background(), images)
	if err != nil {
		t.Fatalf("pack images: %v", err)
	}
	return data
}

func TestUploadSameNamePDFUsesNewContent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.app.Upload(ctx, "report.pdf", bytes.NewReader(imagePDF(t, 2)))
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if first.Pages != 2 {
		t.Fatalf("first upload pages = %d, want 2", first.Pages)
	}

	second, err := env.app.Upload(ctx, "report.pdf", bytes.NewReader(imagePDF(t, 3)))
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if second.Pages != 3 {
		t.Fatalf("second upload pages = %d, want 3", second.Pages)
	}
	stored, err := os.ReadFile(env.area.UploadedPath("report.pdf"))
	if err != nil {
		t.Fatalf("uploaded file missing: %v", err)
	}
	if pages, err := convert.PageCount(stored); err != nil || pages != 3 {
		t.Fatalf("stored pages = %d err=%v, want 3", pages, err)
	}
}

func TestUploadRejectsUnsupported(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.app.Upload(context.Background(), "notes.txt", strings.NewReader("hi"))
	if !errors.Is(err, convert.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestAnalyzeConsumesUpload(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	res, err := env.app.Upload(ctx, "hobbit.epub", bytes.NewReader(epubBytes(t)))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	got, err := env.app.Analyze(ctx, res.FileName, domain.SummaryMedium)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.Metadata.BookName != "The Hobbit" || got.Summary == "" {
		t.Fatalf("unexpected analysis: %+v", got)
	}
	if _, err := os.Stat(env.area.UploadedPath(res.FileName)); !os.IsNotExist(err) {
		t.Fatalf("upload should be removed after analysis, stat err=%v", err)
	}

	// Served from cache although the file is gone.
	calls := env.llm.calls
	if _, err := env.app.Analyze(ctx, res.FileName, domain.SummaryMedium); err != nil {
		t.Fatalf("cached analyze: %v", err)
	}
	if env.llm.calls != calls {
		t.Fatalf("cached analysis called the model again")
	}
	if _, err := env.app.Analyze(ctx, res.FileName, domain.SummaryLong); !errors.Is(err, analysis.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound for uncached length, got %v", err)
	}
	if _, err := env.app.Analyze(ctx, " ", domain.SummaryShort); !errors.Is(err, ErrFileNameRequired) {
		t.Fatalf("expected ErrFileNameRequired, got %v", err)
	}
}

func TestArticleFlows(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	level, err := env.app.DetectArticle(ctx, ArticleRequest{Text: "Some article text."})
	if err != nil || level.Level != "B2" || level.Text != "Some article text." {
		t.Fatalf("detect = %+v err=%v", level, err)
	}
	text, err := env.app.RewriteArticle(ctx, ArticleRequest{Text: "Some article text.", TargetLevel: "A2"})
	if err != nil || text != "A simpler story." {
		t.Fatalf("rewrite = %q err=%v", text, err)
	}
	if _, err := env.app.RewriteArticle(ctx, ArticleRequest{Text: "x", TargetLevel: "D1"}); !errors.Is(err, article.ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
}

func TestSaveBookDeduplicates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.app.SaveBook(ctx, "Reader@Example.com", BookInput{
		BookName: "The Hobbit", Author: "J. R. R. Tolkien", LanguageLevel: "B1", Summary: "s",
	})
	if err != nil || !first.Created {
		t.Fatalf("first save: %+v err=%v", first, err)
	}
	if first.Book.UserEmail != "reader@example.com" || first.Book.BookLanguage != "English" || !first.Book.HasCover() {
		t.Fatalf("unexpected saved book: %+v", first.Book)
	}

	second, err := env.app.SaveBook(ctx, "other@example.com", BookInput{
		BookName: "  the hobbit ", Author: "j. r. r. tolkien", LanguageLevel: "B2",
	})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if second.Created || second.Book.ID != first.Book.ID {
		t.Fatalf("expected existing row, got %+v", second)
	}
	all, _ := env.store.ListBooks()
	if len(all) != 1 {
		t.Fatalf("expected one stored row, got %d", len(all))
	}

	// Same author, different title is a new book.
	third, err := env.app.SaveBook(ctx, "reader@example.com", BookInput{BookName: "The Silmarillion", Author: "J. R. R. Tolkien"})
	if err != nil || !third.Created {
		t.Fatalf("third save: %+v err=%v", third, err)
	}
}

func TestSaveBookDefaultsName(t *testing.T) {
	env := newTestEnv(t, nil)
	res, err := env.app.SaveBook(context.Background(), "a@example.com", BookInput{Author: "Anon"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res.Book.BookName != "Unknown" {
		t.Fatalf("bookname = %q, want Unknown", res.Book.BookName)
	}
}

func TestSaveBookBackfillsCoverInline(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.finder.url = ""
	first, err := env.app.SaveBook(ctx, "a@example.com", BookInput{BookName: "Dune", Author: "Frank Herbert"})
	if err != nil || first.Book.HasCover() {
		t.Fatalf("first save: %+v err=%v", first, err)
	}

	env.finder.url = "https://covers.example/dune-L.jpg"
	again, err := env.app.SaveBook(ctx, "a@example.com", BookInput{BookName: "Dune", Author: "Frank Herbert"})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if !again.Book.HasCover() || *again.Book.CoverURL != "https://covers.example/dune-L.jpg" {
		t.Fatalf("cover not backfilled: %+v", again.Book)
	}
	stored, _ := env.app.GetBook(first.Book.ID)
	if !stored.HasCover() {
		t.Fatalf("stored row not updated")
	}
}

func TestSaveBookQueuesCoverBackfill(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q, err := queue.NewRedisJobQueue(client, queue.RedisQueueConfig{Stream: "langgrade:covers", Group: "grader"})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	env := newTestEnv(t, q)
	ctx := context.Background()

	env.finder.url = ""
	first, err := env.app.SaveBook(ctx, "a@example.com", BookInput{BookName: "Emma", Author: "Jane Austen"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	again, err := env.app.SaveBook(ctx, "a@example.com", BookInput{BookName: "Emma", Author: "Jane Austen"})
	if err != nil || again.JobID == "" {
		t.Fatalf("expected queued backfill, got %+v err=%v", again, err)
	}
	job, err := env.app.Job(ctx, again.JobID)
	if err != nil || job.BookID != first.Book.ID || job.Status != queue.StatusQueued {
		t.Fatalf("job = %+v err=%v", job, err)
	}

	env.finder.url = "https://covers.example/emma-L.jpg"
	if err := env.app.BackfillCover(ctx, job); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	stored, _ := env.app.GetBook(first.Book.ID)
	if !stored.HasCover() {
		t.Fatalf("backfill did not set cover")
	}
	if _, err := env.app.Job(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestLibraryReads(t *testing.T) {
	env := newTestEnv(t, nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []domain.GradedBook{
		{ID: "1", BookName: "Emma", Author: "Austen", LanguageLevel: "B2", BookLanguage: "English", UserEmail: "a@example.com", CreatedAt: base},
		{ID: "2", BookName: "Niebla", Author: "Unamuno", LanguageLevel: "B2", BookLanguage: "Spanish", UserEmail: "b@example.com", CreatedAt: base.Add(time.Hour)},
		{ID: "3", BookName: "Heidi", Author: "Spyri", LanguageLevel: "A2 - B1", BookLanguage: "German", UserEmail: "a@example.com", CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, b := range seed {
		if err := env.store.InsertBook(b); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	all, err := env.app.ListBooks("", library.Filter{})
	if err != nil || len(all) != 3 || all[0].ID != "3" {
		t.Fatalf("list = %v err=%v", all, err)
	}
	b1, _ := env.app.ListBooks("", library.Filter{Level: "B1"})
	if len(b1) != 1 || b1[0].ID != "3" {
		t.Fatalf("level filter = %v", b1)
	}
	found, _ := env.app.ListBooks("unam", library.Filter{})
	if len(found) != 1 || found[0].ID != "2" {
		t.Fatalf("search = %v", found)
	}
	related, _ := env.app.RelatedBooks("1")
	if len(related) != 1 || related[0].ID != "2" {
		t.Fatalf("related = %v", related)
	}
	mine, _ := env.app.OwnerBooks("A@example.com", "all")
	if len(mine) != 2 {
		t.Fatalf("owner books = %v", mine)
	}
	langs, _ := env.app.Languages()
	if strings.Join(langs, ",") != "English,German,Spanish" {
		t.Fatalf("languages = %v", langs)
	}
	if _, err := env.app.GetBook("missing"); !errors.Is(err, ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}
}

func TestUpdateCoverOwnerOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	saved, err := env.app.SaveBook(context.Background(), "owner@example.com", BookInput{BookName: "Emma", Author: "Austen"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := env.app.UpdateCover(saved.Book.ID, "intruder@example.com", "https://x/y.jpg"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	book, err := env.app.UpdateCover(saved.Book.ID, "Owner@Example.com", "https://x/y.jpg")
	if err != nil || *book.CoverURL != "https://x/y.jpg" {
		t.Fatalf("update = %+v err=%v", book, err)
	}
}

func TestBookCoverRequiresTitle(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.app.BookCover(context.Background(), "  "); !errors.Is(err, ErrTitleRequired) {
		t.Fatalf("expected ErrTitleRequired, got %v", err)
	}
	info, err := env.app.BookCover(context.Background(), "Emma")
	if err != nil || info.CoverURL != cover.Placeholder || info.Author != nil {
		t.Fatalf("cover = %+v err=%v", info, err)
	}
}

func TestConvertImagesRequiresImages(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, _, err := env.app.ConvertImages(context.Background(), nil); !errors.Is(err, convert.ErrNoImages) {
		t.Fatalf("expected ErrNoImages, got %v", err)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected missing dependencies to fail")
	}
	area, _ := staging.New(filepath.Join(t.TempDir(), "root"))
	if _, err := New(Config{Staging: area}); err == nil {
		t.Fatalf("expected missing normalizer to fail")
	}
}
