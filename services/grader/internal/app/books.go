package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"langgrade/internal/util"
	"langgrade/pkg/domain"
	"langgrade/pkg/library"
	"langgrade/pkg/queue"
	"langgrade/pkg/store"
)

const (
	defaultBookName     = "Unknown"
	defaultBookLanguage = "English"
)

// BookInput is a graded book submitted for saving.
type BookInput struct {
	BookName      string `json:"bookname"`
	Author        string `json:"author"`
	Summary       string `json:"summary"`
	LanguageLevel string `json:"languagelevel"`
	BookLanguage  string `json:"booklanguage"`
}

// SaveResult reports the saved row. Created is false when an existing row
// with the same name and author was returned instead.
type SaveResult struct {
	Book    domain.GradedBook
	Created bool
	// JobID is set when a cover backfill was queued for an existing row.
	JobID string
}

// SaveBook stores a graded book for ownerEmail. A row whose name and author
// both match (ignoring case and surrounding space) is returned instead of
// inserting a duplicate; its cover is backfilled when missing.
func (a *App) SaveBook(ctx context.Context, ownerEmail string, in BookInput) (SaveResult, error) {
	book := domain.GradedBook{
		UserEmail:     strings.ToLower(strings.TrimSpace(ownerEmail)),
		BookName:      strings.TrimSpace(in.BookName),
		Author:        strings.TrimSpace(in.Author),
		Summary:       in.Summary,
		LanguageLevel: strings.TrimSpace(in.LanguageLevel),
		BookLanguage:  strings.TrimSpace(in.BookLanguage),
	}
	if book.BookName == "" {
		book.BookName = defaultBookName
	}
	if book.BookLanguage == "" {
		book.BookLanguage = defaultBookLanguage
	}

	existing, ok, err := a.findExisting(book.BookName, book.Author)
	if err != nil {
		return SaveResult{}, err
	}
	if ok {
		return a.returnExisting(ctx, existing)
	}

	book.ID = uuid.NewString()
	book.CreatedAt = time.Now().UTC()
	book.CoverURL = a.covers.Resolve(ctx, book.BookName, book.Author)
	if err := a.store.InsertBook(book); err != nil {
		if !errors.Is(err, store.ErrDuplicateBook) {
			return SaveResult{}, fmt.Errorf("save book: %w", err)
		}
		// Lost a race with a concurrent save of the same book.
		existing, ok, findErr := a.findExisting(book.BookName, book.Author)
		if findErr != nil {
			return SaveResult{}, findErr
		}
		if !ok {
			return SaveResult{}, fmt.Errorf("save book: %w", err)
		}
		return a.returnExisting(ctx, existing)
	}
	util.LoggerFromContext(ctx).Info("graded book saved", "book_id", book.ID, "book", book.BookName, "has_cover", book.HasCover())
	return SaveResult{Book: book, Created: true}, nil
}

func (a *App) findExisting(name, author string) (domain.GradedBook, bool, error) {
	candidates, err := a.store.FindCandidates(name, author)
	if err != nil {
		return domain.GradedBook{}, false, fmt.Errorf("find existing book: %w", err)
	}
	nameKey, authorKey := store.NormalizeKey(name), store.NormalizeKey(author)
	for _, c := range candidates {
		if store.NormalizeKey(c.BookName) == nameKey && store.NormalizeKey(c.Author) == authorKey {
			return c, true, nil
		}
	}
	return domain.GradedBook{}, false, nil
}

func (a *App) returnExisting(ctx context.Context, book domain.GradedBook) (SaveResult, error) {
	logger := util.LoggerFromContext(ctx)
	if book.HasCover() {
		return SaveResult{Book: book}, nil
	}
	if a.queue != nil {
		job, err := a.queue.Enqueue(ctx, queue.KindCoverBackfill, book.ID)
		if err != nil {
			logger.Warn("cover backfill enqueue failed", "book_id", book.ID, "err", err)
			return SaveResult{Book: book}, nil
		}
		return SaveResult{Book: book, JobID: job.ID}, nil
	}
	if url := a.covers.Resolve(ctx, book.BookName, book.Author); url != nil {
		if err := a.store.SetCover(book.ID, *url); err != nil {
			logger.Warn("cover backfill failed", "book_id", book.ID, "err", err)
			return SaveResult{Book: book}, nil
		}
		book.CoverURL = url
	}
	return SaveResult{Book: book}, nil
}

// BackfillCover is the queue handler for cover backfill jobs. Books that
// gained a cover meanwhile are left untouched.
func (a *App) BackfillCover(ctx context.Context, job queue.Job) error {
	if job.Kind != queue.KindCoverBackfill {
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
	book, ok, err := a.store.GetBook(job.BookID)
	if err != nil {
		return err
	}
	if !ok || book.HasCover() {
		return nil
	}
	url := a.covers.Resolve(ctx, book.BookName, book.Author)
	if url == nil {
		util.LoggerFromContext(ctx).Info("cover backfill found nothing", "book_id", book.ID)
		return nil
	}
	return a.store.SetCover(book.ID, *url)
}

// ListBooks lists the library, or searches it when q is set, then applies
// the level and language filter.
func (a *App) ListBooks(q string, filter library.Filter) ([]domain.GradedBook, error) {
	var (
		books []domain.GradedBook
		err   error
	)
	if q = strings.TrimSpace(q); q != "" {
		books, err = a.store.SearchBooks(q)
	} else {
		books, err = a.store.ListBooks()
	}
	if err != nil {
		return nil, err
	}
	return filter.Apply(books), nil
}

// GetBook returns one book.
func (a *App) GetBook(id string) (domain.GradedBook, error) {
	book, ok, err := a.store.GetBook(id)
	if err != nil {
		return domain.GradedBook{}, err
	}
	if !ok {
		return domain.GradedBook{}, ErrBookNotFound
	}
	return book, nil
}

// RelatedBooks returns books graded like id.
func (a *App) RelatedBooks(id string) ([]domain.GradedBook, error) {
	book, err := a.GetBook(id)
	if err != nil {
		return nil, err
	}
	books, err := a.store.ListBooks()
	if err != nil {
		return nil, err
	}
	return library.Related(books, book), nil
}

// OwnerBooks lists the books saved by email, filtered by level.
func (a *App) OwnerBooks(email, level string) ([]domain.GradedBook, error) {
	books, err := a.store.ListBooksByOwner(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	return library.Filter{Level: level}.Apply(books), nil
}

// Languages lists the languages present in the library.
func (a *App) Languages() ([]string, error) {
	books, err := a.store.ListBooks()
	if err != nil {
		return nil, err
	}
	return library.Languages(books), nil
}

// UpdateCover changes the cover of a book owned by ownerEmail.
func (a *App) UpdateCover(id, ownerEmail, coverURL string) (domain.GradedBook, error) {
	book, err := a.GetBook(id)
	if err != nil {
		return domain.GradedBook{}, err
	}
	ownerEmail = strings.ToLower(strings.TrimSpace(ownerEmail))
	if !strings.EqualFold(book.UserEmail, ownerEmail) {
		return domain.GradedBook{}, ErrForbidden
	}
	coverURL = strings.TrimSpace(coverURL)
	ok, err := a.store.UpdateCover(id, book.UserEmail, coverURL)
	if err != nil {
		return domain.GradedBook{}, err
	}
	if !ok {
		return domain.GradedBook{}, ErrForbidden
	}
	book.CoverURL = &coverURL
	return book, nil
}
