package store

import (
	"errors"
	"strings"

	"langgrade/pkg/domain"
)

// ErrDuplicateBook is returned when a book with the same normalized name and
// author already exists.
var ErrDuplicateBook = errors.New("graded book already exists")

// Store persists graded books. Every list is ordered newest first and
// unpaginated.
type Store interface {
	// InsertBook adds a new row. ID and CreatedAt must be set.
	InsertBook(domain.GradedBook) error
	// FindCandidates returns rows whose name or author equals the given
	// values, compared case-insensitively.
	FindCandidates(name, author string) ([]domain.GradedBook, error)
	// SetCover sets the cover of a book regardless of owner.
	SetCover(id, coverURL string) error
	// UpdateCover sets the cover only when ownerEmail owns the book. It
	// reports whether a row matched.
	UpdateCover(id, ownerEmail, coverURL string) (bool, error)
	ListBooks() ([]domain.GradedBook, error)
	GetBook(id string) (domain.GradedBook, bool, error)
	ListBooksByOwner(email string) ([]domain.GradedBook, error)
	// SearchBooks matches q against name, author and level.
	SearchBooks(q string) ([]domain.GradedBook, error)
}

// NormalizeKey is the comparison form of a name or author.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
