package store

import (
	"sort"
	"strings"
	"sync"

	"langgrade/pkg/domain"
)

// MemoryStore keeps graded books in-process. It is used when no database is
// configured and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	books map[string]domain.GradedBook
	keys  map[string]string // name_key + "\x00" + author_key -> id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books: make(map[string]domain.GradedBook),
		keys:  make(map[string]string),
	}
}

func uniqueKey(b domain.GradedBook) string {
	return NormalizeKey(b.BookName) + "\x00" + NormalizeKey(b.Author)
}

func (m *MemoryStore) InsertBook(b domain.GradedBook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := uniqueKey(b)
	if _, exists := m.keys[key]; exists {
		return ErrDuplicateBook
	}
	if _, exists := m.books[b.ID]; exists {
		return ErrDuplicateBook
	}
	m.books[b.ID] = b
	m.keys[key] = b.ID
	return nil
}

func (m *MemoryStore) FindCandidates(name, author string) ([]domain.GradedBook, error) {
	name, author = NormalizeKey(name), NormalizeKey(author)
	return m.filter(func(b domain.GradedBook) bool {
		return NormalizeKey(b.BookName) == name || NormalizeKey(b.Author) == author
	}), nil
}

func (m *MemoryStore) SetCover(id, coverURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.books[id]; ok {
		b.CoverURL = &coverURL
		m.books[id] = b
	}
	return nil
}

func (m *MemoryStore) UpdateCover(id, ownerEmail, coverURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok || b.UserEmail != ownerEmail {
		return false, nil
	}
	b.CoverURL = &coverURL
	m.books[id] = b
	return true, nil
}

func (m *MemoryStore) ListBooks() ([]domain.GradedBook, error) {
	return m.filter(func(domain.GradedBook) bool { return true }), nil
}

func (m *MemoryStore) GetBook(id string) (domain.GradedBook, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	return b, ok, nil
}

func (m *MemoryStore) ListBooksByOwner(email string) ([]domain.GradedBook, error) {
	return m.filter(func(b domain.GradedBook) bool { return b.UserEmail == email }), nil
}

func (m *MemoryStore) SearchBooks(q string) ([]domain.GradedBook, error) {
	q = NormalizeKey(q)
	return m.filter(func(b domain.GradedBook) bool {
		return strings.Contains(strings.ToLower(b.BookName), q) ||
			strings.Contains(strings.ToLower(b.Author), q) ||
			strings.Contains(strings.ToLower(b.LanguageLevel), q)
	}), nil
}

// filter returns matching books, newest first.
func (m *MemoryStore) filter(keep func(domain.GradedBook) bool) []domain.GradedBook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.GradedBook, 0, len(m.books))
	for _, b := range m.books {
		if keep(b) {
			res = append(res, b)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID > res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res
}
