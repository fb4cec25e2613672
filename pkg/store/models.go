package store

import (
	"time"

	"langgrade/pkg/domain"
)

// GradedBookModel is the graded_books row. Column names match the ones the
// web client reads. name_key and author_key hold the normalized name and
// author and are unique together.
type GradedBookModel struct {
	ID            string    `gorm:"primaryKey"`
	CreatedAt     time.Time `gorm:"not null;index"`
	UserEmail     string    `gorm:"column:useremail;index"`
	BookName      string    `gorm:"column:bookname;not null"`
	Author        string    `gorm:"column:author"`
	Summary       string    `gorm:"column:summary;type:text"`
	LanguageLevel string    `gorm:"column:languagelevel;index"`
	BookLanguage  string    `gorm:"column:booklanguage"`
	CoverURL      *string   `gorm:"column:cover_url"`
	NameKey       string    `gorm:"column:name_key;not null;uniqueIndex:idx_graded_books_key"`
	AuthorKey     string    `gorm:"column:author_key;not null;uniqueIndex:idx_graded_books_key"`
}

func (GradedBookModel) TableName() string { return "graded_books" }

func bookToModel(b domain.GradedBook) GradedBookModel {
	return GradedBookModel{
		ID:            b.ID,
		CreatedAt:     b.CreatedAt,
		UserEmail:     b.UserEmail,
		BookName:      b.BookName,
		Author:        b.Author,
		Summary:       b.Summary,
		LanguageLevel: b.LanguageLevel,
		BookLanguage:  b.BookLanguage,
		CoverURL:      b.CoverURL,
		NameKey:       NormalizeKey(b.BookName),
		AuthorKey:     NormalizeKey(b.Author),
	}
}

func bookFromModel(m GradedBookModel) domain.GradedBook {
	return domain.GradedBook{
		ID:            m.ID,
		CreatedAt:     m.CreatedAt,
		UserEmail:     m.UserEmail,
		BookName:      m.BookName,
		Author:        m.Author,
		Summary:       m.Summary,
		LanguageLevel: m.LanguageLevel,
		BookLanguage:  m.BookLanguage,
		CoverURL:      m.CoverURL,
	}
}
