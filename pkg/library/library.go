// Package library holds the read-side helpers of the graded book catalogue:
// URL slugs and list filters.
package library

import (
	"regexp"
	"sort"
	"strings"

	"langgrade/pkg/cefr"
	"langgrade/pkg/domain"
)

// RelatedLimit caps Related results.
const RelatedLimit = 3

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	nonWord       = regexp.MustCompile(`[^\w-]+`)
	hyphenRun     = regexp.MustCompile(`-{2,}`)
)

// Slugify lowercases text, turns whitespace into hyphens, strips everything
// that is not a word character or hyphen and trims hyphens at both ends.
func Slugify(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = whitespaceRun.ReplaceAllString(s, "-")
	s = nonWord.ReplaceAllString(s, "")
	s = hyphenRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// BookURL is the public page of a graded book.
func BookURL(b domain.GradedBook) string {
	return "/library/" + Slugify(b.BookName) + "/" + Slugify(b.LanguageLevel) + "/" + b.ID
}

// Filter selects books by level (see cefr.InRange) and language. Empty or
// "all" values do not filter.
type Filter struct {
	Level    string
	Language string
}

// Apply returns the books matching f, preserving order.
func (f Filter) Apply(books []domain.GradedBook) []domain.GradedBook {
	level := strings.TrimSpace(f.Level)
	language := strings.TrimSpace(f.Language)
	if (level == "" || level == cefr.All) && (language == "" || language == cefr.All) {
		return books
	}
	out := make([]domain.GradedBook, 0, len(books))
	for _, b := range books {
		if level != "" && !cefr.InRange(b.LanguageLevel, level) {
			continue
		}
		if language != "" && language != cefr.All && !strings.EqualFold(strings.TrimSpace(b.BookLanguage), language) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Related returns up to RelatedLimit books graded exactly like book,
// excluding book itself.
func Related(books []domain.GradedBook, book domain.GradedBook) []domain.GradedBook {
	out := make([]domain.GradedBook, 0, RelatedLimit)
	for _, b := range books {
		if b.ID == book.ID || b.LanguageLevel != book.LanguageLevel {
			continue
		}
		out = append(out, b)
		if len(out) == RelatedLimit {
			break
		}
	}
	return out
}

// Languages lists the distinct book languages, sorted.
func Languages(books []domain.GradedBook) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, b := range books {
		lang := strings.TrimSpace(b.BookLanguage)
		if lang == "" {
			continue
		}
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
