package domain

import "time"

// SummaryLength selects the approximate size of a generated summary.
type SummaryLength string

const (
	SummaryShort  SummaryLength = "short"
	SummaryMedium SummaryLength = "medium"
	SummaryLong   SummaryLength = "long"
)

// ParseSummaryLength maps request input to a SummaryLength. Empty input
// selects medium.
func ParseSummaryLength(raw string) (SummaryLength, bool) {
	switch SummaryLength(raw) {
	case "":
		return SummaryMedium, true
	case SummaryShort, SummaryMedium, SummaryLong:
		return SummaryLength(raw), true
	default:
		return "", false
	}
}

// TargetWords is the word count requested from the summarizer.
func (l SummaryLength) TargetWords() int {
	switch l {
	case SummaryShort:
		return 100
	case SummaryLong:
		return 450
	default:
		return 250
	}
}

// BookMetadata is the structured part of an analysis.
type BookMetadata struct {
	BookName      string `json:"bookName"`
	Author        string `json:"author"`
	LanguageLevel string `json:"languageLevel"`
	BookLanguage  string `json:"bookLanguage"`
}

// Analysis is the result of grading one normalized document.
type Analysis struct {
	Summary  string       `json:"summary"`
	Metadata BookMetadata `json:"metadata"`
}

// DocumentMetadata is what could be recovered from a source file's package
// manifest. Every field may be empty.
type DocumentMetadata struct {
	Title    string `json:"title,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Language string `json:"language,omitempty"`
}

// GradedBook is the persisted record of a graded document. JSON names follow
// the column names the web client reads.
type GradedBook struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	UserEmail     string    `json:"useremail"`
	BookName      string    `json:"bookname"`
	Author        string    `json:"author"`
	Summary       string    `json:"summary"`
	LanguageLevel string    `json:"languagelevel"`
	BookLanguage  string    `json:"booklanguage"`
	CoverURL      *string   `json:"cover_url"`
}

// HasCover reports whether a cover URL is set.
func (b GradedBook) HasCover() bool {
	return b.CoverURL != nil && *b.CoverURL != ""
}

// ArticleLevel is the answer to a level detection request.
type ArticleLevel struct {
	Text  string `json:"text"`
	Level string `json:"level"`
}
