// Package parse turns a staged PDF into plain text documents, either through
// the hosted LlamaParse service or locally.
package parse

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// Document is one text unit returned by a parser.
type Document struct {
	Text string
}

// Parser extracts text from the file at path.
type Parser interface {
	Parse(ctx context.Context, path string) ([]Document, error)
}

var ErrNoText = errors.New("no text extracted")

// FirstText returns the text of the first document, trimmed.
func FirstText(docs []Document) string {
	if len(docs) == 0 {
		return ""
	}
	return strings.TrimSpace(docs[0].Text)
}

// JoinText concatenates every non-empty document separated by blank lines.
func JoinText(docs []Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if t := strings.TrimSpace(d.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

var (
	spaceRun = regexp.MustCompile(`[ \t\f\v]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	s = spaceRun.ReplaceAllString(s, " ")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
