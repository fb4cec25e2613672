package parse

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/ledongthuc/pdf"
)

// LocalParser extracts PDF text without network access. pdftotext is used
// when installed, with the pure Go reader as fallback. Every page becomes
// one Document.
type LocalParser struct {
	// Pdftotext is the binary looked up on PATH. Empty disables it.
	Pdftotext string
}

func NewLocalParser() *LocalParser {
	return &LocalParser{Pdftotext: "pdftotext"}
}

func (p *LocalParser) Parse(ctx context.Context, path string) ([]Document, error) {
	if p.Pdftotext != "" {
		if docs, err := p.parseWithPdftotext(ctx, path); err == nil && len(docs) > 0 {
			return docs, nil
		}
	}
	return parseWithGoLib(path)
}

func (p *LocalParser) parseWithPdftotext(ctx context.Context, path string) ([]Document, error) {
	bin, err := exec.LookPath(p.Pdftotext)
	if err != nil {
		return nil, fmt.Errorf("pdftotext not found: %w", err)
	}
	out, err := exec.CommandContext(ctx, bin, "-layout", "-enc", "UTF-8", path, "-").Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}
	text := normalizeText(string(out))
	if text == "" {
		return nil, ErrNoText
	}
	return []Document{{Text: text}}, nil
}

func parseWithGoLib(path string) ([]Document, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	var docs []Document
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip unreadable pages.
			continue
		}
		if text = normalizeText(text); text != "" {
			docs = append(docs, Document{Text: text})
		}
	}
	return docs, nil
}
