package convert

import (
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// TextFont is the core font EPUB text is drawn in.
const TextFont = "Times-Roman"

// Layout describes the fixed page geometry used for EPUB text. Lengths are
// in PDF points.
type Layout struct {
	// Paper is the pdfcpu paper name matching PageWidth and PageHeight.
	Paper      string
	Font       string
	PageWidth  float64
	PageHeight float64
	Margin     float64
	FontSize   float64
	LineHeight float64
	MaxWords   int
	// Measure returns the rendered width of s at FontSize.
	Measure func(s string) float64
}

// DefaultLayout is US Letter with 50pt margins and 12pt text.
func DefaultLayout(measure func(string) float64) Layout {
	return Layout{
		Paper:      "Letter",
		Font:       TextFont,
		PageWidth:  612,
		PageHeight: 792,
		Margin:     50,
		FontSize:   12,
		LineHeight: 12 * 1.2,
		MaxWords:   DefaultMaxWords,
		Measure:    measure,
	}
}

// TextWidth is the usable line width.
func (l Layout) TextWidth() float64 {
	return l.PageWidth - 2*l.Margin
}

// Page is the list of lines drawn on one page, top to bottom.
type Page []string

// Paginate wraps each part into lines and places them on pages. Every part
// starts on a fresh page; empty parts are skipped. Once MaxWords words have
// been laid out the remaining text is dropped. The number of words placed is
// returned with the pages.
func (l Layout) Paginate(parts []string) ([]Page, int) {
	var pages []Page
	total := 0
	for _, part := range parts {
		if l.MaxWords > 0 && total >= l.MaxWords {
			break
		}
		words := strings.Fields(part)
		if len(words) == 0 {
			continue
		}
		if l.MaxWords > 0 {
			if remaining := l.MaxWords - total; len(words) > remaining {
				words = words[:remaining]
			}
		}
		total += len(words)
		pages = append(pages, l.place(l.wrap(words))...)
	}
	return pages, total
}

func (l Layout) wrap(words []string) []string {
	var lines []string
	current := ""
	for _, word := range words {
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if l.Measure(candidate) <= l.TextWidth() {
			current = candidate
			continue
		}
		if current != "" {
			lines = append(lines, current)
		}
		current = word
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

func (l Layout) place(lines []string) []Page {
	if len(lines) == 0 {
		return nil
	}
	pages := []Page{{}}
	y := l.PageHeight - l.Margin
	for _, line := range lines {
		if y < l.Margin+l.LineHeight {
			pages = append(pages, Page{})
			y = l.PageHeight - l.Margin
		}
		pages[len(pages)-1] = append(pages[len(pages)-1], line)
		y -= l.LineHeight
	}
	return pages
}

// CoreFontMeasurer returns a width function using the metrics of a PDF
// core font at size points. Text is measured after the same Windows-1252
// mapping pdfcpu applies when drawing it.
func CoreFontMeasurer(fontName string, size int) func(string) float64 {
	return func(s string) float64 {
		return font.TextWidth(model.DecodeUTF8ToByte(s), fontName, size)
	}
}
