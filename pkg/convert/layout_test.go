package convert

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedMeasure treats every rune as 6pt wide.
func fixedMeasure(s string) float64 { return float64(len([]rune(s))) * 6 }

func TestPaginateStartsEachPartOnNewPage(t *testing.T) {
	l := DefaultLayout(fixedMeasure)
	pages, words := l.Paginate([]string{"first chapter", "  ", "second chapter"})

	require.Len(t, pages, 2)
	assert.Equal(t, Page{"first chapter"}, pages[0])
	assert.Equal(t, Page{"second chapter"}, pages[1])
	assert.Equal(t, 4, words)
}

func TestPaginateWrapsToTextWidth(t *testing.T) {
	l := DefaultLayout(fixedMeasure)
	text := strings.Repeat("word ", 200)
	pages, _ := l.Paginate([]string{text})

	require.NotEmpty(t, pages)
	for _, page := range pages {
		for _, line := range page {
			assert.LessOrEqual(t, fixedMeasure(line), l.TextWidth())
		}
	}
}

func TestPaginateBreaksPagesAtBottomMargin(t *testing.T) {
	l := DefaultLayout(fixedMeasure)
	// One word per line; each line is short enough that only height matters.
	text := strings.Repeat(strings.Repeat("x", 80)+" ", 120)
	pages, _ := l.Paginate([]string{text})

	perPage := 0
	for y := l.PageHeight - l.Margin; y >= l.Margin+l.LineHeight; y -= l.LineHeight {
		perPage++
	}
	require.Greater(t, len(pages), 1)
	assert.Len(t, pages[0], perPage)
}

func TestPaginateHonorsWordBudget(t *testing.T) {
	l := DefaultLayout(fixedMeasure)
	l.MaxWords = 10
	pages, words := l.Paginate([]string{
		strings.Repeat("a ", 6),
		strings.Repeat("b ", 6),
		strings.Repeat("c ", 6),
	})

	assert.Equal(t, 10, words)
	require.Len(t, pages, 2)
	assert.Equal(t, "b b b b", pages[1][0])
}

func TestCoreFontMeasurer(t *testing.T) {
	measure := CoreFontMeasurer(TextFont, 12)

	short := measure("read")
	long := measure("reading books")
	assert.Greater(t, short, 0.0)
	assert.Greater(t, long, short)
	// Times-Roman "i" is narrower than "m"; both map to single bytes.
	assert.Less(t, measure("iiii"), measure("mmmm"))
	assert.InDelta(t, measure("Cafe"), measure("Café"), 1.0)
}
