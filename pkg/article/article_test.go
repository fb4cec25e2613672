package article

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"langgrade/pkg/ai"
	"langgrade/pkg/cefr"
)

type scriptedLLM struct {
	reply string
	err   error
	last  ai.Request
}

func (g *scriptedLLM) Generate(ctx context.Context, req ai.Request) (string, error) {
	g.last = req
	return g.reply, g.err
}

func TestRegionTextPrefersArticle(t *testing.T) {
	page := `<html><body>
<header>Site header</header><nav>Menu</nav>
<main>Main area <article>First story.<script>track()</script></article></main>
<article>Second story.</article>
<footer>Footer</footer></body></html>`
	doc, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "First story.Second story.", RegionText(doc))
}

func TestRegionTextFallsBackToMainThenBody(t *testing.T) {
	doc, _ := html.Parse(strings.NewReader(`<body><nav>x</nav><main> Only main </main></body>`))
	assert.Equal(t, "Only main", RegionText(doc))

	doc, _ = html.Parse(strings.NewReader(`<body><style>p{}</style><p>Body text</p><footer>f</footer></body>`))
	assert.Equal(t, "Body text", RegionText(doc))
}

func TestFetcherRegionMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><header>H</header><article>Plain words.</article></body></html>`))
	}))
	defer srv.Close()

	text, err := NewFetcher(0, "").Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Plain words.", text)
}

func TestFetcherReadabilityMode(t *testing.T) {
	para := strings.Repeat("The river runs slowly past the old mill and the children watch the boats. ", 20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>River</title></head><body><div id="content"><p>` + para + `</p><p>` + para + `</p></div></body></html>`))
	}))
	defer srv.Close()

	text, err := NewFetcher(0, ModeReadability).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "The river runs slowly")
}

func TestFetcherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	_, err := NewFetcher(0, "").Fetch(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrFetch)

	_, err = NewFetcher(0, "").Fetch(context.Background(), "ftp://example.com/file")
	assert.ErrorIs(t, err, ErrFetch)
}

func TestDetectLevelUsesOpeningWindow(t *testing.T) {
	llm := &scriptedLLM{reply: " B2\n"}
	s := NewService(llm, nil)

	text := strings.Repeat("a", 1500) + "TAIL"
	level, err := s.DetectLevel(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, cefr.B2, level)
	assert.NotContains(t, llm.last.Prompt, "TAIL")
	assert.Equal(t, 5, llm.last.MaxTokens)
	require.NotNil(t, llm.last.Temperature)
	assert.InDelta(t, 0.3, *llm.last.Temperature, 1e-6)
}

func TestDetectLevelRejectsUnknownToken(t *testing.T) {
	for _, reply := range []string{"B3", "b1", "Level: B1", ""} {
		s := NewService(&scriptedLLM{reply: reply}, nil)
		_, err := s.DetectLevel(context.Background(), "some text")
		assert.ErrorIs(t, err, ErrInvalidLevel, "reply %q", reply)
	}
}

func TestRewrite(t *testing.T) {
	llm := &scriptedLLM{reply: "\n Simple text. \n"}
	s := NewService(llm, nil)

	out, err := s.Rewrite(context.Background(), "Complicated prose.", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Simple text.", out)
	assert.Contains(t, llm.last.Prompt, "CEFR language level A2")
	assert.Contains(t, llm.last.Prompt, "Complicated prose.")
	assert.Equal(t, 1500, llm.last.MaxTokens)
}

func TestRewriteValidatesTargetFirst(t *testing.T) {
	llm := &scriptedLLM{reply: "never"}
	s := NewService(llm, nil)
	_, err := s.Rewrite(context.Background(), "text", "D1")
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.Empty(t, llm.last.Prompt)
}

func TestProcess(t *testing.T) {
	s := NewService(&scriptedLLM{reply: "C1"}, nil)
	got, err := s.Process(context.Background(), "Verbatim input", false)
	require.NoError(t, err)
	assert.Equal(t, "Verbatim input", got.Text)
	assert.Equal(t, "C1", got.Level)

	_, err = s.Process(context.Background(), "  ", false)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestProcessPropagatesModelError(t *testing.T) {
	s := NewService(&scriptedLLM{err: errors.New("upstream down")}, nil)
	_, err := s.Process(context.Background(), "text", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
}
