// Package analysis grades a normalized document: parse it, extract book
// metadata and a CEFR level, and summarize it.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"langgrade/internal/util"
	"langgrade/pkg/ai"
	"langgrade/pkg/domain"
	"langgrade/pkg/parse"
)

var (
	ErrNoContent    = errors.New("parsed document contains no text")
	ErrFileNotFound = errors.New("file not found")
)

const defaultBookLanguage = "English"

const extractionSystem = "You are an expert language learning book analyzer. Your task is to carefully extract the book name, author name, language proficiency level range, and the language of the book from the provided text. If the language level is not explicitly stated, analyze the content complexity to determine the appropriate CEFR language level (A1, A2, B1, etc.), generating a grade (ideally a range, e.g. A2 - B1)."

const extractionFormat = `Respond only in valid JSON. Extract the following information from the text and return it in this exact format:
{
  "bookName": "exact name of the book",
  "author": "name of the author",
  "languageLevel": "language proficiency level range in CEFR language level (A1, A2, B1, etc.), ideally a range, e.g. A2 - B1",
  "bookLanguage": "the language in which the book is written (e.g., English, Spanish, French, etc.)"
}`

// Orchestrator runs the grading pipeline. Steps run in order: parse,
// extract, summarize.
type Orchestrator struct {
	parser parse.Parser
	llm    ai.TextGenerator
	cache  Cache
	group  singleflight.Group
}

// New builds an Orchestrator. A nil cache selects an unbounded MemoryCache.
func New(parser parse.Parser, llm ai.TextGenerator, cache Cache) *Orchestrator {
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	return &Orchestrator{parser: parser, llm: llm, cache: cache}
}

// CacheKey identifies an analysis of fileName at length.
func CacheKey(fileName string, length domain.SummaryLength) string {
	return fileName + "-" + string(length)
}

// Analyze grades the document at filePath. Cached results are returned
// without touching the file, so a cached document may already be gone.
// Concurrent calls for one key share a single pipeline run, which keeps
// going when the caller that started it goes away.
func (o *Orchestrator) Analyze(ctx context.Context, filePath string, length domain.SummaryLength) (domain.Analysis, error) {
	logger := util.LoggerFromContext(ctx)
	key := CacheKey(filepath.Base(filePath), length)

	if cached, ok, err := o.cache.Get(ctx, key); err != nil {
		logger.Warn("analysis cache read failed", "key", key, "err", err)
	} else if ok {
		logger.Info("analysis cache hit", "key", key)
		return cached, nil
	}

	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Analysis{}, ErrFileNotFound
		}
		return domain.Analysis{}, fmt.Errorf("stat document: %w", err)
	}

	// The shared run must not inherit the first caller's cancellation.
	runCtx := context.WithoutCancel(ctx)
	ch := o.group.DoChan(key, func() (any, error) {
		result, err := o.run(runCtx, filePath, length)
		if err != nil {
			return nil, err
		}
		if err := o.cache.Set(runCtx, key, result); err != nil {
			logger.Warn("analysis cache write failed", "key", key, "err", err)
		}
		return result, nil
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return domain.Analysis{}, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return domain.Analysis{}, res.Err
	}
	if res.Shared {
		logger.Info("analysis shared with concurrent request", "key", key)
	}
	return res.Val.(domain.Analysis), nil
}

func (o *Orchestrator) run(ctx context.Context, filePath string, length domain.SummaryLength) (domain.Analysis, error) {
	logger := util.LoggerFromContext(ctx)

	docs, err := o.parser.Parse(ctx, filePath)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("parse document: %w", err)
	}
	first := parse.FirstText(docs)
	if first == "" {
		return domain.Analysis{}, ErrNoContent
	}

	meta, err := o.extract(ctx, first)
	if err != nil {
		return domain.Analysis{}, err
	}
	summary, err := o.summarize(ctx, parse.JoinText(docs), length)
	if err != nil {
		return domain.Analysis{}, err
	}
	logger.Info("document analyzed",
		"file", filepath.Base(filePath),
		"book", meta.BookName,
		"level", meta.LanguageLevel,
		"language", meta.BookLanguage,
	)
	return domain.Analysis{Summary: summary, Metadata: meta}, nil
}

func (o *Orchestrator) extract(ctx context.Context, text string) (domain.BookMetadata, error) {
	reply, err := o.llm.Generate(ctx, ai.Request{
		System:      extractionSystem,
		Prompt:      extractionFormat + "\n\nText to analyze: " + text + "\n\nReturn the analysis in the specified JSON format.",
		Temperature: ai.Temperature(0),
		JSON:        true,
	})
	if err != nil {
		return domain.BookMetadata{}, fmt.Errorf("extract metadata: %w", err)
	}
	var meta domain.BookMetadata
	if err := ai.DecodeJSON(reply, &meta); err != nil {
		return domain.BookMetadata{}, fmt.Errorf("extract metadata: %w", err)
	}
	meta.BookName = strings.TrimSpace(meta.BookName)
	meta.Author = strings.TrimSpace(meta.Author)
	meta.LanguageLevel = strings.TrimSpace(meta.LanguageLevel)
	meta.BookLanguage = strings.TrimSpace(meta.BookLanguage)
	if meta.BookLanguage == "" {
		meta.BookLanguage = defaultBookLanguage
	}
	return meta, nil
}

// SummaryPrompt is the instruction sent with the document text.
func SummaryPrompt(length domain.SummaryLength) string {
	return fmt.Sprintf("Please provide a %s summary of the document and give a idea about language complexity of the document in approximately %d words. Use only English.",
		length, length.TargetWords())
}

func (o *Orchestrator) summarize(ctx context.Context, text string, length domain.SummaryLength) (string, error) {
	reply, err := o.llm.Generate(ctx, ai.Request{
		System: "Answer using only the document below.\n\nDocument:\n" + text,
		Prompt: SummaryPrompt(length),
	})
	if err != nil {
		return "", fmt.Errorf("summarize document: %w", err)
	}
	return strings.TrimSpace(reply), nil
}
