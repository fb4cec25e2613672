// Package article grades free text or web articles and rewrites them at a
// chosen CEFR level.
package article

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"langgrade/internal/util"
	"langgrade/pkg/ai"
	"langgrade/pkg/cefr"
	"langgrade/pkg/domain"
)

var (
	ErrEmptyText     = errors.New("text is required")
	ErrInvalidLevel  = errors.New("invalid CEFR level detected")
	ErrInvalidTarget = errors.New("invalid target CEFR level")
)

// detectWindow is how many characters of the text are sent for detection.
const detectWindow = 1000

// Service detects and rewrites article language levels.
type Service struct {
	llm     ai.TextGenerator
	fetcher *Fetcher
}

func NewService(llm ai.TextGenerator, fetcher *Fetcher) *Service {
	if fetcher == nil {
		fetcher = NewFetcher(0, ModeRegion)
	}
	return &Service{llm: llm, fetcher: fetcher}
}

// ResolveText returns the article text for input: fetched when isURL,
// verbatim otherwise.
func (s *Service) ResolveText(ctx context.Context, input string, isURL bool) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", ErrEmptyText
	}
	if !isURL {
		return input, nil
	}
	text, err := s.fetcher.Fetch(ctx, input)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("%w: page has no text", ErrFetch)
	}
	return text, nil
}

// DetectLevel asks the model for a single CEFR level for the opening of text.
func (s *Service) DetectLevel(ctx context.Context, text string) (cefr.Level, error) {
	sample := text
	if r := []rune(text); len(r) > detectWindow {
		sample = string(r[:detectWindow])
	}
	prompt := `Analyze the following text and determine its CEFR language level (A1, A2, B1, B2, C1, or C2).
Consider the following factors:
- Vocabulary complexity
- Grammar structures
- Sentence complexity
- Overall text coherence

Text to analyze:
"` + sample + `"

Return only the CEFR level (A1, A2, B1, B2, C1, or C2) without any explanation.`

	reply, err := s.llm.Generate(ctx, ai.Request{
		Prompt:      prompt,
		Temperature: ai.Temperature(0.3),
		MaxTokens:   5,
	})
	if err != nil {
		return "", fmt.Errorf("detect level: %w", err)
	}
	level, err := cefr.Parse(reply)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("model returned invalid level", "reply", reply)
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, strings.TrimSpace(reply))
	}
	return level, nil
}

// Rewrite rewrites text at target, keeping its meaning and language.
func (s *Service) Rewrite(ctx context.Context, text, target string) (string, error) {
	level, err := cefr.Parse(target)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, target)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	prompt := fmt.Sprintf(`Rewrite the following text to match the CEFR language level %[1]s.
Maintain the same meaning and information and original language used, but adjust:
- Vocabulary complexity
- Grammar structures
- Sentence complexity
to match %[1]s level.

Original text:
"%[2]s"

Rewritten text at %[1]s level:`, level, text)

	reply, err := s.llm.Generate(ctx, ai.Request{
		Prompt:      prompt,
		Temperature: ai.Temperature(0.7),
		MaxTokens:   1500,
	})
	if err != nil {
		return "", fmt.Errorf("rewrite article: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

// Process resolves the input and detects its level.
func (s *Service) Process(ctx context.Context, input string, isURL bool) (domain.ArticleLevel, error) {
	text, err := s.ResolveText(ctx, input, isURL)
	if err != nil {
		return domain.ArticleLevel{}, err
	}
	level, err := s.DetectLevel(ctx, text)
	if err != nil {
		return domain.ArticleLevel{}, err
	}
	return domain.ArticleLevel{Text: text, Level: string(level)}, nil
}
