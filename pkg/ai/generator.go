// Package ai wraps chat-completion providers behind one small interface.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Request is one single-turn completion.
type Request struct {
	System string
	Prompt string
	// Temperature is passed through when non-nil.
	Temperature *float32
	// MaxTokens caps the completion; zero leaves the provider default.
	MaxTokens int
	// JSON asks the provider to return a single JSON object.
	JSON bool
}

// TextGenerator produces a completion for a request.
// All providers (OpenAI, Ollama, Gemini) implement this interface.
type TextGenerator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Temperature returns a pointer suitable for Request.Temperature.
func Temperature(v float32) *float32 { return &v }

var ErrEmptyResponse = errors.New("empty response from model")

// DecodeJSON unmarshals a model reply into out. Markdown code fences and
// text around the outermost object are ignored.
func DecodeJSON(reply string, out any) error {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return fmt.Errorf("model reply is not a json object: %q", truncate(reply, 80))
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
