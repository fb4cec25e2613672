package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultLlamaParseBaseURL = "https://api.cloud.llamaindex.ai/api/parsing"

var (
	pollInterval = 2 * time.Second
	maxPolls     = 300
)

// LlamaParseClient submits documents to the hosted LlamaParse API and waits
// for the text result.
type LlamaParseClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewLlamaParseClient builds a client. An empty baseURL selects the public
// endpoint.
func NewLlamaParseClient(apiKey, baseURL string) (*LlamaParseClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("llamaparse api key required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultLlamaParseBaseURL
	}
	return &LlamaParseClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Parse uploads the file, polls the job until it finishes and returns the
// text result as a single document.
func (c *LlamaParseClient) Parse(ctx context.Context, path string) ([]Document, error) {
	jobID, err := c.upload(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx, jobID); err != nil {
		return nil, err
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := c.getJSON(ctx, "/job/"+jobID+"/result/text", &result); err != nil {
		return nil, fmt.Errorf("llamaparse result: %w", err)
	}
	text := normalizeText(result.Text)
	if text == "" {
		return nil, nil
	}
	return []Document{{Text: text}}, nil
}

func (c *LlamaParseClient) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var job struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.do(req, &job); err != nil {
		return "", fmt.Errorf("llamaparse upload: %w", err)
	}
	if job.ID == "" {
		return "", fmt.Errorf("llamaparse upload: missing job id")
	}
	return job.ID, nil
}

func (c *LlamaParseClient) wait(ctx context.Context, jobID string) error {
	for i := 0; i < maxPolls; i++ {
		var job struct {
			Status string `json:"status"`
		}
		if err := c.getJSON(ctx, "/job/"+jobID, &job); err != nil {
			return fmt.Errorf("llamaparse status: %w", err)
		}
		switch strings.ToUpper(job.Status) {
		case "SUCCESS":
			return nil
		case "ERROR", "CANCELED", "CANCELLED":
			return fmt.Errorf("llamaparse job %s: %s", jobID, strings.ToLower(job.Status))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return fmt.Errorf("llamaparse job %s: timed out", jobID)
}

func (c *LlamaParseClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *LlamaParseClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
