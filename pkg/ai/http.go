package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError is a non-2xx answer from a provider's HTTP API.
type APIError struct {
	Provider string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s api error: status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s api error (%d): %s", e.Provider, e.Status, e.Message)
}

// errorMessage extracts a provider's error text from a failed response body.
type errorMessage func(body []byte) string

// postJSON sends payload to endpoint and decodes a 2xx body into out.
func postJSON(ctx context.Context, client *http.Client, provider, endpoint string, payload, out any, message errorMessage) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{Provider: provider, Status: resp.StatusCode}
		if message != nil {
			apiErr.Message = strings.TrimSpace(message(raw))
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s decode: %w", provider, err)
	}
	return nil
}
