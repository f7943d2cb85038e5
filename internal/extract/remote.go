package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Remote delegates extraction to an external text extraction service.
type Remote struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRemote(baseURL, apiKey string, timeout time.Duration) *Remote {
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type extractResponse struct {
	Text  string `json:"text"`
	Pages int    `json:"pages"`
}

type extractError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Remote) Extract(ctx context.Context, data []byte) (string, error) {
	url := fmt.Sprintf("%s/api/v1/extract", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/pdf")
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusBadRequest ||
		resp.StatusCode == http.StatusUnsupportedMediaType ||
		resp.StatusCode == http.StatusUnprocessableEntity {
		var errResp extractError
		if err := json.Unmarshal(body, &errResp); err != nil {
			return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
		}
		return "", fmt.Errorf("API error: %s - %s", errResp.Error, errResp.Message)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var extracted extractResponse
	if err := json.Unmarshal(body, &extracted); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	log.Trace().Int("pages", extracted.Pages).Int("chars", len(extracted.Text)).Msg("Remote extraction finished")

	if strings.TrimSpace(extracted.Text) == "" {
		return "", ErrNoText
	}
	return extracted.Text, nil
}
