package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
)

var ErrGradingRejected = errors.New("grading service rejected submission")

// StatusError is returned for non-2xx responses from the grading service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("grading service returned %d: %s", e.StatusCode, e.Body)
}

// Unwrap marks 4xx responses as rejections.
func (e *StatusError) Unwrap() error {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return ErrGradingRejected
	}
	return nil
}

type HTTPClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient posts submissions to a remote grading service at
// POST {BaseURL}/grade. There is no retry; a failed call surfaces to the
// session, which can be submitted again.
type HTTPClient struct {
	config HTTPClientConfig
	client *http.Client
	logger *slog.Logger
}

func NewHTTPClient(config HTTPClientConfig, logger *slog.Logger) *HTTPClient {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &HTTPClient{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}
}

func (c *HTTPClient) Grade(ctx context.Context, payload *models.SubmissionPayload) (*models.GradingResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/grade"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create grading request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grading request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read grading response: %w", err)
	}

	c.logger.Info("Grading service responded",
		"session_id", payload.SessionID,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var result models.GradingResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode grading response: %w", err)
	}
	return &result, nil
}
