package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/briefline/briefline/internal/dialogue"
)

// HTTPClient talks to an external render service over JSON: one POST per
// command, one Result per response. The service is optional infrastructure;
// the server falls back to the stub when no address is configured.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

const defaultRequestTimeout = 30 * time.Second

// NewHTTPClient creates a client for the render service at baseURL. The
// address and timeout come from the application config; a non-positive
// timeout falls back to the default.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Render posts the command to the render service and decodes its verdict.
// A reachable service that declines the job is a Result with Success=false,
// not an error; errors are reserved for transport and decoding failures.
func (c *HTTPClient) Render(ctx context.Context, cmd dialogue.StructuredCommand) (Result, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return Result{}, fmt.Errorf("marshal render command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("call render service: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close render response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("render service returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode render response: %w", err)
	}

	c.logger.Debug("render service responded",
		"success", result.Success,
		"artifact_handle", result.ArtifactHandle,
	)
	return result, nil
}
