// Package vision annotates screenshots using an external detection and OCR service.
package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxResponseBytes bounds how much of a sidecar response is read.
const maxResponseBytes = 8 << 20

type analyzeRequest struct {
	Screenshot string `json:"screenshot"`
	URL        string `json:"url,omitempty"`
}

// HTTPProcessor sends screenshots to a detection/OCR sidecar over HTTP.
// It is safe for concurrent use.
type HTTPProcessor struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewHTTPProcessor creates a processor for the configured endpoint.
func NewHTTPProcessor(cfg config.VisionConfig, logger *zap.Logger) (*HTTPProcessor, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("vision endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &HTTPProcessor{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger.Named("vision"),
	}, nil
}

// Process posts the screenshot to the sidecar and decodes its annotations.
func (p *HTTPProcessor) Process(ctx context.Context, screenshot string, snapshot *schemas.Snapshot) (*schemas.VisionAnnotations, error) {
	if screenshot == "" {
		return nil, errors.New("vision: empty screenshot")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("vision: rate limiter wait: %w", err)
	}

	reqBody := analyzeRequest{Screenshot: screenshot}
	if snapshot != nil {
		reqBody.URL = snapshot.URL
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("vision: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("vision: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("vision: failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision: sidecar returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var annotations schemas.VisionAnnotations
	if err := json.Unmarshal(body, &annotations); err != nil {
		return nil, fmt.Errorf("vision: failed to decode response: %w", err)
	}

	p.logger.Debug("Screenshot annotated.",
		zap.Int("detections", len(annotations.Detections)),
		zap.Int("text_regions", len(annotations.TextRegions)),
		zap.Duration("duration", time.Since(start)))
	return &annotations, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ schemas.VisionProcessor = (*HTTPProcessor)(nil)
