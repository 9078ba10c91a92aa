// Package ollama provides the local answer generation strategy backed by
// an Ollama server's REST API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/smartbookqa/bookqa/internal/domain"
	"github.com/smartbookqa/bookqa/internal/metrics"
)

// StrategyName identifies the Ollama strategy in stats and logs.
const StrategyName = "ollama"

// Generator calls a local Ollama server for answer generation.
type Generator struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds the Ollama endpoint settings.
type Config struct {
	BaseURL string // e.g. http://localhost:11434
	Model   string // e.g. llama3.2
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewGenerator creates an Ollama-backed generation strategy.
func NewGenerator(cfg *Config) *Generator {
	return &Generator{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger,
	}
}

// Name implements the strategy identity used by the generation service.
func (g *Generator) Name() string { return StrategyName }

// Generate implements domain.Generator via the Ollama chat API (non-streaming).
func (g *Generator) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	payload := map[string]any{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "system", "content": prompt.System},
			{"role": "user", "content": prompt.User},
		},
		"stream": false,
	}
	if prompt.MaxTokens > 0 {
		payload["options"] = map[string]any{"num_predict": prompt.MaxTokens}
	}

	start := time.Now()
	body, err := g.post(ctx, "/api/chat", payload)
	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(StrategyName, g.model, "error").Inc()
		return "", err
	}

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(StrategyName, g.model, "error").Inc()
		return "", fmt.Errorf("ollama chat decode: %w", domain.ErrProvider)
	}
	if resp.Message.Content == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(StrategyName, g.model, "error").Inc()
		return "", fmt.Errorf("ollama chat: empty response: %w", domain.ErrProvider)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(StrategyName, g.model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(StrategyName, g.model).Observe(duration.Seconds())

	return resp.Message.Content, nil
}

// HealthCheck verifies the server is reachable.
func (g *Generator) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("ollama health request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health: status %d", resp.StatusCode)
	}
	return nil
}

func (g *Generator) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ollama encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("ollama request deadline exceeded: %w", domain.ErrTimeout)
		}
		return nil, fmt.Errorf("ollama request: %v: %w", err, domain.ErrProvider)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama read response: %w", domain.ErrProvider)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama status %d: %s: %w", resp.StatusCode, string(body), domain.ErrProvider)
	}
	return body, nil
}
