// Package analyze turns extracted contract text into a structured risk
// report by way of an LLM.
//
// The client speaks the OpenAI-compatible chat/completions protocol against
// the DeepSeek endpoint using plain net/http. The model is instructed to
// return JSON, but the response goes through a multi-tier parser
// (see parser.go) that always produces a well-formed result — malformed
// model output is never an error. Errors surface only when the HTTP call
// itself fails or no API key is configured.
package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-contract-backend/internal/config"
	"github.com/tbourn/go-contract-backend/internal/domain"
)

// Sentinel errors for the two genuine failure modes of analysis.
var (
	// ErrNoAPIKey means the analysis service has no credentials configured;
	// no call is attempted.
	ErrNoAPIKey = errors.New("analysis api key not configured")

	// ErrServiceUnavailable wraps transport-level failures of the LLM call.
	ErrServiceUnavailable = errors.New("analysis service unavailable")
)

// Analyzer produces a risk report from contract text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*domain.AnalysisResult, error)
}

// Client calls the DeepSeek chat completions API.
type Client struct {
	cfg  config.LLMConfig
	http *http.Client
	log  zerolog.Logger
}

// NewClient constructs a Client with a dedicated HTTP client bounded by the
// configured timeout.
func NewClient(cfg config.LLMConfig, log zerolog.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// chatRequest / chatResponse mirror the OpenAI-compatible wire format.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze sends the (budget-truncated) contract text to the model and parses
// the response. The returned result is always well-formed on success; the
// error is non-nil only for missing credentials or a failed HTTP exchange.
func (c *Client) Analyze(ctx context.Context, text string) (*domain.AnalysisResult, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}

	start := time.Now()
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(text)},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}

	raw, err := c.post(ctx, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", body)
	if err != nil {
		c.log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("llm call failed")
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrServiceUnavailable, err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrServiceUnavailable)
	}
	content := strings.TrimSpace(cc.Choices[0].Message.Content)

	result := ParseResponse(content)
	c.log.Info().
		Int("clauses", len(result.Clauses)).
		Dur("elapsed", time.Since(start)).
		Msg("analysis complete")
	return result, nil
}

// post performs one JSON request/response exchange. Non-2xx statuses are
// errors; the body prefix is included for diagnosis.
func (c *Client) post(ctx context.Context, url string, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, firstN(string(raw), 300))
	}
	return raw, nil
}

// firstN caps s at n characters for log/error output.
func firstN(s string, n int) string {
	return cutRunes(s, n)
}
