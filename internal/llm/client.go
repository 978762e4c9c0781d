// Package llm wraps the generation endpoint the analyst depends on. The
// vendor is treated as an opaque collaborator required to return JSON; any
// stop condition other than a normal finish is surfaced as a typed error,
// never silently worked around.
package llm

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

	"github.com/clipforge/clipforge/internal/config"
)

// Typed stop conditions. Callers report these as stage errors.
var (
	ErrEmptyResponse = errors.New("llm returned an empty response")
	ErrMaxTokens     = errors.New("llm stopped at the output token limit")
	ErrSafetyBlocked = errors.New("llm response blocked by safety filters")
	ErrRecitation    = errors.New("llm response blocked for recitation")
)

// Response is a completed generation.
type Response struct {
	Text         string
	FinishReason string
}

// Client is the generation surface the analyst consumes. Tests inject fakes.
type Client interface {
	Generate(ctx context.Context, prompt string) (*Response, error)
}

// GeminiClient talks to the Gemini generateContent REST API.
type GeminiClient struct {
	apiKey          string
	model           string
	maxOutputTokens int
	httpClient      *http.Client
	baseURL         string
	logger          *slog.Logger

	// pacing inserts a fixed delay before every call; used on rate-capped
	// paths (~13 requests/minute at 4.5s).
	pacing time.Duration
}

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// NewGeminiClient creates a client from analyst configuration.
func NewGeminiClient(cfg config.AnalystConfig, logger *slog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		maxOutputTokens: cfg.MaxOutputTokens,
		httpClient:      &http.Client{Timeout: 2 * time.Minute},
		baseURL:         defaultBaseURL,
		logger:          logger,
	}, nil
}

// SetPacing enables a fixed pre-call delay.
func (c *GeminiClient) SetPacing(d time.Duration) { c.pacing = d }

// Request/response wire shapes, reduced to the fields the pipeline uses.

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate issues one generation call. HTTP 429 is retried up to 3 times
// with a 60 second wait; every other failure surfaces immediately.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (*Response, error) {
	const rateLimitRetries = 3
	const rateLimitWait = 60 * time.Second

	if c.pacing > 0 {
		select {
		case <-time.After(c.pacing):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var lastErr error
	for attempt := 0; attempt <= rateLimitRetries; attempt++ {
		resp, status, err := c.call(ctx, prompt)
		if err == nil && status != http.StatusTooManyRequests {
			return resp, nil
		}
		if status == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("llm rate limited (429)")
			c.logger.Warn("llm rate limited, waiting before retry",
				slog.Int("attempt", attempt+1),
				slog.Duration("wait", rateLimitWait),
			)
			select {
			case <-time.After(rateLimitWait):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return nil, err
	}
	return nil, lastErr
}

// call performs a single HTTP round trip and maps finish reasons onto the
// typed errors.
func (c *GeminiClient) call(ctx context.Context, prompt string) (*Response, int, error) {
	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      0.3,
			MaxOutputTokens:  c.maxOutputTokens,
			ResponseMimeType: "application/json",
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("calling llm: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, httpResp.Body) //nolint:errcheck
		return nil, httpResp.StatusCode, nil
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("reading llm response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, httpResp.StatusCode, fmt.Errorf("llm returned HTTP %d: %s",
			httpResp.StatusCode, truncate(string(body), 200))
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("decoding llm response: %w", err)
	}
	if decoded.Error != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("llm error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	if len(decoded.Candidates) == 0 {
		return nil, httpResp.StatusCode, ErrEmptyResponse
	}

	candidate := decoded.Candidates[0]
	if err := finishReasonError(candidate.FinishReason); err != nil {
		return nil, httpResp.StatusCode, err
	}

	var sb strings.Builder
	for _, p := range candidate.Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, httpResp.StatusCode, ErrEmptyResponse
	}

	return &Response{Text: text, FinishReason: candidate.FinishReason}, httpResp.StatusCode, nil
}

// finishReasonError maps abnormal finish reasons to typed errors.
func finishReasonError(reason string) error {
	switch reason {
	case "", "STOP":
		return nil
	case "MAX_TOKENS":
		return ErrMaxTokens
	case "SAFETY":
		return ErrSafetyBlocked
	case "RECITATION":
		return ErrRecitation
	default:
		return fmt.Errorf("llm stopped with reason %s", reason)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
