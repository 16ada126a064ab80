package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"gamesmith/internal/config"
	"gamesmith/internal/logging"
	"gamesmith/internal/types"
)

// GeminiClient implements Client against the Gemini API over raw HTTP.
type GeminiClient struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	temperature     float64
	httpClient      *http.Client
	mu              sync.Mutex
	lastRequest     time.Time
}

const minRequestInterval = 100 * time.Millisecond

// NewGeminiClient builds a client from config.
func NewGeminiClient(cfg config.LLMConfig) *GeminiClient {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	maxTokens := cfg.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 65536
	}
	return &GeminiClient{
		apiKey:          cfg.APIKey,
		baseURL:         baseURL,
		model:           model,
		maxOutputTokens: maxTokens,
		temperature:     cfg.Temperature,
		httpClient: &http.Client{
			Timeout: cfg.GetTimeout(),
		},
	}
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string {
	return c.model
}

// Complete sends a bare prompt and returns the completion text.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt under a system instruction.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	contents := []geminiContent{{
		Role:  "user",
		Parts: []geminiPart{{Text: userPrompt}},
	}}
	return c.generate(ctx, "CompleteWithSystem", systemPrompt, contents, nil)
}

// CompleteChat sends a multi-turn history under a system instruction.
func (c *GeminiClient) CompleteChat(ctx context.Context, systemPrompt string, history []Message) (string, error) {
	contents := make([]geminiContent, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Text}},
		})
	}
	return c.generate(ctx, "CompleteChat", systemPrompt, contents, nil)
}

// CompleteWithSchema enforces a JSON schema on the response via
// generationConfig.responseJsonSchema.
func (c *GeminiClient) CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error) {
	schemaText := strings.TrimSpace(jsonSchema)
	if schemaText == "" {
		return "", types.Faultf(types.ClassInvalid, "json schema is empty")
	}
	var schema map[string]interface{}
	if err := json.Unmarshal([]byte(schemaText), &schema); err != nil {
		return "", types.WrapFault(types.ClassInvalid, err, "invalid json schema")
	}

	contents := []geminiContent{{
		Role:  "user",
		Parts: []geminiPart{{Text: userPrompt}},
	}}
	return c.generate(ctx, "CompleteWithSchema", systemPrompt, contents, schema)
}

// generate runs one completion with rate limiting and retries. All public
// completion methods funnel through here.
func (c *GeminiClient) generate(ctx context.Context, op, systemPrompt string, contents []geminiContent, schema map[string]interface{}) (string, error) {
	// Auto-apply timeout if context has no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.ModelDebug("[Gemini] %s: model=%s system_len=%d turns=%d schema=%t",
		op, c.model, len(systemPrompt), len(contents), schema != nil)

	if c.apiKey == "" {
		logging.ModelError("[Gemini] %s: API key not configured", op)
		return "", types.Faultf(types.ClassInvalid, "API key not configured")
	}

	// Rate limiting
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < minRequestInterval {
		time.Sleep(minRequestInterval - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := geminiRequest{
		Contents: contents,
		GenerationConfig: geminiGenerationConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: c.maxOutputTokens,
		},
	}
	if strings.TrimSpace(systemPrompt) != "" {
		reqBody.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: systemPrompt}},
		}
	}
	if schema != nil {
		reqBody.GenerationConfig.ResponseMimeType = "application/json"
		reqBody.GenerationConfig.ResponseSchema = schema
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	// Retry loop for rate limits and upstream hiccups
	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * time.Second)
		}
		if ctx.Err() != nil {
			break
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = types.WrapFault(types.ClassUnavailable, err, "request failed")
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = types.WrapFault(types.ClassUnavailable, err, "failed to read response")
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = types.Faultf(types.ClassRateLimited, "rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = types.Faultf(types.ClassUnavailable, "API request failed with status %d: %s", resp.StatusCode, truncate(string(body), 300))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			logging.ModelError("[Gemini] %s: API returned status %d: %s", op, resp.StatusCode, truncate(string(body), 300))
			return "", types.Faultf(types.ClassUnavailable, "API request failed with status %d: %s", resp.StatusCode, truncate(string(body), 300))
		}

		var geminiResp geminiResponse
		if err := json.Unmarshal(body, &geminiResp); err != nil {
			return "", types.WrapFault(types.ClassUnavailable, err, "failed to parse response")
		}
		if geminiResp.Error != nil {
			return "", types.Faultf(types.ClassUnavailable, "API error: %s", geminiResp.Error.Message)
		}
		if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
			return "", types.Faultf(types.ClassUnavailable, "no completion returned")
		}

		var result strings.Builder
		for _, part := range geminiResp.Candidates[0].Content.Parts {
			result.WriteString(part.Text)
		}
		response := strings.TrimSpace(result.String())

		logging.Model("[Gemini] %s: completed in %v response_len=%d", op, time.Since(startTime), len(response))
		return response, nil
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	logging.ModelError("[Gemini] %s: max retries exceeded after %v: %v", op, time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
