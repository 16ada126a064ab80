// Package imagegen turns planned asset descriptions into PNG sprites.
package imagegen

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"gamesmith/internal/config"
	"gamesmith/internal/logging"
	"gamesmith/internal/types"
)

// Generator produces image bytes for a named asset. Failures are reported,
// never fatal to a cycle; the executor records them and moves on.
type Generator interface {
	Generate(ctx context.Context, name, prompt string) ([]byte, error)
}

// GeminiGenerator generates images through the Gemini image model.
type GeminiGenerator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiGenerator creates a generator from config.
func NewGeminiGenerator(ctx context.Context, cfg config.ImagesConfig, apiKey string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("image generation API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash-image"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiGenerator{
		client:  client,
		model:   model,
		timeout: cfg.GetTimeout(),
	}, nil
}

// Generate requests one sprite and returns its bytes.
func (g *GeminiGenerator) Generate(ctx context.Context, name, prompt string) ([]byte, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.ImagesDebug("Generating %q with model %s", name, g.model)

	fullPrompt := fmt.Sprintf("2D game sprite named %q: %s. Clean silhouette on a plain background, readable at small sizes.", name, prompt)
	contents := []*genai.Content{
		genai.NewContentFromText(fullPrompt, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	})
	if err != nil {
		logging.ImagesError("Generation of %q failed after %v: %v", name, time.Since(startTime), err)
		return nil, types.WrapFault(types.ClassUnavailable, err, "image generation failed for %q", name)
	}

	for _, cand := range result.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				logging.Images("Generated %q in %v (%d bytes, %s)", name, time.Since(startTime), len(part.InlineData.Data), part.InlineData.MIMEType)
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, types.Faultf(types.ClassUnavailable, "no image returned for %q", name)
}

// Disabled is the Generator wired in when image generation is turned off.
// Every request fails with an unavailable fault, which the executor treats
// like any other per-image failure.
type Disabled struct{}

// Generate always fails.
func (Disabled) Generate(ctx context.Context, name, prompt string) ([]byte, error) {
	return nil, types.Faultf(types.ClassUnavailable, "image generation is disabled")
}
