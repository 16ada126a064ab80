package imagegen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamesmith/internal/config"
	"gamesmith/internal/types"
)

func testImagesConfig() config.ImagesConfig {
	return config.ImagesConfig{Enabled: true, Model: "gemini-2.5-flash-image", Timeout: "5s"}
}

func TestDisabledGenerator(t *testing.T) {
	var g Generator = Disabled{}
	_, err := g.Generate(context.Background(), "ship", "a small white ship")
	require.Error(t, err)
	assert.Equal(t, types.ClassUnavailable, types.ClassOf(err))
	assert.True(t, types.IsRetryable(err), "disabled generator failures look transient to callers")
}

func TestNewGeminiGeneratorRequiresKey(t *testing.T) {
	_, err := NewGeminiGenerator(context.Background(), testImagesConfig(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}
