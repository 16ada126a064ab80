package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTarget(t *testing.T) {
	t.Run("canonical names", func(t *testing.T) {
		for _, name := range []string{"structure", "style", "behavior"} {
			target, ok := NormalizeTarget(name)
			require.True(t, ok, "canonical name %q must map", name)
			assert.Equal(t, FragmentTarget(name), target)
		}
	})

	t.Run("conventional filenames", func(t *testing.T) {
		target, ok := NormalizeTarget("index.html")
		require.True(t, ok)
		assert.Equal(t, TargetStructure, target)

		target, ok = NormalizeTarget("style.css")
		require.True(t, ok)
		assert.Equal(t, TargetStyle, target)

		target, ok = NormalizeTarget("game.js")
		require.True(t, ok)
		assert.Equal(t, TargetBehavior, target)
	})

	t.Run("bare extensions and synonyms", func(t *testing.T) {
		target, ok := NormalizeTarget("css")
		require.True(t, ok)
		assert.Equal(t, TargetStyle, target)

		target, ok = NormalizeTarget("javascript")
		require.True(t, ok)
		assert.Equal(t, TargetBehavior, target)

		target, ok = NormalizeTarget("markup")
		require.True(t, ok)
		assert.Equal(t, TargetStructure, target)

		target, ok = NormalizeTarget("behaviour")
		require.True(t, ok)
		assert.Equal(t, TargetBehavior, target)
	})

	t.Run("case and path prefixes tolerated", func(t *testing.T) {
		target, ok := NormalizeTarget("  ./Index.HTML ")
		require.True(t, ok)
		assert.Equal(t, TargetStructure, target)

		target, ok = NormalizeTarget("/STYLE")
		require.True(t, ok)
		assert.Equal(t, TargetStyle, target)
	})

	t.Run("unmappable labels rejected", func(t *testing.T) {
		for _, name := range []string{"", "sprites/ship.js", "assets/style.css", "readme.md", "python"} {
			_, ok := NormalizeTarget(name)
			assert.False(t, ok, "label %q must not map", name)
		}
	})
}

func TestOperationDescribe(t *testing.T) {
	assert.Equal(t, "write structure", Operation{Kind: OpWriteFragment, Target: TargetStructure}.Describe())
	assert.Equal(t, "replace style lines 2-5", Operation{Kind: OpReplaceRange, Target: TargetStyle, StartLine: 2, EndLine: 5}.Describe())
	assert.Equal(t, `generate image "ship"`, Operation{Kind: OpGenerateImage, Name: "ship"}.Describe())
	assert.Equal(t, `unknown operation "delete_file"`, Operation{Kind: OperationKind("delete_file")}.Describe())
}

func TestFaultClassification(t *testing.T) {
	t.Run("class survives wrapping", func(t *testing.T) {
		inner := Faultf(ClassRateLimited, "model is rate limited, wait and retry")
		wrapped := fmt.Errorf("cycle failed: %w", inner)

		assert.Equal(t, ClassRateLimited, ClassOf(wrapped))
		assert.True(t, IsRetryable(wrapped))
	})

	t.Run("unclassified errors are unavailable", func(t *testing.T) {
		err := errors.New("connection reset")
		assert.Equal(t, ClassUnavailable, ClassOf(err))
		assert.True(t, IsRetryable(err))
	})

	t.Run("invalid and conflict are not retryable", func(t *testing.T) {
		assert.False(t, IsRetryable(Faultf(ClassInvalid, "operation 2 has no params object")))
		assert.False(t, IsRetryable(Faultf(ClassConflict, "session busy")))
	})

	t.Run("unwrap preserves cause", func(t *testing.T) {
		cause := errors.New("dial tcp: timeout")
		f := WrapFault(ClassUnavailable, cause, "model call failed")
		require.ErrorIs(t, f, cause)
		assert.Equal(t, "model call failed", f.Error())
	})
}
