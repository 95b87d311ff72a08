package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audioscribe/internal/transcript"
)

type stubEngine struct {
	model string
}

func (s *stubEngine) Transcribe(_ context.Context, audioPath string, _ Options, _ ProgressFunc) (*transcript.Result, error) {
	return transcript.New(audioPath, "", nil, "en", s.model), nil
}

func TestRegistryGetLoadsOnce(t *testing.T) {
	loads := 0
	r := NewRegistry(func(model string) (Engine, error) {
		loads++
		return &stubEngine{model: model}, nil
	})

	a, err := r.Get("base")
	require.NoError(t, err)
	b, err := r.Get("base")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, loads)
}

func TestRegistryDistinctModels(t *testing.T) {
	r := NewRegistry(func(model string) (Engine, error) {
		return &stubEngine{model: model}, nil
	})

	a, err := r.Get("base")
	require.NoError(t, err)
	b, err := r.Get("large")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.ElementsMatch(t, []string{"base", "large"}, r.Loaded())
}

func TestRegistryEmptyModelUsesDefault(t *testing.T) {
	r := NewRegistry(func(model string) (Engine, error) {
		return &stubEngine{model: model}, nil
	})

	eng, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, eng.(*stubEngine).model)
}

func TestRegistryEvictForcesReload(t *testing.T) {
	loads := 0
	r := NewRegistry(func(model string) (Engine, error) {
		loads++
		return &stubEngine{model: model}, nil
	})

	_, err := r.Get("small")
	require.NoError(t, err)
	r.Evict("small")
	_, err = r.Get("small")
	require.NoError(t, err)

	assert.Equal(t, 2, loads)
}

func TestRegistryFactoryError(t *testing.T) {
	r := NewRegistry(func(string) (Engine, error) {
		return nil, errors.New("model missing")
	})

	_, err := r.Get("tiny")
	assert.Error(t, err)
	assert.Empty(t, r.Loaded())
}

func TestParseProgressLine(t *testing.T) {
	fraction, message, ok := parseProgressLine("PROGRESS 0.42 Transcribing audio...")
	require.True(t, ok)
	assert.Equal(t, 0.42, fraction)
	assert.Equal(t, "Transcribing audio...", message)

	_, _, ok = parseProgressLine("something else")
	assert.False(t, ok)

	_, _, ok = parseProgressLine("PROGRESS 1.5 too far")
	assert.False(t, ok)
}
