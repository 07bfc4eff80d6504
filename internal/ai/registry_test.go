package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(" Ollama ", func(ctx context.Context, model string) (Provider, error) {
		return NewOllamaProvider("", model), nil
	})

	p, err := reg.Get(context.Background(), "OLLAMA", "mistral")
	require.NoError(t, err)
	assert.Equal(t, "mistral", p.(ModelNamer).ModelName())
	assert.Equal(t, []string{"ollama"}, reg.Names())

	_, err = reg.Get(context.Background(), "nope", "")
	assert.EqualError(t, err, "unknown ai provider: nope")
}
