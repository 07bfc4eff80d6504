package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/streamchat/internal/ai"
	"github.com/suPer8Hu/streamchat/internal/config"
)

func TestNewRegistry(t *testing.T) {
	cfg := config.Config{
		OllamaBaseURL:   "http://ollama:11434",
		OllamaModel:     "llama3:latest",
		OpenRouterModel: "openrouter/auto",
		OpenAIAPIKey:    "sk-test",
		OpenAIModel:     "gpt-4o-mini",
	}
	reg := newRegistry(cfg)
	assert.Equal(t, []string{"ollama", "openai", "openrouter"}, reg.Names())

	for name, want := range map[string]string{
		"ollama":     "llama3:latest",
		"openrouter": "openrouter/auto",
		"openai":     "gpt-4o-mini",
	} {
		p, err := reg.Get(context.Background(), name, "")
		require.NoError(t, err, name)
		_, streams := p.(ai.StreamProvider)
		assert.True(t, streams, name)
		assert.Equal(t, want, p.(ai.ModelNamer).ModelName(), name)
	}

	p, err := reg.Get(context.Background(), "ollama", "mistral")
	require.NoError(t, err)
	assert.Equal(t, "mistral", p.(ai.ModelNamer).ModelName())
}
