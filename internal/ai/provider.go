package ai

import "context"

// Message is one role-tagged entry of the context sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationConfig is fixed per request; providers translate it to their own knobs.
type GenerationConfig struct {
	Temperature     float64
	MaxOutputTokens int
}

// Completion is a full (batch) model reply.
type Completion struct {
	Content string
	Model   string
}

// Provider is the batch capability every provider has.
type Provider interface {
	Chat(ctx context.Context, messages []Message, cfg GenerationConfig) (*Completion, error)
}
