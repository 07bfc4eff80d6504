package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChainProvider drives any langchaingo model; in production an
// OpenAI-compatible chat endpoint.
type LangChainProvider struct {
	llm   llms.Model
	model string
}

func NewLangChainProvider(llm llms.Model, model string) *LangChainProvider {
	return &LangChainProvider{llm: llm, model: model}
}

func NewOpenAIProvider(apiKey, model, baseURL string) (*LangChainProvider, error) {
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create OpenAI client: %w", err)
	}
	return NewLangChainProvider(client, model), nil
}

func (p *LangChainProvider) ModelName() string { return p.model }

func toMessageContent(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case "system":
			role = llms.ChatMessageTypeSystem
		case "assistant":
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

func callOptions(cfg GenerationConfig) []llms.CallOption {
	opts := []llms.CallOption{llms.WithTemperature(cfg.Temperature)}
	if cfg.MaxOutputTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(cfg.MaxOutputTokens))
	}
	return opts
}

func (p *LangChainProvider) Chat(ctx context.Context, messages []Message, cfg GenerationConfig) (*Completion, error) {
	resp, err := p.llm.GenerateContent(ctx, toMessageContent(messages), callOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, errors.New("langchain: empty response")
	}
	return &Completion{Content: resp.Choices[0].Content, Model: p.model}, nil
}

// StreamChat forwards the streaming callback's fragments. GenerateContent
// returning is the completion signal.
func (p *LangChainProvider) StreamChat(ctx context.Context, messages []Message, cfg GenerationConfig) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		opts := append(callOptions(cfg), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			select {
			case chunks <- string(chunk):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))

		if _, err := p.llm.GenerateContent(ctx, toMessageContent(messages), opts...); err != nil {
			errs <- err
		}
	}()

	return chunks, errs
}
