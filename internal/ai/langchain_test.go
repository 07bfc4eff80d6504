package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeLLM struct {
	fragments []string
	err       error
	lastRoles []llms.ChatMessageType
	lastOpts  llms.CallOptions
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.lastRoles = f.lastRoles[:0]
	for _, m := range messages {
		f.lastRoles = append(f.lastRoles, m.Role)
	}
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	f.lastOpts = opts

	full := ""
	for _, frag := range f.fragments {
		if opts.StreamingFunc != nil {
			if err := opts.StreamingFunc(ctx, []byte(frag)); err != nil {
				return nil, err
			}
		}
		full += frag
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: full}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLangChainProvider_Chat(t *testing.T) {
	llm := &fakeLLM{fragments: []string{"he", "llo"}}
	p := NewLangChainProvider(llm, "gpt-test")

	resp, err := p.Chat(context.Background(), []Message{
		{Role: "system", Content: "be nice"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hey"},
	}, GenerationConfig{Temperature: 0.7, MaxOutputTokens: 1000})
	require.NoError(t, err)

	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "gpt-test", resp.Model)
	assert.Equal(t, []llms.ChatMessageType{llms.ChatMessageTypeSystem, llms.ChatMessageTypeHuman, llms.ChatMessageTypeAI}, llm.lastRoles)
	assert.Equal(t, 0.7, llm.lastOpts.Temperature)
	assert.Equal(t, 1000, llm.lastOpts.MaxTokens)
}

func TestLangChainProvider_StreamChat(t *testing.T) {
	llm := &fakeLLM{fragments: []string{"A", "", "B", "C"}}
	p := NewLangChainProvider(llm, "gpt-test")

	chunks, errs := p.StreamChat(context.Background(), nil, GenerationConfig{})
	var out []string
	for c := range chunks {
		out = append(out, c)
	}
	assert.Equal(t, []string{"A", "B", "C"}, out)
	assert.NoError(t, <-errs)
}

func TestLangChainProvider_StreamError(t *testing.T) {
	llm := &fakeLLM{fragments: []string{"A"}, err: errors.New("upstream 500")}
	p := NewLangChainProvider(llm, "gpt-test")

	chunks, errs := p.StreamChat(context.Background(), nil, GenerationConfig{})
	for range chunks {
	}
	assert.EqualError(t, <-errs, "upstream 500")
}
