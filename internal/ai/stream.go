package ai

import "context"

// StreamProvider is an optional interface. Providers may implement streaming chat.
//
// Fragments arrive on the first channel in order. Both channels are closed when
// the stream ends; a close with nothing on errs is the end-of-stream marker.
// Cancelling ctx must stop the upstream request.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message, cfg GenerationConfig) (<-chan string, <-chan error)
}

// ModelNamer is implemented by providers that know which model they call.
type ModelNamer interface {
	ModelName() string
}
