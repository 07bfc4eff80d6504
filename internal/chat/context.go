package chat

import (
	"strings"

	"github.com/suPer8Hu/streamchat/internal/ai"
)

// BuildContext lays out the provider prompt: system instruction, history in
// stored order, then the new input. Nothing is trimmed or reordered.
func BuildContext(system string, history []ChatMessage, input string) ([]ai.Message, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	out := make([]ai.Message, 0, len(history)+2)
	if system != "" {
		out = append(out, ai.Message{Role: string(RoleSystem), Content: system})
	}
	for _, m := range history {
		out = append(out, ai.Message{Role: string(m.Role), Content: m.Content})
	}
	out = append(out, ai.Message{Role: string(RoleUser), Content: input})
	return out, nil
}

// LatestUserInput picks the text of the most recent user message.
func LatestUserInput(messages []InboundMessage) (string, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != string(RoleUser) {
			continue
		}
		if text := firstText(messages[i]); strings.TrimSpace(text) != "" {
			return text, nil
		}
		break
	}
	return "", ErrEmptyInput
}
