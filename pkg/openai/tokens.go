package openai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens counts tokens with the cl100k_base encoding. When the
// encoding data cannot be loaded it falls back to a character estimate so
// usage reporting degrades instead of failing the request.
func CountTokens(text string) int {
	encodingOnce.Do(func() {
		encoding, _ = tiktoken.GetEncoding("cl100k_base")
	})
	if encoding == nil {
		return (len(text) + 3) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}

// PromptTokens counts the prompt side of a request: every string content
// plus the text parts of multimodal content, concatenated.
func PromptTokens(messages []Message) int {
	var b []byte
	for _, m := range messages {
		switch content := m.Content.(type) {
		case string:
			b = append(b, content...)
		case []any:
			for _, p := range content {
				part, ok := p.(map[string]any)
				if !ok || part["type"] != "text" {
					continue
				}
				if text, ok := part["text"].(string); ok {
					b = append(b, text...)
				}
			}
		}
	}
	return CountTokens(string(b))
}
