// Package openai shapes relay payloads: it decodes OpenAI-style chat
// requests, expands relay model variants into backend payloads, encodes
// OpenAI-compatible responses and stream chunks, and accounts tokens.
package openai

import "encoding/json"

// ChatRequest is the typed overlay of an incoming chat-completions request.
// Unknown client fields are preserved separately (see DecodeChatRequest) so
// the backend payload can carry them through.
type ChatRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Stream        *bool          `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
	Features      map[string]any `json:"features,omitempty"`
	Reasoning     *bool          `json:"reasoning,omitempty"`
	MCPServers    []string       `json:"mcp_servers,omitempty"`
}

// StreamOptions mirrors OpenAI's stream_options object.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Message is one chat message. Content is either a string or a list of
// multimodal parts.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one element of a multimodal message content list.
type ContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

// DecodeChatRequest decodes body into both the typed overlay and the raw
// field map used for pass-through payload construction.
func DecodeChatRequest(body []byte) (*ChatRequest, map[string]any, error) {
	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil, err
	}
	return &req, raw, nil
}

// Streaming reports whether the client asked for a streamed response.
func (r *ChatRequest) Streaming() bool {
	return r.Stream != nil && *r.Stream
}

// IncludeUsage reports whether a trailing usage chunk was requested.
func (r *ChatRequest) IncludeUsage() bool {
	return r.Streaming() && r.StreamOptions != nil && r.StreamOptions.IncludeUsage
}

// ChunkDelta is the delta object of one streamed chunk.
type ChunkDelta struct {
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// ChunkChoice is one choice of a streamed chunk. The delta is mirrored into
// the message field for clients that read either.
type ChunkChoice struct {
	Index        int         `json:"index"`
	Delta        *ChunkDelta `json:"delta,omitempty"`
	Message      *ChunkDelta `json:"message,omitempty"`
	FinishReason *string     `json:"finish_reason"`
}

// Chunk is one streamed chat.completion.chunk frame.
type Chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// Completion is the non-streaming chat.completion response.
type Completion struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage"`
}

// Usage is OpenAI-style token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Model is one /v1/models list entry.
type Model struct {
	ID          string         `json:"id"`
	Object      string         `json:"object"`
	Name        string         `json:"name"`
	Created     int64          `json:"created"`
	OwnedBy     string         `json:"owned_by"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ModelList is the /v1/models response envelope.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// ErrorResponse is the error envelope returned to clients.
type ErrorResponse struct {
	Error string `json:"error"`
}
