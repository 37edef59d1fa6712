// Package sse provides a minimal, purpose-built reader for the upstream
// chat service's event stream. The upstream frames every record as a single
// "data: {json}" line; there are no multi-line events, event types, or IDs,
// so this is deliberately narrower than a general SSE client.
//
// This package intentionally does NOT provide SSE writer or server
// capabilities.
package sse

// Event is a single decoded record from the upstream stream.
type Event struct {
	// Type is the upstream frame type (e.g. "chat:completion").
	Type string `json:"type,omitempty"`

	// Data is the frame payload.
	Data EventData `json:"data"`
}

// EventData is the payload of an upstream frame.
type EventData struct {
	// Phase classifies the delta: "thinking", "answer", "tool_call" or
	// "other". Absent phases are treated as "other" downstream.
	Phase string `json:"phase,omitempty"`

	// DeltaContent is the primary text delta.
	DeltaContent string `json:"delta_content,omitempty"`

	// EditContent is a secondary delta the upstream emits when it rewrites
	// previously streamed text. Used as a fallback when DeltaContent is empty.
	EditContent string `json:"edit_content,omitempty"`

	// Done marks the final frame of a completion.
	Done bool `json:"done,omitempty"`

	// Usage carries token accounting when the upstream reports it.
	Usage *Usage `json:"usage,omitempty"`

	// Error carries an upstream-reported failure for this completion.
	Error *UpstreamError `json:"error,omitempty"`
}

// Usage is the upstream's token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// UpstreamError is an error object embedded in a stream frame.
type UpstreamError struct {
	Code    int    `json:"code,omitempty"`
	Detail  string `json:"detail,omitempty"`
	Message string `json:"message,omitempty"`
}
