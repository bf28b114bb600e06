package domain

import "encoding/json"

// ChatMessage is a single inbound conversation turn as sent by the caller.
// Content is kept raw because callers may send either a plain string or an
// array of typed content parts; the usecase layer normalizes it before
// anything else looks at it.
type ChatMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ContentPart is one unit of multimodal message content in the provider's
// array-of-parts format.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// OutboundMessage is a message in the shape forwarded upstream. Content stays
// raw: the system turn carries a plain string, normalized caller turns carry
// an array of content parts.
type OutboundMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// CompletionRequest is the payload posted to the chat-completions endpoint.
type CompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []OutboundMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature float64           `json:"temperature"`
}
