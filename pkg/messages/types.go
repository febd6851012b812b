// Package messages defines the Anthropic-shaped Messages API request and response
// types the proxy accepts from callers and must reproduce on the wire.
package messages

import "encoding/json"

// Request is an inbound Messages API call.
type Request struct {
	Model     string          `json:"model"`
	Messages  []Message       `json:"messages"`
	System    string          `json:"system,omitempty"`
	MaxTokens int             `json:"max_tokens"`
	Tools     []Tool          `json:"tools,omitempty"`
	Thinking  *ThinkingConfig `json:"thinking,omitempty"`
	Stream    bool            `json:"stream,omitempty"`
}

// Message is one turn in the conversation.
type Message struct {
	Role    string    `json:"role"`
	Content []Content `json:"content"`
}

// ThinkingConfig controls extended-thinking mode.
type ThinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Enabled reports whether this thinking config should turn on paprika mode.
func (t *ThinkingConfig) Enabled() bool {
	return t != nil && (t.Type == "enabled" || t.Type == "adaptive")
}

// Tool is a tool definition offered to the model.
type Tool struct {
	Name        string          `json:"name"`
	Type        string          `json:"type,omitempty"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// ContentType enumerates the content-block variants a Message may carry.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentImage      ContentType = "image"
	ContentToolUse    ContentType = "tool_use"
	ContentToolResult ContentType = "tool_result"
)

// Content is a tagged-union content block. Exactly the fields relevant to
// Type are populated; the rest are zero.
type Content struct {
	Type ContentType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ImageSource is an inline base64-encoded image.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// InlineImage is an image extracted from a request during message merging,
// ready for upload.
type InlineImage struct {
	MediaType string
	Data      string // base64
	Filename  string
}
