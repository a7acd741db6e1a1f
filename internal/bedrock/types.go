package bedrock

// AnthropicVersion is the Anthropic API version Bedrock expects in
// message-format request bodies.
const AnthropicVersion = "bedrock-2023-05-31"

// Message roles in conversational order.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is the Anthropic message-format request body for Bedrock.
type Request struct {
	AnthropicVersion string    `json:"anthropic_version"`
	Messages         []Message `json:"messages"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	Temperature      float64   `json:"temperature,omitempty"`
	TopP             float64   `json:"top_p,omitempty"`
	TopK             int       `json:"top_k,omitempty"`
	StopSequences    []string  `json:"stop_sequences,omitempty"`
	System           string    `json:"system,omitempty"`
}

// Message represents one conversational turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock represents a content block in a message. Text blocks carry
// the model-visible text; image blocks carry a base64 source prepared by
// the caller.
type ContentBlock struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Source *Source `json:"source,omitempty"`
}

// Source represents a source for image content
type Source struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// Response is the decoded envelope of a blocking model invocation.
type Response struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence string         `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// Text returns the first text content block of the response.
func (r *Response) Text() string {
	for _, c := range r.Content {
		if c.Type == "text" {
			return c.Text
		}
	}
	return ""
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Streaming event kinds. The service is evolving and may introduce new
// kinds; consumers must treat anything else as unrecognized, not an error.
const (
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageStop       = "message_stop"
)

// StreamEvent is one decoded chunk of a streaming invocation.
type StreamEvent struct {
	Type    string             `json:"type"`
	Delta   *Delta             `json:"delta,omitempty"`
	Metrics *InvocationMetrics `json:"amazon-bedrock-invocationMetrics,omitempty"`
}

// Delta carries the incremental text of a content_block_delta event.
type Delta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// InvocationMetrics represents AWS Bedrock invocation metrics
type InvocationMetrics struct {
	InputTokenCount   int `json:"inputTokenCount"`
	OutputTokenCount  int `json:"outputTokenCount"`
	InvocationLatency int `json:"invocationLatency"`
	FirstByteLatency  int `json:"firstByteLatency"`
}
