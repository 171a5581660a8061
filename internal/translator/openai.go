package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"copilot-bridge/internal/models"
)

// ChatCompletionRequest models the generic chat/completions request payload.
// This is the pass-through dialect: its shape defines the canonical protocol.
type ChatCompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	Stream      bool
	MaxTokens   *int
	Temperature *float64
}

// UnmarshalJSON implements custom parsing to enforce structural validation.
func (r *ChatCompletionRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Model       string        `json:"model"`
		Messages    []ChatMessage `json:"messages"`
		Stream      bool          `json:"stream"`
		MaxTokens   *int          `json:"max_tokens"`
		Temperature *float64      `json:"temperature"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chat request: %w", err)
	}

	r.Model = strings.TrimSpace(raw.Model)
	r.Messages = raw.Messages
	r.Stream = raw.Stream
	r.MaxTokens = raw.MaxTokens
	r.Temperature = raw.Temperature

	return r.validate()
}

func (r *ChatCompletionRequest) validate() error {
	if r.Model == "" {
		return errEmptyModel
	}
	if len(r.Messages) == 0 {
		return errEmptyMessages
	}
	return nil
}

// ToCanonical converts the request into the canonical format. There is no
// separate system channel: system-role entries fold into user-role messages.
func (r ChatCompletionRequest) ToCanonical() models.ChatRequest {
	msgs := make([]models.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		msgs = append(msgs, models.Message{
			Role: canonicalRole(m.Role),
			Text: m.Content,
		})
	}

	return models.ChatRequest{
		Model:       r.Model,
		Messages:    msgs,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
		Stream:      r.Stream,
	}
}

// ChatMessage captures a single message within the chat request.
type ChatMessage struct {
	Role    string
	Content string
}

// UnmarshalJSON supports string and typed-part content formats.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	if strings.TrimSpace(raw.Role) == "" {
		return fmt.Errorf("%w: role must be provided", errInvalidRole)
	}

	content, err := extractText(raw.Content)
	if err != nil {
		return err
	}

	m.Role = strings.TrimSpace(raw.Role)
	m.Content = content
	return nil
}

// ChatCompletionResponse models the generic chat response payload.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *OpenAIUsage `json:"usage,omitempty"`
}

// ChatChoice represents a single choice in the response payload.
type ChatChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// ResponseMessage is the assistant message inside a buffered choice.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenAIUsage mirrors the token usage block in generic chat responses.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewUsage converts canonical usage into the generic dialect block.
func NewUsage(u models.Usage) *OpenAIUsage {
	return &OpenAIUsage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// NewChatCompletion builds the buffered generic chat response.
func NewChatCompletion(id, model string, created int64, text, finishReason string, u models.Usage) ChatCompletionResponse {
	return ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []ChatChoice{
			{
				Index:        0,
				Message:      ResponseMessage{Role: models.RoleAssistant, Content: text},
				FinishReason: finishReason,
			},
		},
		Usage: NewUsage(u),
	}
}

// ChatCompletionChunk models one generic streaming frame.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice carries the incremental delta of one streaming frame.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta is the incremental message payload.
type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

func newChunk(id, model string, created int64, delta ChunkDelta, finish *string) ChatCompletionChunk {
	return ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

// NewChunkRole builds the opening frame announcing the assistant role.
func NewChunkRole(id, model string, created int64) ChatCompletionChunk {
	return newChunk(id, model, created, ChunkDelta{Role: models.RoleAssistant}, nil)
}

// NewChunkText builds one content-delta frame. Fragments map one-to-one onto
// frames; they are never re-split or re-batched.
func NewChunkText(id, model string, created int64, text string) ChatCompletionChunk {
	return newChunk(id, model, created, ChunkDelta{Content: text}, nil)
}

// NewChunkFinish builds the terminal frame carrying the finish reason.
func NewChunkFinish(id, model string, created int64, reason string) ChatCompletionChunk {
	return newChunk(id, model, created, ChunkDelta{}, &reason)
}
