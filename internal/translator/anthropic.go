package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"copilot-bridge/internal/models"
)

// MessagesRequest models the Anthropic /v1/messages payload. The dialect's
// dedicated system string is held out-of-band and only becomes a synthesized
// system message at the canonical-request boundary.
type MessagesRequest struct {
	Model       string
	MaxTokens   *int
	Messages    []AnthropicMessage
	System      string
	Stream      bool
	Temperature *float64
}

// UnmarshalJSON enforces validation and normalises fields. Stream defaults to
// true when the flag is absent.
func (r *MessagesRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Model       string             `json:"model"`
		MaxTokens   *int               `json:"max_tokens"`
		Messages    []AnthropicMessage `json:"messages"`
		System      json.RawMessage    `json:"system"`
		Stream      *bool              `json:"stream"`
		Temperature *float64           `json:"temperature"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode messages request: %w", err)
	}

	system, err := parseAnthropicSystem(raw.System)
	if err != nil {
		return err
	}

	r.Model = strings.TrimSpace(raw.Model)
	r.MaxTokens = raw.MaxTokens
	r.Messages = raw.Messages
	r.System = system
	r.Temperature = raw.Temperature

	r.Stream = true
	if raw.Stream != nil {
		r.Stream = *raw.Stream
	}

	return r.validate()
}

func (r *MessagesRequest) validate() error {
	if r.Model == "" {
		return errEmptyModel
	}
	if len(r.Messages) == 0 {
		return errEmptyMessages
	}
	return nil
}

// ToCanonical converts the request into the canonical format, prepending the
// out-of-band system string as a synthesized system message.
func (r MessagesRequest) ToCanonical() models.ChatRequest {
	msgs := make([]models.Message, 0, len(r.Messages)+1)
	if strings.TrimSpace(r.System) != "" {
		msgs = append(msgs, models.Message{Role: models.RoleSystem, Text: r.System})
	}
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

// AnthropicMessage represents a single message in the request payload.
type AnthropicMessage struct {
	Role    string
	Content string
}

// UnmarshalJSON normalises the message content structure.
func (m *AnthropicMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	role := strings.TrimSpace(raw.Role)
	if role == "" {
		return fmt.Errorf("%w: role must be provided", errInvalidRole)
	}

	content, err := extractText(raw.Content)
	if err != nil {
		return err
	}

	m.Role = role
	m.Content = content
	return nil
}

// parseAnthropicSystem accepts the system prompt as a plain string or a list
// of text blocks, concatenating block text in order.
func parseAnthropicSystem(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single, nil
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var b strings.Builder
		for _, block := range blocks {
			if block.Type != "" && block.Type != "text" {
				continue
			}
			b.WriteString(block.Text)
		}
		return b.String(), nil
	}

	return "", fmt.Errorf("%w: invalid system prompt", errInvalidContent)
}

// MessagesResponse models the Anthropic buffered response payload.
type MessagesResponse struct {
	ID           string               `json:"id"`
	Type         string               `json:"type"`
	Role         string               `json:"role"`
	Model        string               `json:"model"`
	Content      []AnthropicTextBlock `json:"content"`
	StopReason   string               `json:"stop_reason"`
	StopSequence *string              `json:"stop_sequence"`
	Usage        AnthropicUsage       `json:"usage"`
}

// AnthropicTextBlock represents a text content block in the response.
type AnthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AnthropicUsage mirrors Anthropic's usage format.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AnthropicStopReason maps a canonical finish reason onto the dialect's
// vocabulary.
func AnthropicStopReason(finishReason string) string {
	switch finishReason {
	case "length":
		return "max_tokens"
	default:
		return "end_turn"
	}
}

// NewMessagesResponse builds the buffered Anthropic response: exactly one
// text content block.
func NewMessagesResponse(id, model, text, finishReason string, u models.Usage) MessagesResponse {
	return MessagesResponse{
		ID:         id,
		Type:       "message",
		Role:       models.RoleAssistant,
		Model:      model,
		Content:    []AnthropicTextBlock{{Type: "text", Text: text}},
		StopReason: AnthropicStopReason(finishReason),
		Usage:      AnthropicUsage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens},
	}
}

// Streaming frame payloads, in the exact order the wire protocol requires:
// message_start, content_block_start, N content_block_delta,
// content_block_stop, message_delta, message_stop.

// NewMessageStart builds the opening stream frame.
func NewMessageStart(id, model string) map[string]any {
	return map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":            id,
			"type":          "message",
			"role":          models.RoleAssistant,
			"model":         model,
			"content":       []any{},
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage":         map[string]int{"input_tokens": 0, "output_tokens": 0},
		},
	}
}

// NewContentBlockStart opens the single text block with empty text.
func NewContentBlockStart() map[string]any {
	return map[string]any{
		"type":          "content_block_start",
		"index":         0,
		"content_block": map[string]any{"type": "text", "text": ""},
	}
}

// NewContentBlockDelta carries exactly one received fragment.
func NewContentBlockDelta(text string) map[string]any {
	return map[string]any{
		"type":  "content_block_delta",
		"index": 0,
		"delta": map[string]any{"type": "text_delta", "text": text},
	}
}

// NewContentBlockStop closes the text block.
func NewContentBlockStop() map[string]any {
	return map[string]any{
		"type":  "content_block_stop",
		"index": 0,
	}
}

// NewMessageDelta carries the stop reason and final usage.
func NewMessageDelta(finishReason string, u models.Usage) map[string]any {
	return map[string]any{
		"type": "message_delta",
		"delta": map[string]any{
			"stop_reason":   AnthropicStopReason(finishReason),
			"stop_sequence": nil,
		},
		"usage": map[string]int{"output_tokens": u.OutputTokens},
	}
}

// NewMessageStop terminates the stream.
func NewMessageStop() map[string]any {
	return map[string]any{"type": "message_stop"}
}
