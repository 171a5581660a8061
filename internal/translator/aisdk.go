package translator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"copilot-bridge/internal/models"
)

// ResponsesRequest models the AI-SDK /v1/responses payload.
type ResponsesRequest struct {
	Model string
	Input []ResponsesInput
}

// UnmarshalJSON implements custom parsing to enforce structural validation.
func (r *ResponsesRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Model string           `json:"model"`
		Input []ResponsesInput `json:"input"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode responses request: %w", err)
	}

	r.Model = strings.TrimSpace(raw.Model)
	r.Input = raw.Input

	if r.Model == "" {
		return errEmptyModel
	}
	if len(r.Input) == 0 {
		return fmt.Errorf("%w: input must not be empty", errEmptyMessages)
	}
	return nil
}

// ToCanonical converts the request into the canonical format. As in the
// generic dialect, system-role entries fold into user-role messages.
func (r ResponsesRequest) ToCanonical() models.ChatRequest {
	msgs := make([]models.Message, 0, len(r.Input))
	for _, in := range r.Input {
		msgs = append(msgs, models.Message{
			Role: canonicalRole(in.Role),
			Text: in.Content,
		})
	}

	return models.ChatRequest{
		Model:    r.Model,
		Messages: msgs,
	}
}

// ResponsesInput is one input entry; content may be a string or a list of
// typed parts (input_text / output_text).
type ResponsesInput struct {
	Role    string
	Content string
}

// UnmarshalJSON normalises the input entry structure.
func (in *ResponsesInput) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode input entry: %w", err)
	}

	if strings.TrimSpace(raw.Role) == "" {
		return fmt.Errorf("%w: role must be provided", errInvalidRole)
	}

	content, err := extractText(raw.Content)
	if err != nil {
		return err
	}

	in.Role = strings.TrimSpace(raw.Role)
	in.Content = content
	return nil
}

// Response models the AI-SDK response envelope: the assistant text nests
// inside a message object with a synthesized id, inside an output array.
type Response struct {
	ID        string           `json:"id"`
	Object    string           `json:"object"`
	Created   int64            `json:"created"`
	CreatedAt int64            `json:"created_at"`
	Status    string           `json:"status"`
	Model     string           `json:"model"`
	Output    []ResponseOutput `json:"output"`
	Usage     ResponsesUsage   `json:"usage"`
}

// ResponseOutput is one output entry, always a completed assistant message.
type ResponseOutput struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Role    string            `json:"role"`
	Status  string            `json:"status"`
	Content []ResponseContent `json:"content"`
}

// ResponseContent is one typed content part of an output message.
type ResponseContent struct {
	Type        string   `json:"type"`
	Text        string   `json:"text"`
	Annotations []string `json:"annotations"`
}

// ResponsesUsage mirrors the dialect's usage block.
type ResponsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// NewResponse builds the buffered responses-dialect envelope with synthesized
// response and message ids.
func NewResponse(model string, created int64, text string, u models.Usage) Response {
	return Response{
		ID:        "resp_" + uuid.NewString(),
		Object:    "response",
		Created:   created,
		CreatedAt: created,
		Status:    "completed",
		Model:     model,
		Output: []ResponseOutput{
			{
				ID:     "msg_" + uuid.NewString(),
				Type:   "message",
				Role:   models.RoleAssistant,
				Status: "completed",
				Content: []ResponseContent{
					{Type: "output_text", Text: text, Annotations: []string{}},
				},
			},
		},
		Usage: ResponsesUsage{
			InputTokens:  u.InputTokens,
			OutputTokens: u.OutputTokens,
			TotalTokens:  u.TotalTokens,
		},
	}
}
