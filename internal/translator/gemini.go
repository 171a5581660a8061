package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"copilot-bridge/internal/models"
)

// DefaultGeminiModel is the fallback identifier used when the model cannot be
// extracted from the request path.
const DefaultGeminiModel = "gemini-2.5-pro"

// ErrGeminiConversion marks a failure while re-encoding between the Gemini
// dialect and the generic chat shape.
var ErrGeminiConversion = errors.New("gemini conversion failed")

// GenerateContentRequest models the Gemini generateContent payload.
type GenerateContentRequest struct {
	Contents          []GeminiContent   `json:"contents"`
	SystemInstruction *GeminiContent    `json:"systemInstruction"`
	GenerationConfig  *GenerationConfig `json:"generationConfig"`
}

// GeminiContent is one conversation entry made of typed parts.
type GeminiContent struct {
	Role  string       `json:"role"`
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart carries one piece of content; only text parts are consumed,
// every other kind is dropped silently.
type GeminiPart struct {
	Text string `json:"text"`
}

// GenerationConfig mirrors Gemini's sampling parameters.
type GenerationConfig struct {
	Temperature     *float64 `json:"temperature"`
	MaxOutputTokens *int     `json:"maxOutputTokens"`
}

// Validate applies the dialect's structural rules.
func (r *GenerateContentRequest) Validate() error {
	if len(r.Contents) == 0 {
		return fmt.Errorf("%w: contents must not be empty", errEmptyMessages)
	}
	for i, content := range r.Contents {
		if len(content.Parts) == 0 {
			return fmt.Errorf("%w: contents[%d] has no parts", errInvalidContent, i)
		}
	}
	return nil
}

// ToChat re-encodes the Gemini request into the generic chat dialect's
// request shape. The adapter then converts that shape to canonical; the
// two-step structure is kept, the serialization hop is not.
func (r GenerateContentRequest) ToChat(model string) (ChatCompletionRequest, error) {
	if err := r.Validate(); err != nil {
		return ChatCompletionRequest{}, err
	}

	msgs := make([]ChatMessage, 0, len(r.Contents)+1)
	if r.SystemInstruction != nil {
		if text := joinParts(r.SystemInstruction.Parts); text != "" {
			msgs = append(msgs, ChatMessage{Role: models.RoleSystem, Content: text})
		}
	}
	for _, content := range r.Contents {
		role := strings.TrimSpace(content.Role)
		if role == "" {
			role = models.RoleUser
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: joinParts(content.Parts)})
	}

	chat := ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	}
	if r.GenerationConfig != nil {
		chat.Temperature = r.GenerationConfig.Temperature
		chat.MaxTokens = r.GenerationConfig.MaxOutputTokens
	}
	if err := chat.validate(); err != nil {
		return ChatCompletionRequest{}, fmt.Errorf("%w: %v", ErrGeminiConversion, err)
	}
	return chat, nil
}

func joinParts(parts []GeminiPart) string {
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

// ParseModelAction splits a "{model}:{verb}" path segment. The verb fragment
// is matched case-insensitively; ok is false when the segment is not an
// action the dialect defines.
func ParseModelAction(segment string) (model string, stream bool, ok bool) {
	idx := strings.LastIndex(segment, ":")
	if idx < 0 {
		return "", false, false
	}

	model = segment[:idx]
	if model == "" {
		model = DefaultGeminiModel
	}

	switch strings.ToLower(segment[idx+1:]) {
	case "generatecontent":
		return model, false, true
	case "streamgeneratecontent":
		return model, true, true
	default:
		return "", false, false
	}
}

// GenerateContentResponse models the Gemini response payload.
type GenerateContentResponse struct {
	Candidates    []GeminiCandidate    `json:"candidates"`
	UsageMetadata *GeminiUsageMetadata `json:"usageMetadata,omitempty"`
}

// GeminiCandidate is one generated answer.
type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

// GeminiUsageMetadata mirrors Gemini's token accounting block.
type GeminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// NewGenerateContent re-encodes a buffered generic chat result into the
// Gemini shape: one candidate with the "model" role and an upper-cased finish
// reason.
func NewGenerateContent(text, finishReason string, u models.Usage) GenerateContentResponse {
	return GenerateContentResponse{
		Candidates: []GeminiCandidate{
			{
				Content: GeminiContent{
					Role:  "model",
					Parts: []GeminiPart{{Text: text}},
				},
				FinishReason: strings.ToUpper(finishReason),
				Index:        0,
			},
		},
		UsageMetadata: &GeminiUsageMetadata{
			PromptTokenCount:     u.InputTokens,
			CandidatesTokenCount: u.OutputTokens,
			TotalTokenCount:      u.TotalTokens,
		},
	}
}

// NewGenerateContentDelta builds one streaming frame carrying a single
// fragment. The terminal frame additionally carries the finish reason and
// usage; intermediate frames leave both unset.
func NewGenerateContentDelta(text, finishReason string, u *models.Usage) GenerateContentResponse {
	resp := GenerateContentResponse{
		Candidates: []GeminiCandidate{
			{
				Content: GeminiContent{
					Role:  "model",
					Parts: []GeminiPart{{Text: text}},
				},
				FinishReason: strings.ToUpper(finishReason),
				Index:        0,
			},
		},
	}
	if u != nil {
		resp.UsageMetadata = &GeminiUsageMetadata{
			PromptTokenCount:     u.InputTokens,
			CandidatesTokenCount: u.OutputTokens,
			TotalTokenCount:      u.TotalTokens,
		}
	}
	return resp
}

// UnmarshalJSON validates the request envelope shape.
func (r *GenerateContentRequest) UnmarshalJSON(data []byte) error {
	type alias GenerateContentRequest
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode generateContent request: %w", err)
	}
	*r = GenerateContentRequest(raw)
	return r.Validate()
}
