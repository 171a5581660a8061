package translator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot-bridge/internal/models"
)

func TestMessagesRequestSystemHeldOutOfBand(t *testing.T) {
	var req MessagesRequest
	err := json.Unmarshal([]byte(`{"model":"m","system":"be terse","messages":[
		{"role":"user","content":"hi"}
	],"stream":false}`), &req)
	require.NoError(t, err)

	assert.Equal(t, "be terse", req.System)
	require.Len(t, req.Messages, 1)

	canonical := req.ToCanonical()
	require.Len(t, canonical.Messages, 2)
	assert.Equal(t, models.RoleSystem, canonical.Messages[0].Role)
	assert.Equal(t, "be terse", canonical.Messages[0].Text)
	assert.Equal(t, models.RoleUser, canonical.Messages[1].Role)
}

func TestMessagesRequestSystemBlocks(t *testing.T) {
	var req MessagesRequest
	err := json.Unmarshal([]byte(`{"model":"m","system":[
		{"type":"text","text":"one "},
		{"type":"text","text":"two"}
	],"messages":[{"role":"user","content":"hi"}]}`), &req)
	require.NoError(t, err)
	assert.Equal(t, "one two", req.System)
}

func TestMessagesRequestStreamDefaultsTrue(t *testing.T) {
	var req MessagesRequest
	err := json.Unmarshal([]byte(`{"model":"m","messages":[{"role":"user","content":"hi"}]}`), &req)
	require.NoError(t, err)
	assert.True(t, req.Stream)

	var explicit MessagesRequest
	err = json.Unmarshal([]byte(`{"model":"m","messages":[{"role":"user","content":"hi"}],"stream":false}`), &explicit)
	require.NoError(t, err)
	assert.False(t, explicit.Stream)
}

func TestMessagesRequestAssistantRole(t *testing.T) {
	var req MessagesRequest
	err := json.Unmarshal([]byte(`{"model":"m","messages":[
		{"role":"user","content":"q"},
		{"role":"assistant","content":[{"type":"text","text":"a"}]},
		{"role":"user","content":"q2"}
	]}`), &req)
	require.NoError(t, err)

	canonical := req.ToCanonical()
	require.Len(t, canonical.Messages, 3)
	assert.Equal(t, models.RoleAssistant, canonical.Messages[1].Role)
	assert.Equal(t, "a", canonical.Messages[1].Text)
}

func TestMessagesRequestValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing model", `{"messages":[{"role":"user","content":"hi"}]}`},
		{"empty messages", `{"model":"m","messages":[]}`},
		{"invalid system", `{"model":"m","system":7,"messages":[{"role":"user","content":"hi"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req MessagesRequest
			err := json.Unmarshal([]byte(tc.body), &req)
			require.Error(t, err)
			assert.True(t, IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestNewMessagesResponseShape(t *testing.T) {
	resp := NewMessagesResponse("msg_1", "m", "hi", "stop", models.Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3})

	assert.Equal(t, "message", resp.Type)
	assert.Equal(t, models.RoleAssistant, resp.Role)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "text", resp.Content[0].Type)
	assert.Equal(t, "hi", resp.Content[0].Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 1, resp.Usage.InputTokens)
	assert.Equal(t, 2, resp.Usage.OutputTokens)
}

func TestAnthropicStopReasonMapping(t *testing.T) {
	assert.Equal(t, "end_turn", AnthropicStopReason("stop"))
	assert.Equal(t, "end_turn", AnthropicStopReason(""))
	assert.Equal(t, "max_tokens", AnthropicStopReason("length"))
}

func TestStreamFramePayloads(t *testing.T) {
	start := NewMessageStart("msg_1", "m")
	assert.Equal(t, "message_start", start["type"])

	delta := NewContentBlockDelta("frag")
	inner, ok := delta["delta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "text_delta", inner["type"])
	assert.Equal(t, "frag", inner["text"])

	md := NewMessageDelta("stop", models.Usage{OutputTokens: 4})
	deltaBody, ok := md["delta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "end_turn", deltaBody["stop_reason"])
}
