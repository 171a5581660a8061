package translator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot-bridge/internal/models"
)

func TestChatRequestSingleUserMessage(t *testing.T) {
	var req ChatCompletionRequest
	err := json.Unmarshal([]byte(`{"model":"m","messages":[{"role":"user","content":"hello"}]}`), &req)
	require.NoError(t, err)

	canonical := req.ToCanonical()
	require.Len(t, canonical.Messages, 1)
	assert.Equal(t, models.RoleUser, canonical.Messages[0].Role)
	assert.Equal(t, "hello", canonical.Messages[0].Text)
	assert.Equal(t, "m", canonical.Model)
	assert.False(t, canonical.Stream)
}

func TestChatRequestSystemFoldsIntoUser(t *testing.T) {
	var req ChatCompletionRequest
	err := json.Unmarshal([]byte(`{"model":"m","messages":[
		{"role":"system","content":"be terse"},
		{"role":"user","content":"hi"}
	]}`), &req)
	require.NoError(t, err)

	canonical := req.ToCanonical()
	require.Len(t, canonical.Messages, 2)
	assert.Equal(t, models.RoleUser, canonical.Messages[0].Role)
	assert.Equal(t, "be terse", canonical.Messages[0].Text)
}

func TestChatRequestRoleMapping(t *testing.T) {
	cases := []struct {
		role string
		want string
	}{
		{"user", models.RoleUser},
		{"assistant", models.RoleAssistant},
		{"model", models.RoleAssistant},
		{"tool", models.RoleUser},
		{"narrator", models.RoleUser},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, canonicalRole(tc.role), "role %q", tc.role)
	}
}

func TestChatRequestContentParts(t *testing.T) {
	var req ChatCompletionRequest
	err := json.Unmarshal([]byte(`{"model":"m","messages":[{"role":"user","content":[
		{"type":"text","text":"part one "},
		{"type":"image_url","image_url":{"url":"ignored"}},
		{"type":"text","text":"part two"}
	]}]}`), &req)
	require.NoError(t, err)
	assert.Equal(t, "part one part two", req.Messages[0].Content)
}

func TestChatRequestValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing model", `{"messages":[{"role":"user","content":"hi"}]}`},
		{"empty messages", `{"model":"m","messages":[]}`},
		{"missing role", `{"model":"m","messages":[{"content":"hi"}]}`},
		{"missing content", `{"model":"m","messages":[{"role":"user"}]}`},
		{"numeric content", `{"model":"m","messages":[{"role":"user","content":7}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req ChatCompletionRequest
			err := json.Unmarshal([]byte(tc.body), &req)
			require.Error(t, err)
			assert.True(t, IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestNewChatCompletionShape(t *testing.T) {
	resp := NewChatCompletion("chatcmpl-1", "m", 1700000000, "hi there", "stop", models.Usage{
		InputTokens:  2,
		OutputTokens: 3,
		TotalTokens:  5,
	})

	assert.Equal(t, "chat.completion", resp.Object)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, models.RoleAssistant, resp.Choices[0].Message.Role)
	assert.Equal(t, "hi there", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestChunkSequence(t *testing.T) {
	role := NewChunkRole("id", "m", 1)
	require.Len(t, role.Choices, 1)
	assert.Equal(t, models.RoleAssistant, role.Choices[0].Delta.Role)
	assert.Nil(t, role.Choices[0].FinishReason)

	text := NewChunkText("id", "m", 1, "frag")
	assert.Equal(t, "frag", text.Choices[0].Delta.Content)
	assert.Equal(t, "chat.completion.chunk", text.Object)

	finish := NewChunkFinish("id", "m", 1, "stop")
	require.NotNil(t, finish.Choices[0].FinishReason)
	assert.Equal(t, "stop", *finish.Choices[0].FinishReason)
}
