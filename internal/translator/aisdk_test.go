package translator

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot-bridge/internal/models"
)

func TestResponsesRequestToCanonical(t *testing.T) {
	var req ResponsesRequest
	err := json.Unmarshal([]byte(`{"model":"m","input":[
		{"role":"system","content":"be terse"},
		{"role":"user","content":[{"type":"input_text","text":"hi"}]}
	]}`), &req)
	require.NoError(t, err)

	canonical := req.ToCanonical()
	require.Len(t, canonical.Messages, 2)
	assert.Equal(t, models.RoleUser, canonical.Messages[0].Role)
	assert.Equal(t, "be terse", canonical.Messages[0].Text)
	assert.Equal(t, "hi", canonical.Messages[1].Text)
	assert.False(t, canonical.Stream)
}

func TestResponsesRequestValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing model", `{"input":[{"role":"user","content":"hi"}]}`},
		{"empty input", `{"model":"m","input":[]}`},
		{"missing role", `{"model":"m","input":[{"content":"hi"}]}`},
		{"missing content", `{"model":"m","input":[{"role":"user"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req ResponsesRequest
			err := json.Unmarshal([]byte(tc.body), &req)
			require.Error(t, err)
			assert.True(t, IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestNewResponseShape(t *testing.T) {
	resp := NewResponse("m", 1700000000, "answer", models.Usage{InputTokens: 2, OutputTokens: 3, TotalTokens: 5})

	assert.Equal(t, "response", resp.Object)
	assert.Equal(t, "completed", resp.Status)
	assert.True(t, strings.HasPrefix(resp.ID, "resp_"))
	assert.Equal(t, resp.Created, resp.CreatedAt)

	require.Len(t, resp.Output, 1)
	out := resp.Output[0]
	assert.True(t, strings.HasPrefix(out.ID, "msg_"))
	assert.Equal(t, "message", out.Type)
	assert.Equal(t, models.RoleAssistant, out.Role)
	assert.Equal(t, "completed", out.Status)

	require.Len(t, out.Content, 1)
	assert.Equal(t, "output_text", out.Content[0].Type)
	assert.Equal(t, "answer", out.Content[0].Text)
	assert.NotNil(t, out.Content[0].Annotations)

	assert.Equal(t, 5, resp.Usage.TotalTokens)
}

func TestNewResponseIDsAreUnique(t *testing.T) {
	a := NewResponse("m", 0, "", models.Usage{})
	b := NewResponse("m", 0, "", models.Usage{})
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.Output[0].ID, b.Output[0].ID)
}
