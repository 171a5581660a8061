package usage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"copilot-bridge/internal/models"
)

func TestEstimateEmptySides(t *testing.T) {
	u := Estimate("", "")
	assert.Zero(t, u.InputTokens)
	assert.Zero(t, u.OutputTokens)
	assert.Zero(t, u.TotalTokens)

	u = Estimate("abcd", "")
	assert.Equal(t, 1, u.InputTokens)
	assert.Zero(t, u.OutputTokens)
}

func TestEstimateTotalIsAdditive(t *testing.T) {
	cases := []struct {
		input  string
		output string
	}{
		{"hello", "world"},
		{"", "a reply"},
		{strings.Repeat("x", 123), strings.Repeat("y", 7)},
	}
	for _, tc := range cases {
		u := Estimate(tc.input, tc.output)
		assert.Equal(t, u.InputTokens+u.OutputTokens, u.TotalTokens)
	}
}

func TestEstimateRoundsUp(t *testing.T) {
	assert.Equal(t, 1, Estimate("a", "").InputTokens)
	assert.Equal(t, 1, Estimate("abcd", "").InputTokens)
	assert.Equal(t, 2, Estimate("abcde", "").InputTokens)
}

func TestEstimateMonotonicInLength(t *testing.T) {
	prev := 0
	for n := 0; n <= 64; n++ {
		u := Estimate(strings.Repeat("a", n), "")
		assert.GreaterOrEqual(t, u.InputTokens, prev)
		prev = u.InputTokens
	}
}

func TestPromptTextConcatenatesInOrder(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleSystem, Text: "be terse. "},
		{Role: models.RoleUser, Text: "hi"},
	}
	assert.Equal(t, "be terse. hi", PromptText(msgs))
}
