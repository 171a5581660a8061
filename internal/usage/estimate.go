// Package usage approximates token accounting when the upstream does not
// report it. The heuristic is deliberately cheap: one token per four
// characters, rounded up per side, so totals stay additive.
package usage

import "copilot-bridge/internal/models"

const charsPerToken = 4

// Estimate approximates input/output token counts from the concatenated
// prompt and completion text. Total is input plus output by construction.
func Estimate(input, output string) models.Usage {
	in := estimateTokens(input)
	out := estimateTokens(output)
	return models.Usage{
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
	}
}

// PromptText concatenates the text of every canonical message for input-side
// estimation.
func PromptText(msgs []models.Message) string {
	var n int
	for _, m := range msgs {
		n += len(m.Text)
	}
	b := make([]byte, 0, n)
	for _, m := range msgs {
		b = append(b, m.Text...)
	}
	return string(b)
}

func estimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}
