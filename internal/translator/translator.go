// Package translator owns the pure half of each dialect adapter: structural
// validation of inbound payloads, normalisation into the canonical chat
// request, and re-encoding of canonical results into dialect response shapes.
package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"copilot-bridge/internal/models"
)

var (
	errEmptyModel     = errors.New("model must be provided")
	errEmptyMessages  = errors.New("at least one message is required")
	errInvalidRole    = errors.New("invalid role")
	errInvalidContent = errors.New("invalid message content")
)

// IsValidation reports whether err is a structural-validation failure raised
// while decoding a dialect request.
func IsValidation(err error) bool {
	return errors.Is(err, errEmptyModel) ||
		errors.Is(err, errEmptyMessages) ||
		errors.Is(err, errInvalidRole) ||
		errors.Is(err, errInvalidContent)
}

// canonicalRole maps a dialect role onto the closed canonical set. Assistant
// output roles (including Gemini's "model") map to assistant; everything
// else, system and unrecognised roles included, defaults to user. Dialects
// with a dedicated system channel bypass this by synthesising the system
// message themselves.
func canonicalRole(role string) string {
	switch role {
	case "assistant", "model":
		return models.RoleAssistant
	default:
		return models.RoleUser
	}
}

// textualPartTypes are the content-part tags whose text is concatenated.
// Parts of any other type are dropped silently.
var textualPartTypes = map[string]struct{}{
	"text":        {},
	"input_text":  {},
	"output_text": {},
}

// extractText accepts either a single string payload or a list of typed
// content parts, concatenating textual parts in list order.
func extractText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("%w: missing content", errInvalidContent)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		var b strings.Builder
		for _, part := range parts {
			if _, ok := textualPartTypes[part.Type]; !ok {
				continue
			}
			b.WriteString(part.Text)
		}
		return b.String(), nil
	}

	return "", fmt.Errorf("%w: unsupported content structure", errInvalidContent)
}
