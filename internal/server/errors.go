package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"copilot-bridge/internal/bridge"
	"copilot-bridge/internal/translator"
)

// Dialects select the error envelope a route answers with.
const (
	dialectOpenAI    = "openai"
	dialectAnthropic = "anthropic"
	dialectGemini    = "gemini"
	dialectAISDK     = "aisdk"

	dialectContextKey = "dialect"
)

// Error taxonomy type tags and machine codes.
const (
	typeInvalidRequest     = "invalid_request_error"
	typeServerError        = "server_error"
	typeCopilotUnavailable = "copilot_unavailable"

	codeUnauthorized         = "unauthorized"
	codeModelNotFound        = "model_not_found"
	codeModelUnavailable     = "copilot_model_unavailable"
	codeMissingLanguageModel = "missing_language_model_api"
	codeGeminiConversion     = "gemini_conversion_error"
	codeRateLimited          = "rate_limit_exceeded"

	messageTooManyRequests     = "too many concurrent requests"
	messageInternalServer      = "internal server error"
	messageUnauthorized        = "missing or invalid authentication token"
	messageUpstreamUnreachable = "language model capability is unavailable"
)

// requestError carries an internal failure through to the dialect-aware
// error handler.
type requestError struct {
	Status  int
	Message string
	Type    string
	Code    string
}

func (e requestError) Error() string {
	return e.Message
}

// mapError folds any failure raised on the request path into the taxonomy.
// Validation failures become 400s, the two model-resolution failure modes
// stay distinguishable (404 vs 503), and everything else is a 500.
func mapError(err error) requestError {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	switch {
	case translator.IsValidation(err):
		return requestError{
			Status:  http.StatusBadRequest,
			Message: err.Error(),
			Type:    typeInvalidRequest,
		}
	case errors.Is(err, bridge.ErrModelNotFound):
		return requestError{
			Status:  http.StatusNotFound,
			Message: err.Error(),
			Type:    typeInvalidRequest,
			Code:    codeModelNotFound,
		}
	case errors.Is(err, bridge.ErrUnavailable):
		return requestError{
			Status:  http.StatusServiceUnavailable,
			Message: messageUpstreamUnreachable,
			Type:    typeCopilotUnavailable,
			Code:    codeModelUnavailable,
		}
	case errors.Is(err, translator.ErrGeminiConversion):
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: err.Error(),
			Type:    typeServerError,
			Code:    codeGeminiConversion,
		}
	default:
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: messageInternalServer,
			Type:    typeServerError,
		}
	}
}

// errorHandler is the single recovery boundary: every failure that escapes a
// handler (including recovered panics and echo's own routing errors) is
// encoded as the owning dialect's error envelope. Nothing leaves as a bare
// status.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		// Streaming already started; the connection simply closes.
		return
	}

	reqErr := mapError(err)

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		reqErr = requestError{
			Status:  httpErr.Code,
			Message: http.StatusText(httpErr.Code),
			Type:    typeInvalidRequest,
		}
		if httpErr.Code >= 500 {
			reqErr.Type = typeServerError
		}
	}

	if s.verbose {
		slog.Debug("request failed",
			"path", c.Request().URL.Path,
			"status", reqErr.Status,
			"type", reqErr.Type,
			"code", reqErr.Code,
			"err", err,
		)
	}

	dialect, _ := c.Get(dialectContextKey).(string)
	_ = writeErrorEnvelope(c, dialect, reqErr)
}

func writeErrorEnvelope(c echo.Context, dialect string, reqErr requestError) error {
	switch dialect {
	case dialectAnthropic:
		return c.JSON(reqErr.Status, map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    anthropicErrorType(reqErr.Status),
				"message": reqErr.Message,
			},
		})
	case dialectGemini:
		return c.JSON(reqErr.Status, map[string]any{
			"error": map[string]any{
				"code":    reqErr.Status,
				"message": reqErr.Message,
				"status":  geminiErrorStatus(reqErr.Status),
			},
		})
	default:
		// Generic chat, AI-SDK and unrecognized paths share the neutral
		// envelope.
		body := map[string]any{
			"message": reqErr.Message,
			"type":    reqErr.Type,
		}
		if reqErr.Code != "" {
			body["code"] = reqErr.Code
		}
		return c.JSON(reqErr.Status, map[string]any{"error": body})
	}
}

func anthropicErrorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case http.StatusServiceUnavailable:
		return "overloaded_error"
	default:
		return "api_error"
	}
}

func geminiErrorStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_ARGUMENT"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusTooManyRequests:
		return "RESOURCE_EXHAUSTED"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
