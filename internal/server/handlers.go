package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"copilot-bridge/internal/bridge"
	"copilot-bridge/internal/models"
	"copilot-bridge/internal/sse"
	"copilot-bridge/internal/translator"
	"copilot-bridge/internal/usage"
)

const defaultFinishReason = "stop"

// prepare applies the history window and resolves the model. The window is
// applied before the canonical request crosses the protocol boundary so the
// upstream never sees more than 2×history_window messages.
func (s *Server) prepare(c echo.Context, canonical *models.ChatRequest) (bridge.Handle, error) {
	canonical.Messages = bridge.TrimHistory(canonical.Messages, s.cfg.HistoryWindow)
	return s.resolver.Resolve(c.Request().Context(), canonical.Stream, canonical.Model)
}

// usageFor prefers upstream-reported usage and falls back to the estimator.
func usageFor(result *models.ChatResult, canonical models.ChatRequest) models.Usage {
	if result.Usage != nil {
		return *result.Usage
	}
	return usage.Estimate(usage.PromptText(canonical.Messages), result.Text)
}

func finishReasonOr(reason string) string {
	if reason == "" {
		return defaultFinishReason
	}
	return reason
}

// --- generic chat dialect ---

func (s *Server) handleChatCompletions(c echo.Context) error {
	var req translator.ChatCompletionRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	canonical := req.ToCanonical()
	handle, err := s.prepare(c, &canonical)
	if err != nil {
		return err
	}

	if canonical.Stream {
		return s.streamChatCompletions(c, handle, canonical)
	}

	result, err := handle.Complete(c.Request().Context(), canonical)
	if err != nil {
		return err
	}
	result.Text = s.sanitizer.Sanitize(result.Text)

	resp := translator.NewChatCompletion(
		"chatcmpl-"+uuid.NewString(),
		handle.ID(),
		time.Now().Unix(),
		result.Text,
		finishReasonOr(result.FinishReason),
		usageFor(result, canonical),
	)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) streamChatCompletions(c echo.Context, handle bridge.Handle, canonical models.ChatRequest) error {
	stream, err := handle.Stream(c.Request().Context(), canonical)
	if err != nil {
		return err
	}
	defer stream.Close()

	w, err := sse.NewWriter(c.Response())
	if err != nil {
		return err
	}

	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()
	model := handle.ID()

	if err := w.Data(translator.NewChunkRole(id, model, created)); err != nil {
		return nil
	}

	for {
		fragment, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// Frames already left; the connection just ends.
				slog.Warn("stream interrupted", "model", model, "err", err)
				return nil
			}
			break
		}
		if err := w.Data(translator.NewChunkText(id, model, created, fragment)); err != nil {
			return nil
		}
	}

	if err := w.Data(translator.NewChunkFinish(id, model, created, defaultFinishReason)); err != nil {
		return nil
	}
	_ = w.Done()
	return nil
}

// --- Anthropic Messages dialect ---

func (s *Server) handleMessages(c echo.Context) error {
	var req translator.MessagesRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	canonical := req.ToCanonical()
	handle, err := s.prepare(c, &canonical)
	if err != nil {
		return err
	}

	if canonical.Stream {
		return s.streamMessages(c, handle, canonical)
	}

	result, err := handle.Complete(c.Request().Context(), canonical)
	if err != nil {
		return err
	}
	result.Text = s.sanitizer.Sanitize(result.Text)

	resp := translator.NewMessagesResponse(
		"msg_"+uuid.NewString(),
		handle.ID(),
		result.Text,
		finishReasonOr(result.FinishReason),
		usageFor(result, canonical),
	)
	return c.JSON(http.StatusOK, resp)
}

// streamMessages emits the dialect's fixed event sequence: message_start,
// content_block_start, one content_block_delta per received fragment,
// content_block_stop, message_delta, message_stop.
func (s *Server) streamMessages(c echo.Context, handle bridge.Handle, canonical models.ChatRequest) error {
	stream, err := handle.Stream(c.Request().Context(), canonical)
	if err != nil {
		return err
	}
	defer stream.Close()

	w, err := sse.NewWriter(c.Response())
	if err != nil {
		return err
	}

	id := "msg_" + uuid.NewString()
	model := handle.ID()

	if err := w.Event("message_start", translator.NewMessageStart(id, model)); err != nil {
		return nil
	}
	if err := w.Event("content_block_start", translator.NewContentBlockStart()); err != nil {
		return nil
	}

	var text strings.Builder
	for {
		fragment, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// Terminal frames below are best effort after a broken
				// upstream; the connection closes either way.
				slog.Warn("stream interrupted", "model", model, "err", err)
			}
			break
		}
		text.WriteString(fragment)
		if err := w.Event("content_block_delta", translator.NewContentBlockDelta(fragment)); err != nil {
			return nil
		}
	}

	u := usage.Estimate(usage.PromptText(canonical.Messages), text.String())
	if err := w.Event("content_block_stop", translator.NewContentBlockStop()); err != nil {
		return nil
	}
	if err := w.Event("message_delta", translator.NewMessageDelta(defaultFinishReason, u)); err != nil {
		return nil
	}
	_ = w.Event("message_stop", translator.NewMessageStop())
	return nil
}

// --- Gemini generateContent dialect ---

func (s *Server) handleGenerateContent(c echo.Context) error {
	model, streaming, ok := translator.ParseModelAction(c.Param("action"))
	if !ok {
		return echo.ErrNotFound
	}

	var req translator.GenerateContentRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	// Two-step normalisation: Gemini shape into the generic chat shape, then
	// into the canonical request. Conversion runs in process; there is no
	// HTTP hop back into the generic adapter.
	chat, err := req.ToChat(model)
	if err != nil {
		return err
	}
	chat.Stream = streaming

	canonical := chat.ToCanonical()
	handle, err := s.prepare(c, &canonical)
	if err != nil {
		return err
	}

	if streaming {
		return s.streamGenerateContent(c, handle, canonical)
	}

	result, err := handle.Complete(c.Request().Context(), canonical)
	if err != nil {
		return err
	}
	result.Text = s.sanitizer.Sanitize(result.Text)

	resp := translator.NewGenerateContent(
		result.Text,
		finishReasonOr(result.FinishReason),
		usageFor(result, canonical),
	)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) streamGenerateContent(c echo.Context, handle bridge.Handle, canonical models.ChatRequest) error {
	stream, err := handle.Stream(c.Request().Context(), canonical)
	if err != nil {
		return err
	}
	defer stream.Close()

	w, err := sse.NewWriter(c.Response())
	if err != nil {
		return err
	}

	var text strings.Builder
	for {
		fragment, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("stream interrupted", "model", handle.ID(), "err", err)
				return nil
			}
			break
		}
		text.WriteString(fragment)
		if err := w.Data(translator.NewGenerateContentDelta(fragment, "", nil)); err != nil {
			return nil
		}
	}

	u := usage.Estimate(usage.PromptText(canonical.Messages), text.String())
	_ = w.Data(translator.NewGenerateContentDelta("", defaultFinishReason, &u))
	return nil
}

// --- AI-SDK responses dialect ---

func (s *Server) handleResponses(c echo.Context) error {
	var req translator.ResponsesRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}

	canonical := req.ToCanonical()
	handle, err := s.prepare(c, &canonical)
	if err != nil {
		return err
	}

	result, err := handle.Complete(c.Request().Context(), canonical)
	if err != nil {
		return err
	}
	result.Text = s.sanitizer.Sanitize(result.Text)

	resp := translator.NewResponse(
		handle.ID(),
		time.Now().Unix(),
		result.Text,
		usageFor(result, canonical),
	)
	return c.JSON(http.StatusOK, resp)
}
