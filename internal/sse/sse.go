// Package sse handles both sides of the newline-delimited "data:" wire
// framing: reading the upstream token stream into plain text fragments and
// writing dialect-shaped frames back to the caller.
package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const doneSentinel = "[DONE]"

// maxLineBytes bounds a single upstream event line.
const maxLineBytes = 1 << 20

// Reader consumes an upstream byte stream framed as "data: <json>" lines and
// yields the incremental text delta carried by each event. Non-data lines and
// unparsable payloads are skipped rather than failing the stream; a literal
// [DONE] sentinel terminates it.
type Reader struct {
	scanner *bufio.Scanner
	body    io.Closer
	done    bool
}

// NewReader wraps an upstream response body.
func NewReader(body io.ReadCloser) *Reader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{scanner: scanner, body: body}
}

type deltaEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Recv returns the next non-empty text fragment, or io.EOF once the stream is
// exhausted or the sentinel has been seen.
func (r *Reader) Recv() (string, error) {
	if r.done {
		return "", io.EOF
	}

	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == doneSentinel {
			r.done = true
			return "", io.EOF
		}

		var event deltaEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			// Partial or malformed line; drop it and keep the stream alive.
			continue
		}
		if len(event.Choices) == 0 {
			continue
		}
		if text := event.Choices[0].Delta.Content; text != "" {
			return text, nil
		}
	}

	r.done = true
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Close releases the underlying body. Safe to call more than once.
func (r *Reader) Close() error {
	r.done = true
	return r.body.Close()
}

// Writer emits server-sent events to an HTTP response, flushing per frame so
// fragments reach the client in arrival order.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter prepares the response for streaming and returns a frame writer.
// It fails when the underlying writer cannot flush incrementally.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	return &Writer{w: w, flusher: flusher}, nil
}

// Event writes a named "event:"/"data:" frame.
func (w *Writer) Event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("write SSE event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// Data writes a data-only frame.
func (w *Writer) Data(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write SSE data: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// Done writes the terminating [DONE] sentinel frame.
func (w *Writer) Done() error {
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", doneSentinel); err != nil {
		return fmt.Errorf("write SSE sentinel: %w", err)
	}
	w.flusher.Flush()
	return nil
}
