// Package bridge defines the canonical model protocol every dialect adapter
// normalises into: a resolver that turns a caller-supplied model id into a
// handle, and a handle that answers one chat request either buffered or as an
// ordered stream of text fragments.
package bridge

import (
	"context"
	"errors"
	"io"
	"strings"

	"copilot-bridge/internal/models"
)

// ErrModelNotFound indicates the caller named a model the upstream does not
// expose while the upstream itself is reachable.
var ErrModelNotFound = errors.New("model not found")

// ErrUnavailable indicates the upstream capability itself is unreachable.
var ErrUnavailable = errors.New("upstream capability unavailable")

// Resolver locates the upstream capability for a requested model id.
type Resolver interface {
	// Resolve returns a handle for the requested model. It fails with
	// ErrModelNotFound or ErrUnavailable; the two must stay distinguishable.
	Resolve(ctx context.Context, preferStream bool, modelID string) (Handle, error)
	// Models lists the catalogue of models the upstream exposes.
	Models(ctx context.Context) ([]models.Model, error)
}

// Handle answers canonical chat requests for one resolved model.
type Handle interface {
	ID() string
	Complete(ctx context.Context, req models.ChatRequest) (*models.ChatResult, error)
	Stream(ctx context.Context, req models.ChatRequest) (Stream, error)
}

// Stream is a lazy, finite, non-restartable sequence of text fragments.
// Recv returns io.EOF after the final fragment. Close releases the underlying
// connection and must be called on every exit path.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// TrimHistory bounds context size by keeping only the most recent 2×window
// messages, preserving order. A window of zero or less disables truncation.
func TrimHistory(msgs []models.Message, window int) []models.Message {
	if window <= 0 {
		return msgs
	}
	keep := 2 * window
	if len(msgs) <= keep {
		return msgs
	}
	return msgs[len(msgs)-keep:]
}

// Collect drains a stream into the concatenated text, closing it afterwards.
// Concatenating fragments in arrival order must reconstruct the buffered text.
func Collect(s Stream) (string, error) {
	defer s.Close()

	var b strings.Builder
	for {
		fragment, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return b.String(), nil
			}
			return b.String(), err
		}
		b.WriteString(fragment)
	}
}
