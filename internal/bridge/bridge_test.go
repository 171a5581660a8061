package bridge

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot-bridge/internal/models"
)

func TestTrimHistoryKeepsMostRecentPairs(t *testing.T) {
	msgs := make([]models.Message, 0, 10)
	for i := 0; i < 10; i++ {
		msgs = append(msgs, models.Message{Role: models.RoleUser, Text: string(rune('a' + i))})
	}

	trimmed := TrimHistory(msgs, 2)
	require.Len(t, trimmed, 4)
	assert.Equal(t, "g", trimmed[0].Text)
	assert.Equal(t, "j", trimmed[3].Text)
}

func TestTrimHistoryShortListUnchanged(t *testing.T) {
	msgs := []models.Message{{Role: models.RoleUser, Text: "hi"}}
	assert.Equal(t, msgs, TrimHistory(msgs, 5))
}

func TestTrimHistoryDisabled(t *testing.T) {
	msgs := make([]models.Message, 50)
	assert.Len(t, TrimHistory(msgs, 0), 50)
	assert.Len(t, TrimHistory(msgs, -1), 50)
}

type sliceStream struct {
	fragments []string
	err       error
	closed    bool
}

func (s *sliceStream) Recv() (string, error) {
	if len(s.fragments) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	head := s.fragments[0]
	s.fragments = s.fragments[1:]
	return head, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

func TestCollectConcatenatesInOrder(t *testing.T) {
	stream := &sliceStream{fragments: []string{"Hel", "lo", "!"}}

	text, err := Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", text)
	assert.True(t, stream.closed)
}

func TestCollectSurfacesStreamError(t *testing.T) {
	broken := errors.New("connection reset")
	stream := &sliceStream{fragments: []string{"par"}, err: broken}

	text, err := Collect(stream)
	assert.ErrorIs(t, err, broken)
	assert.Equal(t, "par", text)
	assert.True(t, stream.closed)
}
