package streaming

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, body string) []*Frame {
	t.Helper()
	sc := NewScanner(strings.NewReader(body))
	defer sc.Close()

	var frames []*Frame
	for {
		f, err := sc.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
	return frames
}

func TestScanner_SingleDataLineFrame(t *testing.T) {
	frames := scanAll(t, "data: {\"a\":1}\n\n")
	require.Len(t, frames, 1)
	assert.Equal(t, `{"a":1}`, string(frames[0].Data))
}

func TestScanner_MultiLineDataConcatenatedWithNewline(t *testing.T) {
	frames := scanAll(t, "data: line1\ndata: line2\n\n")
	require.Len(t, frames, 1)
	assert.Equal(t, "line1\nline2", string(frames[0].Data))
}

func TestScanner_CommentLinesSkipped(t *testing.T) {
	frames := scanAll(t, ": keep-alive\ndata: hello\n\n")
	require.Len(t, frames, 1)
	assert.Equal(t, "hello", string(frames[0].Data))
}

func TestScanner_EventRetainedAsHint(t *testing.T) {
	frames := scanAll(t, "event: message\ndata: payload\n\n")
	require.Len(t, frames, 1)
	assert.Equal(t, "message", frames[0].Event)
	assert.Equal(t, "payload", string(frames[0].Data))
}

func TestScanner_DonePayload(t *testing.T) {
	frames := scanAll(t, "data: [DONE]\n\n")
	require.Len(t, frames, 1)
	assert.True(t, IsDone(frames[0].Data))
}

func TestScanner_MultipleFramesInOrder(t *testing.T) {
	frames := scanAll(t, "data: one\n\ndata: two\n\ndata: three\n\n")
	require.Len(t, frames, 3)
	assert.Equal(t, []string{"one", "two", "three"},
		[]string{string(frames[0].Data), string(frames[1].Data), string(frames[2].Data)})
}

func TestScanner_FlushesTrailingFrameWithoutBlankLine(t *testing.T) {
	frames := scanAll(t, "data: trailing")
	require.Len(t, frames, 1)
	assert.Equal(t, "trailing", string(frames[0].Data))
}
