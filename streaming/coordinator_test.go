package streaming

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/llmcore/llmcore/errors"
	"github.com/llmcore/llmcore/provider"
)

type fakeDecoder struct{}

func (fakeDecoder) Decode(data []byte) (DecodeOutcome, *provider.StreamChunk, error) {
	if IsDone(data) {
		return DecodeDone, nil, nil
	}
	if len(data) == 0 {
		return DecodeSkip, nil, nil
	}
	return DecodeOK, &provider.StreamChunk{Content: string(data)}, nil
}

func bodyFromFrames(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func TestCoordinator_DeliversChunksInOrderAndSynthesizesTerminal(t *testing.T) {
	var received []string
	var sawTerminal bool

	c := New(fakeDecoder{}, func(chunk *provider.StreamChunk) error {
		if chunk.Done {
			sawTerminal = true
			return nil
		}
		received = append(received, chunk.Content)
		return nil
	}, RecoveryPolicy{}, nil, nil)

	body := bodyFromFrames("data: one\n\ndata: two\n\ndata: [DONE]\n\n")
	err := c.Run(context.Background(), body)

	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, received)
	assert.True(t, sawTerminal)
}

func TestCoordinator_CallbackAbortStopsStream(t *testing.T) {
	calls := 0
	c := New(fakeDecoder{}, func(chunk *provider.StreamChunk) error {
		calls++
		if chunk.Content == "two" {
			return errors.New("client gone")
		}
		return nil
	}, RecoveryPolicy{}, nil, nil)

	body := bodyFromFrames("data: one\n\ndata: two\n\ndata: three\n\n")
	err := c.Run(context.Background(), body)

	require.Error(t, err)
	assert.Equal(t, llmerrors.KindCallbackAborted, llmerrors.AsLLMError(err).Kind)
	assert.Equal(t, 2, calls)
}

func TestCoordinator_RecoveryDisabledSurfacesStreamInterrupted(t *testing.T) {
	c := New(fakeDecoder{}, func(chunk *provider.StreamChunk) error { return nil },
		RecoveryPolicy{Enabled: false}, nil, nil)

	body := &erroringReader{data: []byte("data: one\n\n")}
	err := c.Run(context.Background(), io.NopCloser(body))

	require.Error(t, err)
	assert.Equal(t, llmerrors.KindStreamInterrupted, llmerrors.AsLLMError(err).Kind)
}

func TestCoordinator_RecoverySucceedsOnReissue(t *testing.T) {
	attempts := 0
	reissue := func(ctx context.Context, accumulated string) (io.ReadCloser, error) {
		attempts++
		return bodyFromFrames("data: continued\n\ndata: [DONE]\n\n"), nil
	}

	var received []string
	c := New(fakeDecoder{}, func(chunk *provider.StreamChunk) error {
		if !chunk.Done {
			received = append(received, chunk.Content)
		}
		return nil
	}, RecoveryPolicy{Enabled: true, MaxAttempts: 2, InitialDelay: 1}, reissue, nil)

	body := &erroringReader{}
	err := c.Run(context.Background(), io.NopCloser(body))

	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, []string{"continued"}, received)
}

func TestCoordinator_RecoveryDedupesResentPrefix(t *testing.T) {
	// The continuation resends everything delivered before the drop plus
	// the new tail; only the tail may reach the callback.
	reissue := func(ctx context.Context, accumulated string) (io.ReadCloser, error) {
		return bodyFromFrames("data: hello\n\ndata: [DONE]\n\n"), nil
	}

	var received []string
	c := New(fakeDecoder{}, func(chunk *provider.StreamChunk) error {
		if !chunk.Done {
			received = append(received, chunk.Content)
		}
		return nil
	}, RecoveryPolicy{Enabled: true, MaxAttempts: 2, InitialDelay: 1}, reissue, nil)

	body := &erroringReader{data: []byte("data: hel\n\n")}
	err := c.Run(context.Background(), io.NopCloser(body))

	require.NoError(t, err)
	assert.Equal(t, []string{"hel", "lo"}, received)
}

func TestSuffixDeduper_TrimsOverlap(t *testing.T) {
	d := NewSuffixDeduper()
	assert.Equal(t, "hello", d.Accept("hello"))
	assert.Equal(t, " world", d.Accept("hello world"))
	assert.Equal(t, "", d.Accept("hello"))
}

// erroringReader serves its data once, then fails with a transport-style
// error, to exercise the recovery path.
type erroringReader struct {
	data []byte
	pos  int
}

func (r *erroringReader) Read(p []byte) (int, error) {
	if r.pos < len(r.data) {
		n := copy(p, r.data[r.pos:])
		r.pos += n
		return n, nil
	}
	return 0, errors.New("connection reset")
}
