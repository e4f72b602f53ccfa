package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/llmcore/llmcore/errors"
)

func newReq(t *testing.T) *Request {
	t.Helper()
	req, err := Create("openai", []Message{
		{Role: RoleUser, Content: TextContent("hi")},
	}, Options{})
	require.NoError(t, err)
	return req
}

func TestCreate_Validation(t *testing.T) {
	temp := func(v float64) *float64 { return &v }

	tests := []struct {
		name     string
		messages []Message
		opts     Options
		wantErr  bool
	}{
		{name: "empty messages", messages: nil, wantErr: true},
		{
			name:     "unknown role",
			messages: []Message{{Role: "narrator", Content: TextContent("hi")}},
			wantErr:  true,
		},
		{
			name:     "empty parts sequence",
			messages: []Message{{Role: RoleUser, Content: Content{Parts: []Part{}}}},
			wantErr:  true,
		},
		{
			name:     "unknown part type",
			messages: []Message{{Role: RoleUser, Content: PartsContent(Part{Type: "hologram"})}},
			wantErr:  true,
		},
		{
			name:     "temperature out of range",
			messages: []Message{{Role: RoleUser, Content: TextContent("hi")}},
			opts:     Options{Temperature: temp(2.5)},
			wantErr:  true,
		},
		{
			name:     "valid text",
			messages: []Message{{Role: RoleUser, Content: TextContent("hi")}},
		},
		{
			name: "valid parts",
			messages: []Message{{Role: RoleUser, Content: PartsContent(
				Part{Type: PartText, Text: "look:"},
				Part{Type: PartImage, ImageURL: "https://example.com/cat.png"},
			)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Create("openai", tt.messages, tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				var le *llmerrors.LLMError
				require.ErrorAs(t, err, &le)
				assert.Equal(t, llmerrors.KindInvalidMessages, le.Kind)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestState_LegalEdgesOnly(t *testing.T) {
	req := newReq(t)
	assert.Equal(t, StatePending, req.State())

	// pending cannot jump straight to streaming.
	assert.False(t, req.MarkStreaming())

	req.Advance()
	assert.Equal(t, StateExecuting, req.State())

	assert.True(t, req.MarkStreaming())
	assert.Equal(t, StateStreaming, req.State())

	assert.True(t, req.Complete("done"))
	assert.Equal(t, StateCompleted, req.State())

	// Terminal states admit no further transitions.
	assert.False(t, req.MarkStreaming())
	assert.False(t, req.Fail(llmerrors.KindAPIError, "late"))
	assert.Equal(t, StateCompleted, req.State())
}

func TestComplete_RefusedWithErrorsRecorded(t *testing.T) {
	req := newReq(t)
	req.Advance()
	req.PutError(llmerrors.KindAPIError, "boom")

	assert.False(t, req.Complete("nope"), "errors is empty iff state != error")
	assert.True(t, req.Fail(llmerrors.KindAPIError, ""))
	assert.Equal(t, StateError, req.State())
}

func TestPutError_AppendsAndFirstWins(t *testing.T) {
	req := newReq(t)
	req.PutError(llmerrors.KindRateLimited, "first")
	req.PutError(llmerrors.KindAPIError, "second")

	require.Len(t, req.Errors(), 2)
	first := req.FirstError()
	require.NotNil(t, first)
	assert.Equal(t, llmerrors.KindRateLimited, first.Kind)
}

func TestHalt_Idempotent(t *testing.T) {
	req := newReq(t)
	req.Halt()
	req.Halt()
	assert.True(t, req.Halted())
}

func TestHaltWithResult_ThenCompleteOrHalted(t *testing.T) {
	req := newReq(t)
	req.Advance()
	req.HaltWithResult("cached")
	req.CompleteOrHalted()

	assert.Equal(t, StateCompleted, req.State())
	assert.Equal(t, "cached", req.Result())
}

func TestCompleteOrHalted_NoResultSurfacesHalted(t *testing.T) {
	req := newReq(t)
	req.Advance()
	req.Halt()
	req.CompleteOrHalted()

	assert.Equal(t, StateHalted, req.State())
	first := req.FirstError()
	require.NotNil(t, first)
	assert.Equal(t, llmerrors.KindHalted, first.Kind)
}

func TestIDs_UniqueWithinProcess(t *testing.T) {
	a := newReq(t)
	b := newReq(t)
	assert.NotEqual(t, a.ID, b.ID)
}
