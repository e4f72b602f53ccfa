package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmerrors "github.com/llmcore/llmcore/errors"
	"github.com/llmcore/llmcore/plug"
	"github.com/llmcore/llmcore/request"
)

func newTestRequest(t *testing.T) *request.Request {
	t.Helper()
	req, err := request.Create("openai", []request.Message{
		{Role: request.RoleUser, Content: request.TextContent("hi")},
	}, request.Options{Model: "gpt-test"})
	require.NoError(t, err)
	return req
}

func completingPlug(name string) plug.Plug {
	return plug.New(name, func(_ context.Context, req *request.Request, _ any) (*request.Request, error) {
		req.Complete("ok")
		return req, nil
	})
}

func noopPlug(name string) plug.Plug {
	return plug.New(name, func(_ context.Context, req *request.Request, _ any) (*request.Request, error) {
		return req, nil
	})
}

func TestRunner_RunsStagesInOrder(t *testing.T) {
	var order []string
	track := func(name string) plug.Plug {
		return plug.New(name, func(_ context.Context, req *request.Request, _ any) (*request.Request, error) {
			order = append(order, name)
			return req, nil
		})
	}

	stages := []plug.Spec{
		{Plug: track("a")},
		{Plug: track("b")},
		{Plug: plug.New("c", func(ctx context.Context, req *request.Request, opts any) (*request.Request, error) {
			order = append(order, "c")
			return completingPlug("c").Call(ctx, req, opts)
		})},
	}

	req := newTestRequest(t)
	r := NewRunner(nil)
	r.Run(context.Background(), req, stages)

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, request.StateCompleted, req.State())
}

func TestRunner_StopsOnError(t *testing.T) {
	ran := false
	stages := []plug.Spec{
		{Plug: plug.New("fails", func(_ context.Context, req *request.Request, _ any) (*request.Request, error) {
			return req, llmerrors.New(llmerrors.KindAPIError, "boom")
		})},
		{Plug: plug.New("after", func(_ context.Context, req *request.Request, _ any) (*request.Request, error) {
			ran = true
			return req, nil
		})},
	}

	req := newTestRequest(t)
	r := NewRunner(nil)
	r.Run(context.Background(), req, stages)

	assert.False(t, ran)
	assert.Equal(t, request.StateError, req.State())
	require.NotNil(t, req.FirstError())
	assert.Equal(t, llmerrors.KindAPIError, req.FirstError().Kind)
}

func TestRunner_HaltSkipsRemainingStages(t *testing.T) {
	ran := false
	stages := []plug.Spec{
		{Plug: plug.New("halts", func(_ context.Context, req *request.Request, _ any) (*request.Request, error) {
			req.Halt()
			return req, nil
		})},
		{Plug: plug.New("after", func(_ context.Context, req *request.Request, _ any) (*request.Request, error) {
			ran = true
			return req, nil
		})},
	}

	req := newTestRequest(t)
	r := NewRunner(nil)
	r.Run(context.Background(), req, stages)

	assert.False(t, ran)
	assert.Equal(t, request.StateHalted, req.State())
}

func TestRunner_HaltWithResultCompletes(t *testing.T) {
	stages := []plug.Spec{
		{Plug: plug.New("sets-result-and-halts", func(_ context.Context, req *request.Request, _ any) (*request.Request, error) {
			req.HaltWithResult("cached")
			return req, nil
		})},
	}

	req := newTestRequest(t)
	r := NewRunner(nil)
	r.Run(context.Background(), req, stages)

	assert.Equal(t, request.StateCompleted, req.State())
	assert.Equal(t, "cached", req.Result())
}

func TestRunner_DeferredCompletionRunsPostResultStages(t *testing.T) {
	tracked := false
	stages := []plug.Spec{
		{Plug: plug.New("parses", func(_ context.Context, req *request.Request, _ any) (*request.Request, error) {
			req.SetResult("parsed")
			return req, nil
		})},
		{Plug: plug.New("tracks-cost", func(_ context.Context, req *request.Request, _ any) (*request.Request, error) {
			tracked = true
			return req, nil
		})},
	}

	req := newTestRequest(t)
	r := NewRunner(nil)
	r.Run(context.Background(), req, stages)

	assert.True(t, tracked)
	assert.Equal(t, request.StateCompleted, req.State())
	assert.Equal(t, "parsed", req.Result())
}

func TestRunner_RecoversPanicAsPlugException(t *testing.T) {
	stages := []plug.Spec{
		{Plug: plug.New("panics", func(_ context.Context, req *request.Request, _ any) (*request.Request, error) {
			panic("kaboom")
		})},
	}

	req := newTestRequest(t)
	r := NewRunner(nil)
	r.Run(context.Background(), req, stages)

	assert.Equal(t, request.StateError, req.State())
	require.NotNil(t, req.FirstError())
	assert.Equal(t, llmerrors.KindPlugException, req.FirstError().Kind)
	assert.Equal(t, "panics", req.FirstError().Plug)
}
