package catalog

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	llmerrors "github.com/llmcore/llmcore/errors"
	"github.com/llmcore/llmcore/observability"
	"github.com/llmcore/llmcore/provider"
	"github.com/llmcore/llmcore/request"
	"github.com/llmcore/llmcore/streaming"
)

type streamingCallback = streaming.Callback

// executeStream hands a 2xx streaming response off to the Streaming
// Coordinator, aggregating the delivered chunks into the request's final
// result. The user callback runs on this task; its pace is the
// backpressure.
func (p executeRequest) executeStream(ctx context.Context, req *request.Request, dep provider.Deployment, resp *http.Response, cb streamingCallback, start time.Time) error {
	entry, _ := p.c.Get(req.Provider)
	name := circuitName(req)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		p.recordFailure(name)
		return entry.Provider.MapError(resp.StatusCode, body)
	}

	if !req.MarkStreaming() {
		resp.Body.Close()
		return llmerrors.PlugException(PlugExecuteRequest, "request not in a streamable state")
	}

	var agg strings.Builder
	var finish *provider.FinishReason
	wrapped := func(chunk *provider.StreamChunk) error {
		if !chunk.Done {
			agg.WriteString(chunk.Content)
		}
		if chunk.FinishReason != nil {
			finish = chunk.FinishReason
		}
		return cb(chunk)
	}

	var deduper streaming.Deduper
	if entry.NewDeduper != nil {
		deduper = entry.NewDeduper()
	}

	coord := streaming.New(
		streaming.NewProviderDecoder(entry.Provider),
		wrapped,
		p.c.Defaults().StreamRecovery,
		p.reissuer(req, dep, entry),
		deduper,
	)

	if err := coord.Run(ctx, resp.Body); err != nil {
		p.recordFailure(name)
		return err
	}
	p.recordSuccess(name)

	f := provider.FinishStop
	if finish != nil {
		f = *finish
	}
	result := &provider.LLMResponse{
		Content:      agg.String(),
		Model:        req.Options.Model,
		Role:         request.RoleAssistant,
		FinishReason: f,
		Metadata:     provider.Metadata{Provider: req.Provider},
	}
	req.Assign(AssignLLMResponse, result)
	req.Assign(AssignLatencyMillis, time.Since(start).Milliseconds())
	req.SetResult(result)

	p.c.Emit(ctx, observability.Event{Kind: observability.EventRequestCompleted,
		RequestID: req.ID, Provider: req.Provider, Model: req.Options.Model,
		LatencyMs: time.Since(start).Milliseconds()})
	return nil
}

// reissuer builds the recovery Reissuer: a continuation request carrying
// the messages already sent plus a "continue from" turn derived from the
// accumulated partial output.
func (p executeRequest) reissuer(req *request.Request, dep provider.Deployment, entry *Entry) streaming.Reissuer {
	return func(ctx context.Context, accumulated string) (io.ReadCloser, error) {
		messages := continueFrom(entry, req.Messages, accumulated)

		continuation, err := request.Create(req.Provider, messages, req.Options)
		if err != nil {
			return nil, err
		}

		httpReq, err := entry.Provider.BuildRequest(ctx, continuation, dep)
		if err != nil {
			return nil, err
		}
		resp, err := p.c.httpClient.Do(httpReq.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, entry.Provider.MapError(resp.StatusCode, body)
		}
		return resp.Body, nil
	}
}

func continueFrom(entry *Entry, base []request.Message, accumulated string) []request.Message {
	if entry.ContinueFrom != nil {
		return entry.ContinueFrom(base, accumulated)
	}
	if accumulated == "" {
		return base
	}
	out := make([]request.Message, 0, len(base)+1)
	out = append(out, base...)
	out = append(out, request.Message{Role: request.RoleAssistant, Content: request.TextContent(accumulated)})
	return out
}
