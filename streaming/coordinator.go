package streaming

import (
	"context"
	"io"
	"time"

	llmerrors "github.com/llmcore/llmcore/errors"
	"github.com/llmcore/llmcore/provider"
)

// DecodeOutcome is the tag of a Decoder.Decode result: ok with a chunk,
// skip (no chunk, keep consuming), done (end of stream), or error.
type DecodeOutcome int

const (
	DecodeOK DecodeOutcome = iota
	DecodeSkip
	DecodeDone
	DecodeError
)

// Decoder adapts a provider's ParseStreamChunk into the frame-data
// decoder contract.
type Decoder interface {
	Decode(frameData []byte) (DecodeOutcome, *provider.StreamChunk, error)
}

// providerDecoder wraps a provider.Provider's ParseStreamChunk as a
// Decoder.
type providerDecoder struct {
	p provider.Provider
}

// NewProviderDecoder builds a Decoder from a catalog entry's Provider.
func NewProviderDecoder(p provider.Provider) Decoder { return providerDecoder{p: p} }

func (d providerDecoder) Decode(frameData []byte) (DecodeOutcome, *provider.StreamChunk, error) {
	if IsDone(frameData) {
		return DecodeDone, nil, nil
	}
	chunk, err := d.p.ParseStreamChunk(frameData)
	if err != nil {
		return DecodeError, nil, err
	}
	if chunk == nil {
		return DecodeSkip, nil, nil
	}
	return DecodeOK, chunk, nil
}

// Callback receives one decoded chunk. A slow callback blocks the
// coordinator's consumption loop — that IS the backpressure mechanism. A
// non-nil return aborts the stream with KindCallbackAborted.
type Callback func(chunk *provider.StreamChunk) error

// Deduper suppresses duplicate tokens across a recovered continuation
// request by tracking cumulative emitted text length. The dedup point is pluggable per provider (Open Question #1).
type Deduper interface {
	// Accept returns the suffix of content that is new given everything
	// emitted so far, and records it as emitted.
	Accept(content string) string
}

// SuffixDeduper is the default Deduper: it tracks cumulative emitted text
// length and trims any overlapping prefix a continuation resends.
type SuffixDeduper struct {
	emitted string
}

func NewSuffixDeduper() *SuffixDeduper { return &SuffixDeduper{} }

func (d *SuffixDeduper) Accept(content string) string {
	if len(content) <= len(d.emitted) {
		// Entirely a repeat (or shorter than what we've already seen);
		// nothing new.
		if content == d.emitted[:min(len(content), len(d.emitted))] {
			return ""
		}
		d.emitted += content
		return content
	}
	if content[:len(d.emitted)] == d.emitted {
		fresh := content[len(d.emitted):]
		d.emitted = content
		return fresh
	}
	// No overlap detected; treat as entirely new content.
	d.emitted += content
	return content
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// RecoveryPolicy configures mid-stream reconnect behavior.
type RecoveryPolicy struct {
	Enabled       bool
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// Reissuer re-issues an HTTP call for a continuation request built from
// accumulated content; the caller that builds the Reissuer (the catalog,
// from the provider's entry) supplies the "continue from" message.
type Reissuer func(ctx context.Context, accumulated string) (io.ReadCloser, error)

// Coordinator owns one streaming session end to end.
type Coordinator struct {
	decoder  Decoder
	callback Callback
	recovery RecoveryPolicy
	reissue  Reissuer
	deduper  Deduper

	// lastFinish remembers the most recent finish reason a chunk carried,
	// so a synthesized terminal chunk doesn't lose it.
	lastFinish *provider.FinishReason
}

// New builds a Coordinator. recovery and reissue may be zero-valued /nil
// to disable recovery, per "if recovery is disabled... surface
// stream_interrupted".
func New(decoder Decoder, callback Callback, recovery RecoveryPolicy, reissue Reissuer, deduper Deduper) *Coordinator {
	if deduper == nil {
		deduper = NewSuffixDeduper()
	}
	return &Coordinator{decoder: decoder, callback: callback, recovery: recovery, reissue: reissue, deduper: deduper}
}

// Run consumes body frame-by-frame, decoding and forwarding chunks to the
// callback until a terminal chunk or an unrecoverable error. It always
// emits exactly one terminal chunk (synthesized if the provider didn't
// supply one) before returning nil, Termination.
func (c *Coordinator) Run(ctx context.Context, body io.ReadCloser) error {
	accumulated, terminalSent, err := c.drain(ctx, body, false)
	body.Close()

	if err == nil {
		if !terminalSent {
			return c.emitTerminal(c.lastFinish)
		}
		return nil
	}

	le := llmerrors.AsLLMError(err)
	if le.Kind == llmerrors.KindCallbackAborted || le.Kind == llmerrors.KindParseFailed {
		return err
	}

	// Transport-level failure mid-stream: attempt recovery.
	if !c.recovery.Enabled || c.reissue == nil {
		return llmerrors.New(llmerrors.KindStreamInterrupted, "stream interrupted and recovery disabled")
	}
	return c.recover(ctx, accumulated)
}

// drain reads frames until EOF or error, forwarding decoded chunks to the
// callback and returning the cumulative text content seen so far (for use
// as recovery's "continue from" material) plus whether a done==true chunk
// was already delivered to the callback. With dedup set (recovered
// continuations), each chunk's content is filtered through the Deduper so
// a provider that resends a prefix of prior output doesn't deliver
// duplicate tokens.
func (c *Coordinator) drain(ctx context.Context, body io.ReadCloser, dedup bool) (accumulated string, terminalSent bool, err error) {
	scanner := NewScanner(body)
	defer scanner.Close()

	for {
		select {
		case <-ctx.Done():
			return accumulated, terminalSent, ctx.Err()
		default:
		}

		frame, err := scanner.Next()
		if err == io.EOF {
			return accumulated, terminalSent, nil
		}
		if err != nil {
			return accumulated, terminalSent, err
		}

		outcome, chunk, decErr := c.decoder.Decode(frame.Data)
		switch outcome {
		case DecodeSkip:
			continue
		case DecodeDone:
			return accumulated, terminalSent, nil
		case DecodeError:
			return accumulated, terminalSent, llmerrors.Wrap(llmerrors.KindParseFailed, "stream decode failed", decErr)
		}

		if dedup && chunk.Content != "" {
			fresh := c.deduper.Accept(chunk.Content)
			if fresh == "" && !chunk.Done && chunk.FinishReason == nil && chunk.ToolCallDelta == nil {
				continue
			}
			chunk.Content = fresh
		}

		if chunk.FinishReason != nil {
			c.lastFinish = chunk.FinishReason
		}

		accumulated += chunk.Content
		if err := c.callback(chunk); err != nil {
			return accumulated, terminalSent, llmerrors.Wrap(llmerrors.KindCallbackAborted, "callback aborted stream", err)
		}
		if chunk.Done {
			return accumulated, true, nil
		}
	}
}

func (c *Coordinator) recover(ctx context.Context, accumulated string) error {
	delay := c.recovery.InitialDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	factor := c.recovery.BackoffFactor
	if factor <= 0 {
		factor = 2.0
	}

	// Seed the deduper with everything delivered so far, so a continuation
	// that resends a prefix of prior output gets trimmed in drain.
	c.deduper.Accept(accumulated)

	for attempt := 0; attempt < c.recovery.MaxAttempts; attempt++ {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return llmerrors.New(llmerrors.KindStreamInterrupted, "context cancelled during recovery backoff")
		}

		body, err := c.reissue(ctx, accumulated)
		if err == nil {
			more, terminalSent, runErr := c.drain(ctx, body, true)
			body.Close()
			accumulated += more
			if runErr == nil {
				if !terminalSent {
					return c.emitTerminal(c.lastFinish)
				}
				return nil
			}
			le := llmerrors.AsLLMError(runErr)
			if le.Kind == llmerrors.KindCallbackAborted || le.Kind == llmerrors.KindParseFailed {
				return runErr
			}
		}

		delay = time.Duration(float64(delay) * factor)
	}

	return llmerrors.New(llmerrors.KindStreamInterrupted, "recovery exhausted retry attempts")
}

// emitTerminal sends the required final done=true chunk.
func (c *Coordinator) emitTerminal(finish *provider.FinishReason) error {
	f := provider.FinishStop
	if finish != nil {
		f = *finish
	}
	return c.callback(&provider.StreamChunk{Done: true, FinishReason: &f})
}
