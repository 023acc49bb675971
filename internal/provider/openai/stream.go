// Package openai adapts OpenAI's chat completions streaming API to the
// provider.Streamer contract, normalizing chat.completion.chunk deltas into
// the message.Message tagged union. It mirrors internal/provider/anthropic's
// shape: a background goroutine drains the SDK's ssestream.Stream and feeds
// a buffered channel Recv drains, with tool-call state accumulated per
// content index rather than per persistent id (OpenAI's wire format carries
// no stable tool-call id until the first delta names one).
package openai

import (
	"context"
	"io"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/agentcore/core/internal/jsonfrag"
	"github.com/agentcore/core/internal/message"
	"github.com/agentcore/core/internal/provider"
)

// streamer drives one OpenAI chat-completions streaming call.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[openai.ChatCompletionChunk]

	out chan message.Message

	errMu sync.Mutex
	err   error
}

// New adapts an already-started OpenAI chat-completions SSE stream into a
// provider.Streamer.
func New(ctx context.Context, pctx provider.Context, stream *ssestream.Stream[openai.ChatCompletionChunk]) provider.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{
		ctx:    cctx,
		cancel: cancel,
		stream: stream,
		out:    make(chan message.Message, 32),
	}
	go s.run(pctx)
	return s
}

func (s *streamer) Recv() (message.Message, error) {
	select {
	case m, ok := <-s.out:
		if ok {
			return m, nil
		}
		if err := s.getErr(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	case <-s.ctx.Done():
		s.setErr(s.ctx.Err())
		return nil, s.ctx.Err()
	}
}

func (s *streamer) Close() error {
	s.cancel()
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func (s *streamer) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamer) getErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamer) emit(m message.Message) error {
	select {
	case s.out <- m:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *streamer) run(pctx provider.Context) {
	defer close(s.out)
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()

	proc := newChunkProcessor(pctx, s.emit)
	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		default:
		}
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil {
				s.setErr(err)
			} else if err := s.ctx.Err(); err != nil {
				s.setErr(err)
			}
			return
		}
		if err := proc.handle(s.stream.Current()); err != nil {
			s.setErr(err)
			return
		}
	}
}

// toolCallBuffer accumulates one index-keyed tool-call's streaming state.
// OpenAI's wire format has no per-block id until the first delta names one,
// analogous to the Anthropic adapter's toolBlock but keyed purely by index.
// The adapter emits updates only; the downstream update joiner synthesizes
// the finalized ToolCallMessage, so emitting a terminal here would duplicate
// the call.
type toolCallBuffer struct {
	id   string
	name string
	frag *jsonfrag.Parser
}

type chunkProcessor struct {
	pctx provider.Context
	emit func(message.Message) error

	toolCalls map[int64]*toolCallBuffer
}

func newChunkProcessor(pctx provider.Context, emit func(message.Message) error) *chunkProcessor {
	return &chunkProcessor{pctx: pctx, emit: emit, toolCalls: make(map[int64]*toolCallBuffer)}
}

func (p *chunkProcessor) baseIdent() message.Ident {
	return message.Ident{ThreadID: p.pctx.ThreadID, RunID: p.pctx.RunID, GenerationID: p.pctx.GenerationID}
}

func (p *chunkProcessor) handle(chunk openai.ChatCompletionChunk) error {
	if len(chunk.Choices) == 0 {
		return p.handleUsageOnly(chunk)
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		if err := p.emit(message.TextUpdateMessage{Ident: p.baseIdent(), Text: choice.Delta.Content}); err != nil {
			return err
		}
	}

	for _, tc := range choice.Delta.ToolCalls {
		if err := p.handleToolCallDelta(tc); err != nil {
			return err
		}
	}

	if choice.FinishReason != "" {
		return p.finish(choice.FinishReason)
	}
	return nil
}

func (p *chunkProcessor) handleToolCallDelta(tc openai.ChatCompletionChunkChoiceDeltaToolCall) error {
	buf := p.toolCalls[tc.Index]
	if buf == nil {
		buf = &toolCallBuffer{frag: jsonfrag.New()}
		p.toolCalls[tc.Index] = buf
	}
	if tc.ID != "" {
		buf.id = tc.ID
	}
	if tc.Function.Name != "" {
		buf.name = tc.Function.Name
	}
	// Every delta is forwarded, including the id/name-only first chunk, so
	// tools with empty arguments still reach the joiner.
	var updates []jsonfrag.Update
	if tc.Function.Arguments != "" {
		updates = buf.frag.AddFragment(tc.Function.Arguments)
	}
	return p.emit(message.ToolCallUpdateMessage{
		Ident:               p.baseIdent(),
		ToolCallID:          buf.id,
		FunctionName:        buf.name,
		FunctionArgs:        tc.Function.Arguments,
		ExecutionTarget:     message.ExecutionLocalFunction,
		Index:               int(tc.Index),
		JSONFragmentUpdates: updates,
	})
}

// finish releases per-call accumulator state at a terminal finish reason
// ("tool_calls", "stop", "length"). Nothing is emitted: the content already
// streamed as updates and the downstream joiner synthesizes the finalized
// messages; usage arrives separately via the trailing usage-only chunk.
func (p *chunkProcessor) finish(finishReason string) error {
	if finishReason == "tool_calls" {
		p.toolCalls = make(map[int64]*toolCallBuffer)
	}
	return nil
}

// handleUsageOnly processes the trailing usage-only chunk produced when
// stream_options.include_usage is set: it carries no choices, only Usage.
func (p *chunkProcessor) handleUsageOnly(chunk openai.ChatCompletionChunk) error {
	if chunk.Usage.TotalTokens == 0 {
		return nil
	}
	reasoning := int(chunk.Usage.CompletionTokensDetails.ReasoningTokens)
	cached := int(chunk.Usage.PromptTokensDetails.CachedTokens)
	return p.emit(message.UsageMessage{
		Ident:            p.baseIdent(),
		PromptTokens:     int(chunk.Usage.PromptTokens),
		CompletionTokens: int(chunk.Usage.CompletionTokens),
		TotalTokens:      int(chunk.Usage.TotalTokens),
		ReasoningTokens:  &reasoning,
		CachedTokens:     &cached,
	})
}
