// Package anthropic adapts Anthropic's Messages streaming API to the
// provider.Streamer contract, normalizing content-block events into the
// message.Message tagged union.
package anthropic

import (
	"context"
	"fmt"
	"io"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/agentcore/core/internal/jsonfrag"
	"github.com/agentcore/core/internal/message"
	"github.com/agentcore/core/internal/provider"
)

// streamer drives one Anthropic Messages streaming call.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]

	out chan message.Message

	errMu sync.Mutex
	err   error
}

// New adapts an already-started Anthropic SSE stream into a provider.Streamer.
// pctx carries the thread/run/generation identifiers stamped onto every
// emitted message.
func New(ctx context.Context, pctx provider.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion]) provider.Streamer {
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

// toolBlock accumulates one content-block-index's tool_use streaming state:
// the block's identity plus a fragment parser feeding jsonFragmentUpdates.
// The adapter emits updates only; the downstream update joiner synthesizes
// the finalized ToolCallMessage from them, so emitting a terminal here would
// duplicate the call.
type toolBlock struct {
	id    string
	name  string
	frag  *jsonfrag.Parser
	index int
}

// chunkProcessor converts a sequence of sdk.MessageStreamEventUnion values
// into message.Message values, mirroring the block-index-keyed accumulator
// shape used for every streaming provider adapter in this module.
type chunkProcessor struct {
	pctx provider.Context
	emit func(message.Message) error

	toolBlocks    map[int]*toolBlock
	nextToolIndex int
}

func newChunkProcessor(pctx provider.Context, emit func(message.Message) error) *chunkProcessor {
	return &chunkProcessor{
		pctx:       pctx,
		emit:       emit,
		toolBlocks: make(map[int]*toolBlock),
	}
}

func (p *chunkProcessor) handle(event sdk.MessageStreamEventUnion) error {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		p.toolBlocks = make(map[int]*toolBlock)
		p.nextToolIndex = 0
		return nil

	case sdk.ContentBlockStartEvent:
		idx := int(ev.Index)
		if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
			if toolUse.ID == "" {
				return fmt.Errorf("anthropic stream: tool_use block missing id")
			}
			if toolUse.Name == "" {
				return fmt.Errorf("anthropic stream: tool_use block %q missing name", toolUse.ID)
			}
			tb := &toolBlock{id: toolUse.ID, name: toolUse.Name, frag: jsonfrag.New(), index: p.nextToolIndex}
			p.nextToolIndex++
			p.toolBlocks[idx] = tb
			// Announce the call immediately so tools with empty input (no
			// input_json_delta ever arrives) still reach the joiner.
			return p.emit(message.ToolCallUpdateMessage{
				Ident:           p.baseIdent(),
				ToolCallID:      tb.id,
				FunctionName:    tb.name,
				ExecutionTarget: message.ExecutionLocalFunction,
				Index:           tb.index,
			})
		}
		return nil

	case sdk.ContentBlockDeltaEvent:
		return p.handleDelta(int(ev.Index), ev.Delta.AsAny())

	case sdk.ContentBlockStopEvent:
		return p.handleBlockStop(int(ev.Index))

	case sdk.MessageDeltaEvent:
		cached := int(ev.Usage.CacheReadInputTokens)
		usage := message.UsageMessage{
			Ident:            p.baseIdent(),
			PromptTokens:     int(ev.Usage.InputTokens),
			CompletionTokens: int(ev.Usage.OutputTokens),
			TotalTokens:      int(ev.Usage.InputTokens + ev.Usage.OutputTokens),
			CachedTokens:     &cached,
		}
		return p.emit(usage)

	case sdk.MessageStopEvent:
		return nil
	}
	return nil
}

func (p *chunkProcessor) baseIdent() message.Ident {
	return message.Ident{ThreadID: p.pctx.ThreadID, RunID: p.pctx.RunID, GenerationID: p.pctx.GenerationID}
}

func (p *chunkProcessor) handleDelta(idx int, delta any) error {
	switch d := delta.(type) {
	case sdk.TextDelta:
		if d.Text == "" {
			return nil
		}
		return p.emit(message.TextUpdateMessage{Ident: p.baseIdent(), Text: d.Text})

	case sdk.ThinkingDelta:
		if d.Thinking == "" {
			return nil
		}
		return p.emit(message.ReasoningUpdateMessage{Ident: p.baseIdent(), Reasoning: d.Thinking, Visibility: message.VisibilityPlain})

	case sdk.SignatureDelta:
		// Thinking-block signatures have no home in the normalized stream.
		return nil

	case sdk.InputJSONDelta:
		if d.PartialJSON == "" {
			return nil
		}
		tb := p.toolBlocks[idx]
		if tb == nil {
			return fmt.Errorf("anthropic stream: input_json_delta for unknown block %d", idx)
		}
		updates := tb.frag.AddFragment(d.PartialJSON)
		return p.emit(message.ToolCallUpdateMessage{
			Ident:               p.baseIdent(),
			ToolCallID:          tb.id,
			FunctionName:        tb.name,
			FunctionArgs:        d.PartialJSON,
			ExecutionTarget:     message.ExecutionLocalFunction,
			Index:               tb.index,
			JSONFragmentUpdates: updates,
		})

	default:
		return nil
	}
}

// handleBlockStop finalizes a block's accumulator state. Nothing is emitted:
// the update joiner downstream synthesizes the full TextMessage,
// ReasoningMessage, or ToolCallMessage from the block's update stream.
func (p *chunkProcessor) handleBlockStop(idx int) error {
	delete(p.toolBlocks, idx)
	return nil
}
