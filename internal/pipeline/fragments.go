package pipeline

import (
	"github.com/agentcore/core/internal/jsonfrag"
	"github.com/agentcore/core/internal/message"
)

// fragmentAttacher implements the JsonFragmentUpdate middleware: for each
// ToolCallUpdateMessage, the delta carried in FunctionArgs (a delta chunk,
// not the accumulated buffer) is fed through a
// per-toolCallId jsonfrag.Parser instance, and the resulting structural
// updates are attached as JSONFragmentUpdates. A jsonfrag.Parser instance is
// restartable only across instances, never within one, so exactly one
// parser is kept alive per ToolCallID for the lifetime of that call.
type fragmentAttacher struct {
	parsers map[string]*jsonfrag.Parser
}

func newFragmentAttacher() *fragmentAttacher {
	return &fragmentAttacher{parsers: make(map[string]*jsonfrag.Parser)}
}

func (f *fragmentAttacher) attach(u message.ToolCallUpdateMessage) message.ToolCallUpdateMessage {
	if u.ToolCallID == "" || u.FunctionArgs == "" {
		return u
	}
	p, ok := f.parsers[u.ToolCallID]
	if !ok {
		p = jsonfrag.New()
		f.parsers[u.ToolCallID] = p
	}
	updates := p.AddFragment(u.FunctionArgs)
	if p.Err() != nil && len(updates) == 0 {
		// Ill-formed JSON is tolerated: the raw FunctionArgs string still
		// flows through, just without structural fragment updates.
		return u
	}
	u.JSONFragmentUpdates = append(u.JSONFragmentUpdates, updates...)
	return u
}
