package agentloop

import (
	"context"

	"github.com/agentcore/core/internal/message"
)

// applyFork truncates history at parentRunID's end-of-run boundary and
// republishes a corrected RunCompleted for that run with wasForked set and
// forkedToRunId pointing at the new run. The loop only reaches here between
// runs, never mid-turn.
func (l *Loop) applyFork(parentRunID, newRunID string) {
	l.mu.Lock()
	cut := -1
	for i, m := range l.history {
		if m.Identity().RunID == parentRunID {
			cut = i
		}
	}
	if cut >= 0 {
		// Keep everything through the parent run's last message; every
		// later run's messages are rewound away.
		l.history = append([]message.Message(nil), l.history[:cut+1]...)
	}
	prior, ok := l.completions[parentRunID]
	if ok && !prior.WasForked {
		prior.WasForked = true
		prior.ForkedToRunID = newRunID
		l.completions[parentRunID] = prior
	}
	l.mu.Unlock()

	if ok && prior.WasForked && prior.ForkedToRunID == newRunID {
		l.publish(context.Background(), prior)
	}
}
