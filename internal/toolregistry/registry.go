// Package toolregistry implements the Tool Registry & Executor: a map of
// locally-dispatchable functions keyed by name, a wildcard allow/block
// Filter evaluated before dispatch, and an Executor that runs one turn's
// tool calls concurrently under a bounded semaphore, publishing each result
// immediately rather than batching.
package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/agentcore/core/internal/errs"
	"github.com/agentcore/core/internal/functioncontract"
)

// Handler executes one tool call given its raw JSON argument string and
// returns a result string (often itself JSON).
type Handler func(ctx context.Context, argsJSON string) (string, error)

type entry struct {
	contract *functioncontract.FunctionContract
	handler  Handler
}

// Registry holds (functionName → (contract, handler)) pairs.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds or replaces the handler for contract.Name.
func (r *Registry) Register(contract *functioncontract.FunctionContract, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[contract.Name] = entry{contract: contract, handler: handler}
}

// Lookup returns the registered contract and handler for name.
func (r *Registry) Lookup(name string) (*functioncontract.FunctionContract, Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, nil, false
	}
	return e.contract, e.handler, true
}

// Names returns every registered function name, sorted, for use in
// "unknown function" self-correction hints.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// availableFunctionsError builds the JSON payload for an unknown-function
// ToolCallResultMessage, letting the model see what it could have called.
func availableFunctionsError(r *Registry, functionName string) string {
	payload := map[string]any{
		"error":               fmt.Sprintf("unknown function %q", functionName),
		"available_functions": r.Names(),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(raw)
}

// errorResult builds the {"error": ...} result payload shared by every
// taxonomy error the executor converts into a ToolCallResultMessage.
func errorResult(err error) string {
	raw, mErr := json.Marshal(map[string]any{"error": err.Error()})
	if mErr != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(raw)
}

// filterRejectionResult builds the result payload for a FunctionFilter
// rejection.
func filterRejectionResult(rej *errs.FilterRejection) string {
	raw, err := json.Marshal(map[string]any{"error": rej.Error()})
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, rej.Error())
	}
	return string(raw)
}
