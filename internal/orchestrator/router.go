package orchestrator

import (
	"context"
	"sort"
)

// Handler executes one stage against the shared run context. It signals
// failure only through the returned error.
type Handler func(ctx context.Context, rc *RunContext) error

// Registry maps pipeline stages to their handlers. It is built once at
// startup and then only read.
type Registry struct {
	handlers map[Stage]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Stage]Handler),
	}
}

// Bind associates a handler with a stage. Binding the same stage twice keeps
// the last handler.
func (r *Registry) Bind(stage Stage, h Handler) *Registry {
	r.handlers[stage] = h
	return r
}

// Lookup returns the handler bound to stage.
func (r *Registry) Lookup(stage Stage) (Handler, bool) {
	h, ok := r.handlers[stage]
	return h, ok && h != nil
}

// Stages returns the bound stages in canonical order.
func (r *Registry) Stages() []Stage {
	out := make([]Stage, 0, len(r.handlers))
	for s := range r.handlers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
