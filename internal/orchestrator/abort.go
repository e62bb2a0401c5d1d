package orchestrator

import (
	"errors"
	"fmt"
	"sync"
)

// ErrAbortRequested is the control-flow error used to unwind a run after an
// abort was requested. It is never reported to end users as a failure.
var ErrAbortRequested = errors.New("deployment aborted by request")

// ErrNoStages is returned when a run is requested without any stage.
var ErrNoStages = errors.New("no stages selected")

// AbortSignal is a cooperative cancellation flag shared between the task
// manager and a running pipeline. Triggering it does not interrupt a handler;
// the handler observes it at its next checkpoint.
type AbortSignal struct {
	once sync.Once
	ch   chan struct{}
}

// NewAbortSignal returns an untriggered signal.
func NewAbortSignal() *AbortSignal {
	return &AbortSignal{ch: make(chan struct{})}
}

// Trigger sets the signal. Calling it more than once is a no-op.
func (a *AbortSignal) Trigger() {
	a.once.Do(func() { close(a.ch) })
}

// Triggered reports whether Trigger has been called. A nil signal is never
// triggered.
func (a *AbortSignal) Triggered() bool {
	if a == nil {
		return false
	}
	select {
	case <-a.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the signal is triggered.
func (a *AbortSignal) Done() <-chan struct{} {
	if a == nil {
		return nil
	}
	return a.ch
}

func abortError(stage Stage, hint string) error {
	switch {
	case hint != "":
		return fmt.Errorf("%w: stage %s: %s", ErrAbortRequested, stage, hint)
	case stage != 0:
		return fmt.Errorf("%w: stage %s", ErrAbortRequested, stage)
	default:
		return ErrAbortRequested
	}
}
