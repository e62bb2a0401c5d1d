package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Executor runs a selection of stages against one RunContext. Stages run
// strictly one after another in the order given; there is no retry and no
// dependency checking between stages.
type Executor struct {
	registry *Registry
	logger   *zap.Logger
}

// NewExecutor creates an Executor over registry.
func NewExecutor(registry *Registry, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: registry, logger: logger}
}

// RunStages executes selected in order.
//
// Before each stage the abort signal is checked and, when set, the run stops
// with ErrAbortRequested without invoking that stage. A stage without a
// registered handler is logged and skipped. Handler and callback errors are
// returned unchanged. When the signal is set while a handler runs, the run
// stops after that handler even if it succeeded. A handler panic is recovered
// and returned as that stage's error. A stage is appended to
// rc.CompletedStages only after its handler returned nil.
func (e *Executor) RunStages(ctx context.Context, selected []Stage, rc *RunContext, cb ProgressCallback, abort *AbortSignal) error {
	if len(selected) == 0 {
		return ErrNoStages
	}
	if abort != nil {
		rc.SetAbortSignal(abort)
	}
	abort = rc.AbortSignal()

	for _, stage := range selected {
		handler, ok := e.registry.Lookup(stage)
		if !ok {
			e.logger.Warn("no handler registered for stage, skipping", zap.Stringer("stage", stage))
			continue
		}
		if abort.Triggered() {
			e.logger.Warn("abort signal set, not starting stage", zap.Stringer("stage", stage))
			return abortError(stage, "")
		}

		e.logger.Info("stage started", zap.Stringer("stage", stage))
		if cb != nil {
			if err := cb(EventStart, stage, rc); err != nil {
				return err
			}
		}

		if err := e.runHandler(ctx, stage, handler, rc); err != nil {
			return err
		}

		if abort.Triggered() {
			e.logger.Warn("abort signal set during stage", zap.Stringer("stage", stage))
			return abortError(stage, "")
		}

		rc.CompletedStages = append(rc.CompletedStages, stage)
		if cb != nil {
			if err := cb(EventComplete, stage, rc); err != nil {
				return err
			}
		}
		e.logger.Info("stage finished", zap.Stringer("stage", stage))
	}
	return nil
}

func (e *Executor) runHandler(ctx context.Context, stage Stage, h Handler, rc *RunContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("stage handler panicked", zap.Stringer("stage", stage), zap.Any("panic", r))
			err = fmt.Errorf("stage %s panicked: %v", stage, r)
		}
	}()
	return h(ctx, rc)
}
