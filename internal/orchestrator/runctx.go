package orchestrator

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sephirothchang/CXVoyager-sub000/internal/config"
	"github.com/sephirothchang/CXVoyager-sub000/internal/plan"
)

// RunContext is the mutable state threaded through every stage of one run.
// A RunContext belongs to exactly one run and is never shared between runs.
type RunContext struct {
	// Plan is set by the prepare stage or supplied by the caller.
	Plan *plan.Plan

	// WorkDir is the base directory for plan lookup and run output.
	WorkDir string

	Config  *config.Config
	Options EffectiveRunOptions

	// Artifacts is the typed board for inter-stage data.
	Artifacts *Artifacts

	// CompletedStages is appended once per successfully completed stage, in
	// execution order.
	CompletedStages []Stage

	logger *zap.Logger
	abort  *AbortSignal

	mu       sync.Mutex
	progress []ProgressMessage
	sink     func(ProgressMessage)
}

// NewRunContext creates a context for one run.
func NewRunContext(cfg *config.Config, workDir string, logger *zap.Logger) *RunContext {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunContext{
		WorkDir:   workDir,
		Config:    cfg,
		Artifacts: NewArtifacts(),
		logger:    logger,
	}
}

// Logger returns the base logger of the run.
func (rc *RunContext) Logger() *zap.Logger { return rc.logger }

// AbortSignal returns the signal attached to the run, or nil.
func (rc *RunContext) AbortSignal() *AbortSignal { return rc.abort }

// SetAbortSignal attaches the signal consulted by CheckAbort. An already
// attached signal is kept.
func (rc *RunContext) SetAbortSignal(sig *AbortSignal) {
	if rc.abort == nil {
		rc.abort = sig
	}
}

// CheckAbort returns an error wrapping ErrAbortRequested when an abort has
// been requested for this run. Long-running handlers call it between steps.
func (rc *RunContext) CheckAbort(stage Stage, hint string) error {
	if !rc.abort.Triggered() {
		return nil
	}
	rc.logger.Warn("abort requested, stopping stage",
		zap.Stringer("stage", stage), zap.String("hint", hint))
	return abortError(stage, hint)
}

// SetProgressSink registers fn to receive every progress message recorded
// after the call.
func (rc *RunContext) SetProgressSink(fn func(ProgressMessage)) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.sink = fn
}

// Progress returns a copy of the progress feed.
func (rc *RunContext) Progress() []ProgressMessage {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]ProgressMessage, len(rc.progress))
	copy(out, rc.progress)
	return out
}

// StageLogger returns a progress logger for stage backed by the run logger.
func (rc *RunContext) StageLogger(stage Stage) *StageLogger {
	return NewStageLogger(rc, stage, rc.logger, "["+stage.String()+"]")
}

func (rc *RunContext) appendProgress(msg ProgressMessage) {
	rc.mu.Lock()
	rc.progress = append(rc.progress, msg)
	sink := rc.sink
	rc.mu.Unlock()

	if sink != nil {
		deliver(sink, msg)
	}
}

// deliver calls the sink and swallows its panics; a broken sink must not
// break the run.
func deliver(sink func(ProgressMessage), msg ProgressMessage) {
	defer func() { _ = recover() }()
	sink(msg)
}
