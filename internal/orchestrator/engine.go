package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sephirothchang/CXVoyager-sub000/internal/config"
	"github.com/sephirothchang/CXVoyager-sub000/internal/plan"
)

// Engine is the shared entry point used by the CLI, the web API and the task
// manager to execute a deployment run.
type Engine struct {
	cfg      *config.Config
	executor *Executor
	logger   *zap.Logger
}

// NewEngine creates an Engine. cfg may be nil for defaults.
func NewEngine(cfg *config.Config, registry *Registry, logger *zap.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		executor: NewExecutor(registry, logger),
		logger:   logger,
	}
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// ResolveOptions applies the engine configuration defaults to opts.
func (e *Engine) ResolveOptions(opts RunOptions) EffectiveRunOptions {
	eff := ResolveOptions(e.cfg, opts)
	e.logger.Debug("resolved run options",
		zap.Bool("dry_run", eff.DryRun),
		zap.Bool("strict_validation", eff.StrictValidation),
		zap.Bool("debug", eff.Debug),
		zap.String("log_level", eff.LogLevel))
	return eff
}

// RunRequest describes one run.
type RunRequest struct {
	Stages   []Stage
	Options  RunOptions
	Callback ProgressCallback
	Abort    *AbortSignal

	// Sink receives every progress message of the run.
	Sink func(ProgressMessage)

	// Plan pre-supplies a parsed plan; prepare then skips parsing.
	Plan *plan.Plan

	// WorkDir overrides deploy.work_dir.
	WorkDir string
}

// RunSummary is the structured result of a run, built from the precheck
// artifact.
type RunSummary struct {
	Strict       bool            `json:"strict"`
	Dependencies map[string]bool `json:"dependencies,omitempty"`
	Network      []ProbeResult   `json:"network,omitempty"`
	Report       plan.Report     `json:"report"`
	ArchivePath  string          `json:"archive_path,omitempty"`
}

// RunResult is the outcome of a successful run.
type RunResult struct {
	CompletedStages []Stage             `json:"completed_stages"`
	Options         EffectiveRunOptions `json:"options"`
	StartedAt       time.Time           `json:"started_at"`
	FinishedAt      time.Time           `json:"finished_at"`
	Summary         RunSummary          `json:"summary"`
}

// Prepared returns the options and context Run would use for req. Callers
// that need the effective options before the first stage (the task manager
// records them at start) use it together with Execute.
func (e *Engine) Prepared(req RunRequest) (*RunContext, EffectiveRunOptions) {
	eff := e.ResolveOptions(req.Options)

	workDir := req.WorkDir
	if workDir == "" {
		workDir = e.cfg.Deploy.WorkDir
	}
	rc := NewRunContext(e.cfg, workDir, e.logger)
	rc.Options = eff
	rc.Plan = req.Plan
	if req.Sink != nil {
		rc.SetProgressSink(req.Sink)
	}
	PutArtifact(rc.Artifacts, KeyRunOptions, eff)
	selected := make([]Stage, len(req.Stages))
	copy(selected, req.Stages)
	PutArtifact(rc.Artifacts, KeySelectedStages, selected)
	return rc, eff
}

// Run resolves options, runs the selected stages on a fresh RunContext and
// summarizes the outcome. On error the partial RunContext is discarded; the
// caller observes partial progress through its callback and sink.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	rc, _ := e.Prepared(req)
	return e.Execute(ctx, rc, req)
}

// Execute runs req against an already prepared RunContext.
func (e *Engine) Execute(ctx context.Context, rc *RunContext, req RunRequest) (*RunResult, error) {
	e.logger.Info("executing stages",
		zap.Strings("stages", StageNames(req.Stages)),
		zap.Bool("dry_run", rc.Options.DryRun))

	started := time.Now().UTC()
	if err := e.executor.RunStages(ctx, req.Stages, rc, req.Callback, req.Abort); err != nil {
		return nil, err
	}
	finished := time.Now().UTC()

	completed := make([]Stage, len(rc.CompletedStages))
	copy(completed, rc.CompletedStages)
	return &RunResult{
		CompletedStages: completed,
		Options:         rc.Options,
		StartedAt:       started,
		FinishedAt:      finished,
		Summary:         buildSummary(rc),
	}, nil
}

func buildSummary(rc *RunContext) RunSummary {
	var s RunSummary
	if pre, ok := GetArtifact(rc.Artifacts, KeyPrecheck); ok {
		s.Strict = pre.Strict
		s.Dependencies = pre.Dependencies
		s.Network = pre.Network
		s.Report = pre.Report
	} else {
		s.Strict = rc.Options.StrictValidation
	}
	if s.Report.Warnings == nil {
		s.Report.Warnings = []string{}
	}
	if s.Report.Errors == nil {
		s.Report.Errors = []string{}
	}
	if p, ok := GetArtifact(rc.Artifacts, KeyArchivePath); ok {
		s.ArchivePath = p
	}
	return s
}
