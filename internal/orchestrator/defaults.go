package orchestrator

import (
	"go.uber.org/zap"

	"github.com/sephirothchang/CXVoyager-sub000/internal/config"
)

// Defaults is the stage selection and option set offered to callers that
// submit a run without choosing.
type Defaults struct {
	Stages     []Stage          `json:"stages"`
	RunOptions ResolvedDefaults `json:"run_options"`
}

// ResolvedDefaults are concrete default switches.
type ResolvedDefaults struct {
	DryRun           bool `json:"dry_run"`
	StrictValidation bool `json:"strict_validation"`
	Debug            bool `json:"debug"`
}

// RunOptions returns d as explicit RunOptions.
func (d ResolvedDefaults) RunOptions() RunOptions {
	return RunOptions{
		DryRun:           Bool(d.DryRun),
		StrictValidation: Bool(d.StrictValidation),
		Debug:            Bool(d.Debug),
	}
}

// DefaultStages reads web.defaults.stages. Unknown names are logged and
// skipped; an empty result falls back to prepare alone.
func DefaultStages(cfg *config.Config, logger *zap.Logger) []Stage {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var out []Stage
	for _, name := range cfg.Web.Defaults.Stages {
		st, err := ParseStage(name)
		if err != nil {
			logger.Warn("ignoring unknown default stage", zap.String("stage", name))
			continue
		}
		out = append(out, st)
	}
	if len(out) == 0 {
		out = []Stage{StagePrepare}
	}
	return out
}

// LoadDefaults resolves web.defaults. Options not set there fall back to
// deploy.dry_run, validation.strict and the logging debug switch.
func LoadDefaults(cfg *config.Config, logger *zap.Logger) Defaults {
	if cfg == nil {
		cfg = config.Default()
	}
	o := cfg.Web.Defaults.RunOptions
	return Defaults{
		Stages: DefaultStages(cfg, logger),
		RunOptions: ResolvedDefaults{
			DryRun:           pickBool(o.DryRun, cfg.DryRunDefault()),
			StrictValidation: pickBool(o.StrictValidation, cfg.Validation.Strict),
			Debug:            pickBool(o.Debug, cfg.DebugDefault()),
		},
	}
}
