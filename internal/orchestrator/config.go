package orchestrator

import (
	"strings"

	"github.com/sephirothchang/CXVoyager-sub000/internal/config"
)

// RunOptions are the caller supplied switches of a run. A nil field means
// "use the configured default", never "false".
type RunOptions struct {
	DryRun           *bool `json:"dry_run"`
	StrictValidation *bool `json:"strict_validation"`
	Debug            *bool `json:"debug"`
}

// EffectiveRunOptions are RunOptions after configuration defaults have been
// applied.
type EffectiveRunOptions struct {
	DryRun           bool   `json:"dry_run"`
	StrictValidation bool   `json:"strict_validation"`
	Debug            bool   `json:"debug"`
	LogLevel         string `json:"log_level"`
}

// Bool returns a pointer to v, for filling RunOptions literals.
func Bool(v bool) *bool { return &v }

// ResolveOptions merges opts over the defaults in cfg.
func ResolveOptions(cfg *config.Config, opts RunOptions) EffectiveRunOptions {
	if cfg == nil {
		cfg = config.Default()
	}
	level := strings.ToUpper(cfg.Logging.Level)
	if level == "" {
		level = "INFO"
	}

	eff := EffectiveRunOptions{
		DryRun:           pickBool(opts.DryRun, cfg.DryRunDefault()),
		StrictValidation: pickBool(opts.StrictValidation, cfg.Validation.Strict),
		Debug:            pickBool(opts.Debug, cfg.DebugDefault()),
		LogLevel:         level,
	}
	if eff.Debug {
		eff.LogLevel = "DEBUG"
	}
	return eff
}

func pickBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
