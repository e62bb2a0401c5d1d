package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sephirothchang/CXVoyager-sub000/internal/config"
	"github.com/sephirothchang/CXVoyager-sub000/internal/plan"
)

func TestResolveOptions_Defaults(t *testing.T) {
	eff := ResolveOptions(config.Default(), RunOptions{})
	assert.True(t, eff.DryRun)
	assert.False(t, eff.StrictValidation)
	assert.False(t, eff.Debug)
	assert.Equal(t, "INFO", eff.LogLevel)
}

func TestResolveOptions_ExplicitWins(t *testing.T) {
	cfg := config.Default()
	cfg.Validation.Strict = true

	eff := ResolveOptions(cfg, RunOptions{DryRun: Bool(false), StrictValidation: Bool(false)})
	assert.False(t, eff.DryRun)
	assert.False(t, eff.StrictValidation)
}

func TestResolveOptions_DebugFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "debug"
	eff := ResolveOptions(cfg, RunOptions{})
	assert.True(t, eff.Debug)
	assert.Equal(t, "DEBUG", eff.LogLevel)

	cfg = config.Default()
	cfg.Logging.Level = "warning"
	eff = ResolveOptions(cfg, RunOptions{Debug: Bool(true)})
	assert.True(t, eff.Debug)
	assert.Equal(t, "DEBUG", eff.LogLevel)

	eff = ResolveOptions(cfg, RunOptions{})
	assert.Equal(t, "WARNING", eff.LogLevel)
}

func TestEngine_RunBuildsResult(t *testing.T) {
	reg := NewRegistry().
		Bind(StagePrepare, func(_ context.Context, rc *RunContext) error {
			PutArtifact(rc.Artifacts, KeyPrecheck, PrecheckReport{
				Strict:       true,
				Dependencies: map[string]bool{"yaml": true},
				Report:       plan.Report{OK: true, Warnings: []string{"w1"}},
			})
			rc.StageLogger(StagePrepare).Info("prepared")
			return nil
		}).
		Bind(StageCleanup, func(_ context.Context, rc *RunContext) error {
			sel, ok := GetArtifact(rc.Artifacts, KeySelectedStages)
			if !ok || len(sel) != 2 {
				return errors.New("selected stages not seeded")
			}
			opts, ok := GetArtifact(rc.Artifacts, KeyRunOptions)
			if !ok || opts.DryRun {
				return errors.New("run options not seeded")
			}
			return nil
		})

	var sunk []ProgressMessage
	e := NewEngine(nil, reg, nil)
	res, err := e.Run(context.Background(), RunRequest{
		Stages:  []Stage{StagePrepare, StageCleanup},
		Options: RunOptions{DryRun: Bool(false)},
		Sink:    func(m ProgressMessage) { sunk = append(sunk, m) },
	})
	require.NoError(t, err)

	assert.Equal(t, []Stage{StagePrepare, StageCleanup}, res.CompletedStages)
	assert.False(t, res.Options.DryRun)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
	assert.True(t, res.Summary.Strict)
	assert.True(t, res.Summary.Report.OK)
	assert.Equal(t, []string{"w1"}, res.Summary.Report.Warnings)
	assert.NotNil(t, res.Summary.Report.Errors)
	require.Len(t, sunk, 1)
	assert.Equal(t, "prepared", sunk[0].Message)
}

func TestEngine_RunWithoutPrecheck(t *testing.T) {
	reg := NewRegistry().Bind(StageInitCluster, func(context.Context, *RunContext) error { return nil })
	e := NewEngine(nil, reg, nil)

	res, err := e.Run(context.Background(), RunRequest{
		Stages:  []Stage{StageInitCluster},
		Options: RunOptions{StrictValidation: Bool(true)},
	})
	require.NoError(t, err)
	assert.True(t, res.Summary.Strict)
	assert.False(t, res.Summary.Report.OK)
	assert.Empty(t, res.Summary.Report.Errors)
}

func TestEngine_RunPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	reg := NewRegistry().Bind(StageInitCluster, func(context.Context, *RunContext) error { return boom })

	res, err := NewEngine(nil, reg, nil).Run(context.Background(), RunRequest{Stages: []Stage{StageInitCluster}})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
}

func TestEngine_PreparedUsesPlanAndWorkDir(t *testing.T) {
	p := &plan.Plan{Cluster: plan.Cluster{Name: "c"}}
	rc, eff := NewEngine(nil, NewRegistry(), nil).Prepared(RunRequest{Plan: p, WorkDir: "/srv/run"})

	assert.Same(t, p, rc.Plan)
	assert.Equal(t, "/srv/run", rc.WorkDir)
	assert.Equal(t, eff, rc.Options)
}
