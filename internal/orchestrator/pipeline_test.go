package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// recorder collects handler invocations and callback events.
type recorder struct {
	invoked []Stage
	events  []string
}

func (r *recorder) handler(stage Stage) Handler {
	return func(context.Context, *RunContext) error {
		r.invoked = append(r.invoked, stage)
		return nil
	}
}

func (r *recorder) callback(event StageEvent, stage Stage, _ *RunContext) error {
	r.events = append(r.events, fmt.Sprintf("%s:%s", event, stage))
	return nil
}

func newTestRun() *RunContext {
	return NewRunContext(nil, "", nil)
}

// ---------------------------------------------------------------------------
// Ordering
// ---------------------------------------------------------------------------

func TestRunStages_PreservesGivenOrder(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry()
	for _, s := range AllStages() {
		reg.Bind(s, rec.handler(s))
	}
	selected := []Stage{StageDeployOBS, StagePrepare, StageCleanup}

	rc := newTestRun()
	err := NewExecutor(reg, nil).RunStages(context.Background(), selected, rc, rec.callback, nil)
	require.NoError(t, err)

	assert.Equal(t, selected, rec.invoked)
	assert.Equal(t, selected, rc.CompletedStages)
	assert.Equal(t, []string{
		"start:deploy_obs", "complete:deploy_obs",
		"start:prepare", "complete:prepare",
		"start:cleanup", "complete:cleanup",
	}, rec.events)
}

func TestRunStages_SkipsUnregisteredStage(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rec := &recorder{}
	reg := NewRegistry().
		Bind(StagePrepare, rec.handler(StagePrepare)).
		Bind(StageCleanup, rec.handler(StageCleanup))

	rc := newTestRun()
	err := NewExecutor(reg, zap.New(core)).RunStages(context.Background(),
		[]Stage{StagePrepare, StageInitCluster, StageCleanup}, rc, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []Stage{StagePrepare, StageCleanup}, rc.CompletedStages)
	require.Equal(t, 1, logs.FilterMessage("no handler registered for stage, skipping").Len())
}

func TestRunStages_EmptySelection(t *testing.T) {
	err := NewExecutor(NewRegistry(), nil).RunStages(context.Background(), nil, newTestRun(), nil, nil)
	assert.ErrorIs(t, err, ErrNoStages)
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestRunStages_HandlerErrorPropagatesUnchanged(t *testing.T) {
	boom := errors.New("boom")
	rec := &recorder{}
	reg := NewRegistry().
		Bind(StagePrepare, rec.handler(StagePrepare)).
		Bind(StageInitCluster, func(context.Context, *RunContext) error { return boom }).
		Bind(StageCleanup, rec.handler(StageCleanup))

	rc := newTestRun()
	err := NewExecutor(reg, nil).RunStages(context.Background(),
		[]Stage{StagePrepare, StageInitCluster, StageCleanup}, rc, rec.callback, nil)

	assert.Same(t, boom, err)
	assert.Equal(t, []Stage{StagePrepare}, rc.CompletedStages)
	assert.Equal(t, []Stage{StagePrepare}, rec.invoked)
	assert.Equal(t, []string{"start:prepare", "complete:prepare", "start:init_cluster"}, rec.events)
}

func TestRunStages_HandlerPanicBecomesError(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry().
		Bind(StagePrepare, rec.handler(StagePrepare)).
		Bind(StageInitCluster, func(context.Context, *RunContext) error {
			var m map[string]int
			m["hosts"] = 1
			return nil
		}).
		Bind(StageCleanup, rec.handler(StageCleanup))

	rc := newTestRun()
	var err error
	require.NotPanics(t, func() {
		err = NewExecutor(reg, nil).RunStages(context.Background(),
			[]Stage{StagePrepare, StageInitCluster, StageCleanup}, rc, rec.callback, nil)
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage init_cluster panicked")
	assert.Equal(t, []Stage{StagePrepare}, rc.CompletedStages)
	assert.Equal(t, []Stage{StagePrepare}, rec.invoked)
}

func TestRunStages_CallbackErrorPropagates(t *testing.T) {
	cbErr := errors.New("callback failed")
	rec := &recorder{}
	reg := NewRegistry().Bind(StagePrepare, rec.handler(StagePrepare))

	err := NewExecutor(reg, nil).RunStages(context.Background(), []Stage{StagePrepare}, newTestRun(),
		func(StageEvent, Stage, *RunContext) error { return cbErr }, nil)

	assert.Same(t, cbErr, err)
	assert.Empty(t, rec.invoked)
}

// ---------------------------------------------------------------------------
// Abort
// ---------------------------------------------------------------------------

func TestRunStages_AbortBeforeStageK(t *testing.T) {
	abort := NewAbortSignal()
	rec := &recorder{}
	reg := NewRegistry()
	for _, s := range []Stage{StagePrepare, StageInitCluster, StageConfigCluster, StageCleanup} {
		reg.Bind(s, rec.handler(s))
	}
	// Trigger once the second stage completes: stage three must never start.
	cb := func(event StageEvent, stage Stage, rc *RunContext) error {
		if event == EventComplete && stage == StageInitCluster {
			abort.Trigger()
		}
		return nil
	}

	rc := newTestRun()
	err := NewExecutor(reg, nil).RunStages(context.Background(),
		[]Stage{StagePrepare, StageInitCluster, StageConfigCluster, StageCleanup}, rc, cb, abort)

	require.ErrorIs(t, err, ErrAbortRequested)
	assert.Equal(t, []Stage{StagePrepare, StageInitCluster}, rec.invoked)
	assert.Equal(t, []Stage{StagePrepare, StageInitCluster}, rc.CompletedStages)
}

func TestRunStages_AbortAlreadySet(t *testing.T) {
	abort := NewAbortSignal()
	abort.Trigger()
	rec := &recorder{}
	reg := NewRegistry().Bind(StagePrepare, rec.handler(StagePrepare))

	rc := newTestRun()
	err := NewExecutor(reg, nil).RunStages(context.Background(), []Stage{StagePrepare}, rc, rec.callback, abort)

	require.ErrorIs(t, err, ErrAbortRequested)
	assert.Empty(t, rec.invoked)
	assert.Empty(t, rec.events)
	assert.Empty(t, rc.CompletedStages)
}

func TestRunStages_LateAbortHaltsAfterHandler(t *testing.T) {
	abort := NewAbortSignal()
	rec := &recorder{}
	reg := NewRegistry().
		Bind(StagePrepare, func(context.Context, *RunContext) error {
			abort.Trigger()
			return nil
		}).
		Bind(StageCleanup, rec.handler(StageCleanup))

	rc := newTestRun()
	err := NewExecutor(reg, nil).RunStages(context.Background(), []Stage{StagePrepare, StageCleanup}, rc, rec.callback, abort)

	require.ErrorIs(t, err, ErrAbortRequested)
	assert.Empty(t, rc.CompletedStages)
	assert.Empty(t, rec.invoked)
	assert.Equal(t, []string{"start:prepare"}, rec.events)
}

func TestRunStages_HandlerCheckpoint(t *testing.T) {
	abort := NewAbortSignal()
	steps := 0
	reg := NewRegistry().Bind(StageDeployOBS, func(_ context.Context, rc *RunContext) error {
		steps++
		abort.Trigger()
		if err := rc.CheckAbort(StageDeployOBS, "upload"); err != nil {
			return err
		}
		steps++
		return nil
	})

	rc := newTestRun()
	err := NewExecutor(reg, nil).RunStages(context.Background(), []Stage{StageDeployOBS}, rc, nil, abort)

	require.ErrorIs(t, err, ErrAbortRequested)
	assert.Contains(t, err.Error(), "upload")
	assert.Equal(t, 1, steps)
}

func TestAbortSignal(t *testing.T) {
	var nilSig *AbortSignal
	assert.False(t, nilSig.Triggered())
	assert.Nil(t, nilSig.Done())

	sig := NewAbortSignal()
	assert.False(t, sig.Triggered())
	sig.Trigger()
	sig.Trigger()
	assert.True(t, sig.Triggered())
	select {
	case <-sig.Done():
	default:
		t.Fatal("Done channel not closed after Trigger")
	}
}
