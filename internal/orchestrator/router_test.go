package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_BindAndLookup(t *testing.T) {
	calls := 0
	r := NewRegistry().Bind(StagePrepare, func(context.Context, *RunContext) error {
		calls++
		return nil
	})

	h, ok := r.Lookup(StagePrepare)
	require.True(t, ok)
	require.NoError(t, h(context.Background(), nil))
	assert.Equal(t, 1, calls)

	_, ok = r.Lookup(StageCleanup)
	assert.False(t, ok)
}

func TestRegistry_LastBindWins(t *testing.T) {
	var got string
	r := NewRegistry()
	r.Bind(StagePrepare, func(context.Context, *RunContext) error { got = "first"; return nil })
	r.Bind(StagePrepare, func(context.Context, *RunContext) error { got = "second"; return nil })

	h, ok := r.Lookup(StagePrepare)
	require.True(t, ok)
	require.NoError(t, h(context.Background(), nil))
	assert.Equal(t, "second", got)
}

func TestRegistry_NilHandlerIsUnbound(t *testing.T) {
	r := NewRegistry().Bind(StagePrepare, nil)
	_, ok := r.Lookup(StagePrepare)
	assert.False(t, ok)
}

func TestRegistry_StagesSorted(t *testing.T) {
	noop := func(context.Context, *RunContext) error { return nil }
	r := NewRegistry().
		Bind(StageCleanup, noop).
		Bind(StagePrepare, noop).
		Bind(StageDeployOBS, noop)

	assert.Equal(t, []Stage{StagePrepare, StageDeployOBS, StageCleanup}, r.Stages())
}
