package orchestrator

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_StringAndParse(t *testing.T) {
	for _, s := range AllStages() {
		got, err := ParseStage(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	assert.Equal(t, "", Stage(0).String())
	assert.Equal(t, "stage_99", Stage(99).String())
	assert.False(t, Stage(99).Valid())
}

func TestAllStages_CanonicalOrder(t *testing.T) {
	all := AllStages()
	require.Len(t, all, 15)
	assert.Equal(t, StagePrepare, all[0])
	assert.Equal(t, StageCleanup, all[len(all)-1])
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1], all[i])
	}
}

func TestStage_JSON(t *testing.T) {
	data, err := json.Marshal([]Stage{StagePrepare, StageDeployOBS})
	require.NoError(t, err)
	assert.JSONEq(t, `["prepare","deploy_obs"]`, string(data))

	var back []Stage
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []Stage{StagePrepare, StageDeployOBS}, back)

	var bad Stage
	err = json.Unmarshal([]byte(`"nope"`), &bad)
	require.Error(t, err)
}

func TestResolve_PreservesInputOrder(t *testing.T) {
	got, err := Resolve([]string{"cleanup", " prepare ", "deploy_obs"})
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageCleanup, StagePrepare, StageDeployOBS}, got)
}

func TestResolve_UnknownToken(t *testing.T) {
	_, err := Resolve([]string{"prepare", "not_a_stage"})
	require.Error(t, err)

	var unknown *UnknownStageError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "not_a_stage", unknown.Token)
	assert.Contains(t, err.Error(), "not_a_stage")

	_, err = Resolve([]string{""})
	require.True(t, errors.As(err, &unknown))
}

func TestInfo(t *testing.T) {
	info := Info(StageDeployCloudTower)
	assert.Equal(t, "deploy_cloudtower", info.Name)
	assert.Equal(t, "Deploy CloudTower", info.Label)
	assert.Equal(t, "platform", info.Group)
	assert.Equal(t, 4, info.Order)
}

func TestInfo_SynthesizedDefault(t *testing.T) {
	info := Info(StageCleanup)
	assert.Equal(t, "cleanup", info.Name)
	assert.Equal(t, "Cleanup", info.Label)
	assert.Empty(t, info.Description)
	assert.Equal(t, 15, info.Order)

	assert.Equal(t, "Stage 42", Info(Stage(42)).Label)
}

func TestListInfo(t *testing.T) {
	infos := ListInfo()
	require.Len(t, infos, len(AllStages()))
	for i, info := range infos {
		assert.Equal(t, i+1, info.Order)
	}
}

func TestStageNames(t *testing.T) {
	assert.Equal(t, []string{"prepare", "cleanup"}, StageNames([]Stage{StagePrepare, StageCleanup}))
	assert.Empty(t, StageNames(nil))
}
