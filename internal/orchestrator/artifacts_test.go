package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifacts_TypedRoundTrip(t *testing.T) {
	a := NewArtifacts()

	_, ok := GetArtifact(a, KeyPlanPath)
	assert.False(t, ok)

	PutArtifact(a, KeyPlanPath, "/work/plan.yaml")
	PutArtifact(a, KeySelectedStages, []Stage{StagePrepare})
	PutArtifact(a, DeploymentKey(StageDeployCloudTower), map[string]any{"ip": "10.0.0.50"})

	path, ok := GetArtifact(a, KeyPlanPath)
	require.True(t, ok)
	assert.Equal(t, "/work/plan.yaml", path)

	dep, ok := GetArtifact(a, DeploymentKey(StageDeployCloudTower))
	require.True(t, ok)
	assert.Equal(t, "10.0.0.50", dep["ip"])

	assert.Equal(t, []string{"deploy.deploy_cloudtower", "plan_path", "selected_stages"}, a.Names())
}

func TestArtifacts_TypeMismatch(t *testing.T) {
	a := NewArtifacts()
	PutArtifact(a, NewArtifactKey[int]("n"), 5)

	_, ok := GetArtifact(a, NewArtifactKey[string]("n"))
	assert.False(t, ok)

	n, ok := GetArtifact(a, NewArtifactKey[int]("n"))
	require.True(t, ok)
	assert.Equal(t, 5, n)
}
