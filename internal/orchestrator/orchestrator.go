package orchestrator

import (
	"fmt"
	"strings"
)

// Stage identifies one step of the deployment pipeline. Declaration order is
// the canonical execution order; the zero value means "no stage".
type Stage int

const (
	StagePrepare Stage = iota + 1
	StageInitCluster
	StageConfigCluster
	StageDeployCloudTower
	StageAttachCluster
	StageCloudTowerConfig
	StageCheckClusterHealthy
	StageDeployOBS
	StageDeployBAK
	StageDeployER
	StageDeploySFS
	StageDeploySKS
	StageCreateTestVMs
	StagePerfReliability
	StageCleanup
)

var stageNames = [...]string{
	"prepare",
	"init_cluster",
	"config_cluster",
	"deploy_cloudtower",
	"attach_cluster",
	"cloudtower_config",
	"check_cluster_healthy",
	"deploy_obs",
	"deploy_bak",
	"deploy_er",
	"deploy_sfs",
	"deploy_sks",
	"create_test_vms",
	"perf_reliability",
	"cleanup",
}

func (s Stage) String() string {
	if s == 0 {
		return ""
	}
	if s.Valid() {
		return stageNames[s-1]
	}
	return fmt.Sprintf("stage_%d", int(s))
}

// Valid reports whether s is a member of the enumeration.
func (s Stage) Valid() bool {
	return s >= StagePrepare && int(s) <= len(stageNames)
}

// MarshalText encodes the stage as its identifier.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes an identifier. The empty string decodes to the zero
// stage.
func (s *Stage) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = 0
		return nil
	}
	st, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// AllStages returns every stage in canonical order.
func AllStages() []Stage {
	out := make([]Stage, len(stageNames))
	for i := range stageNames {
		out[i] = Stage(i + 1)
	}
	return out
}

// ParseStage maps an identifier to its Stage.
func ParseStage(name string) (Stage, error) {
	token := strings.TrimSpace(name)
	for i, n := range stageNames {
		if n == token {
			return Stage(i + 1), nil
		}
	}
	return 0, &UnknownStageError{Token: name}
}

// Resolve maps user supplied tokens to stages. The result keeps the order of
// tokens; it is not re-sorted into canonical order.
func Resolve(tokens []string) ([]Stage, error) {
	out := make([]Stage, 0, len(tokens))
	for _, tok := range tokens {
		st, err := ParseStage(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// StageNames converts stages to their identifiers.
func StageNames(stages []Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.String()
	}
	return out
}

// UnknownStageError is returned when a token does not name a stage.
type UnknownStageError struct {
	Token string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown stage %q", e.Token)
}

// StageEvent is a transition reported to a ProgressCallback and recorded in a
// task's stage history.
type StageEvent string

const (
	EventStart    StageEvent = "start"
	EventComplete StageEvent = "complete"
	EventAborted  StageEvent = "aborted"
	EventError    StageEvent = "error"
)

// ProgressCallback observes stage transitions. A returned error is propagated
// unchanged by the executor.
type ProgressCallback func(event StageEvent, stage Stage, rc *RunContext) error
