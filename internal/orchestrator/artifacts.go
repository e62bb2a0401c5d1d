package orchestrator

import (
	"sort"
	"sync"

	"github.com/sephirothchang/CXVoyager-sub000/internal/plan"
)

// ArtifactKey names a typed slot on the run's artifact board. The type
// parameter fixes the value type for producers and consumers of the slot.
type ArtifactKey[T any] struct {
	name string
}

// NewArtifactKey declares a slot.
func NewArtifactKey[T any](name string) ArtifactKey[T] {
	return ArtifactKey[T]{name: name}
}

// Name returns the slot name.
func (k ArtifactKey[T]) Name() string { return k.name }

// Artifacts carries data between stages of a single run. Stages write under
// their own keys; later stages read what earlier stages produced.
type Artifacts struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewArtifacts returns an empty board.
func NewArtifacts() *Artifacts {
	return &Artifacts{values: make(map[string]any)}
}

// PutArtifact stores v under k, replacing any previous value.
func PutArtifact[T any](a *Artifacts, k ArtifactKey[T], v T) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[k.name] = v
}

// GetArtifact returns the value stored under k.
func GetArtifact[T any](a *Artifacts, k ArtifactKey[T]) (T, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.values[k.name].(T)
	return v, ok
}

// Names lists the populated slots in lexical order.
func (a *Artifacts) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.values))
	for k := range a.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ProbeResult is the outcome of one reachability probe.
type ProbeResult struct {
	Target    string `json:"target"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// PrecheckReport is produced by the prepare stage.
type PrecheckReport struct {
	Strict       bool            `json:"strict"`
	Dependencies map[string]bool `json:"dependencies,omitempty"`
	Network      []ProbeResult   `json:"network,omitempty"`
	Report       plan.Report     `json:"report"`
}

// Well-known artifact slots.
var (
	KeyPlanPath       = NewArtifactKey[string]("plan_path")
	KeyParsedPlan     = NewArtifactKey[map[string]any]("parsed_plan")
	KeySelectedStages = NewArtifactKey[[]Stage]("selected_stages")
	KeyRunOptions     = NewArtifactKey[EffectiveRunOptions]("cli_options")
	KeyPrecheck       = NewArtifactKey[PrecheckReport]("precheck")
	KeyArchivePath    = NewArtifactKey[string]("archive_path")
)

// DeploymentKey is the slot where a vendor stage records what it produced,
// such as addresses and resource identifiers.
func DeploymentKey(stage Stage) ArtifactKey[map[string]any] {
	return NewArtifactKey[map[string]any]("deploy." + stage.String())
}
