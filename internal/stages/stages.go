// Package stages holds the concrete handler of every pipeline stage and
// builds the registry the engine runs against.
package stages

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
	"github.com/sephirothchang/CXVoyager-sub000/internal/plan"
)

var (
	// ErrNoPlan is returned by stages that need a plan when none is loaded.
	ErrNoPlan = errors.New("no plan loaded; run the prepare stage first")

	// ErrNoDeployer is returned outside dry-run when no Deployer is wired.
	ErrNoDeployer = errors.New("no deployer configured")
)

// Deployer performs the vendor API calls of one stage and returns what the
// stage produced, such as addresses and resource ids.
type Deployer interface {
	Deploy(ctx context.Context, stage orchestrator.Stage, p *plan.Plan) (map[string]any, error)
}

// DeployerFunc adapts a function to Deployer.
type DeployerFunc func(ctx context.Context, stage orchestrator.Stage, p *plan.Plan) (map[string]any, error)

func (f DeployerFunc) Deploy(ctx context.Context, stage orchestrator.Stage, p *plan.Plan) (map[string]any, error) {
	return f(ctx, stage, p)
}

// Dialer opens the TCP connections used by reachability probes.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Deps are the collaborators of the stage handlers. Zero values get
// defaults: the YAML plan parser, a net.Dialer and the wall clock.
type Deps struct {
	Parser   plan.Parser
	Deployer Deployer
	Dialer   Dialer
	Now      func() time.Time
}

type handlers struct {
	parser   plan.Parser
	deployer Deployer
	dialer   Dialer
	now      func() time.Time
}

// BuildRegistry binds a handler to every stage.
func BuildRegistry(d Deps) *orchestrator.Registry {
	h := &handlers{
		parser:   d.Parser,
		deployer: d.Deployer,
		dialer:   d.Dialer,
		now:      d.Now,
	}
	if h.parser == nil {
		h.parser = plan.YAMLParser{}
	}
	if h.dialer == nil {
		h.dialer = &net.Dialer{}
	}
	if h.now == nil {
		h.now = func() time.Time { return time.Now().UTC() }
	}

	reg := orchestrator.NewRegistry().
		Bind(orchestrator.StagePrepare, h.prepare).
		Bind(orchestrator.StageCleanup, h.cleanup)
	for _, s := range orchestrator.AllStages() {
		if s == orchestrator.StagePrepare || s == orchestrator.StageCleanup {
			continue
		}
		reg.Bind(s, h.deploy(s))
	}
	return reg
}
