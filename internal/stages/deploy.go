package stages

import (
	"context"
	"fmt"

	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
	"github.com/sephirothchang/CXVoyager-sub000/internal/plan"
)

var appKinds = map[orchestrator.Stage]string{
	orchestrator.StageDeployOBS: "obs",
	orchestrator.StageDeployBAK: "bak",
	orchestrator.StageDeployER:  "er",
	orchestrator.StageDeploySFS: "sfs",
	orchestrator.StageDeploySKS: "sks",
}

// deploy returns the handler of a vendor stage. In dry-run it only records
// the planned action; otherwise it delegates to the Deployer.
func (h *handlers) deploy(stage orchestrator.Stage) orchestrator.Handler {
	return func(ctx context.Context, rc *orchestrator.RunContext) error {
		sl := rc.StageLogger(stage)
		label := orchestrator.Info(stage).Label
		if err := sl.CheckAbort("before start"); err != nil {
			return err
		}
		if rc.Plan == nil {
			return fmt.Errorf("%s: %w", stage, ErrNoPlan)
		}

		planned := plannedAction(stage, rc.Plan)
		if rc.Options.DryRun {
			sl.Info("dry run: "+label+" skipped", planned)
			out := map[string]any{"dry_run": true}
			for k, v := range planned {
				out[k] = v
			}
			orchestrator.PutArtifact(rc.Artifacts, orchestrator.DeploymentKey(stage), out)
			return nil
		}
		if h.deployer == nil {
			return fmt.Errorf("%s: %w", stage, ErrNoDeployer)
		}

		sl.Info(label+" started", planned)
		out, err := h.deployer.Deploy(ctx, stage, rc.Plan)
		if err != nil {
			sl.Error(label+" failed", orchestrator.Detail{"error": err.Error()})
			return fmt.Errorf("%s: %w", stage, err)
		}
		if err := sl.CheckAbort("after deploy call"); err != nil {
			return err
		}
		if out == nil {
			out = map[string]any{}
		}
		orchestrator.PutArtifact(rc.Artifacts, orchestrator.DeploymentKey(stage), out)
		sl.Info(label+" finished", orchestrator.Detail(out))
		return nil
	}
}

// plannedAction describes what stage would touch for p.
func plannedAction(stage orchestrator.Stage, p *plan.Plan) orchestrator.Detail {
	d := orchestrator.Detail{"cluster": p.Cluster.Name}
	switch stage {
	case orchestrator.StageInitCluster, orchestrator.StageConfigCluster, orchestrator.StageCheckClusterHealthy:
		d["hosts"] = len(p.Hosts)
		if p.Cluster.VIP != "" {
			d["vip"] = p.Cluster.VIP
		}
	case orchestrator.StageDeployCloudTower, orchestrator.StageAttachCluster, orchestrator.StageCloudTowerConfig:
		if p.CloudTower != nil {
			d["cloudtower_ip"] = p.CloudTower.IP
		}
	default:
		if kind, ok := appKinds[stage]; ok {
			d["app"] = kind
			if app, ok := p.App(kind); ok && app.IP != "" {
				d["ip"] = app.IP
			}
		}
	}
	return d
}
