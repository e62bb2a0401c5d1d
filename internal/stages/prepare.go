package stages

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
	"github.com/sephirothchang/CXVoyager-sub000/internal/plan"
)

// prepare loads and validates the plan, checks that the collaborators the
// selected stages need are wired and, when enabled, probes the management
// addresses.
func (h *handlers) prepare(ctx context.Context, rc *orchestrator.RunContext) error {
	const stage = orchestrator.StagePrepare
	sl := rc.StageLogger(stage)
	strict := rc.Options.StrictValidation
	sl.Info("preparing run, locating planning file")

	if rc.Plan == nil {
		path, err := h.planPath(rc)
		if err != nil {
			return err
		}
		p, raw, err := h.parser.Parse(path)
		if err != nil {
			return err
		}
		rc.Plan = p
		orchestrator.PutArtifact(rc.Artifacts, orchestrator.KeyPlanPath, path)
		orchestrator.PutArtifact(rc.Artifacts, orchestrator.KeyParsedPlan, raw)
	}
	sl.Info("plan loaded", orchestrator.Detail{
		"hosts":    len(rc.Plan.Hosts),
		"networks": len(rc.Plan.Networks),
	})

	report := plan.Validate(rc.Plan, strict)
	if len(report.Errors) > 0 {
		sl.Error("plan validation failed", orchestrator.Detail{"errors": report.Errors})
		return fmt.Errorf("plan validation failed: %s", strings.Join(report.Errors, "; "))
	}
	if strict && len(report.Warnings) > 0 {
		sl.Error("strict validation rejects warnings", orchestrator.Detail{"warnings": report.Warnings})
		return fmt.Errorf("strict validation: %d warnings in plan", len(report.Warnings))
	}
	sl.Info("plan validated", orchestrator.Detail{"warnings": len(report.Warnings)})

	deps := h.dependencies(rc)
	var missing []string
	for _, name := range []string{"plan_parser", "deployer"} {
		if !deps[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing dependencies: %s", strings.Join(missing, ", "))
	}
	sl.Debug("dependency check passed", orchestrator.Detail{"dependencies": deps})

	if err := sl.CheckAbort("before network precheck"); err != nil {
		return err
	}

	var network []orchestrator.ProbeResult
	if rc.Config.Precheck.Network {
		var err error
		network, err = h.probeHosts(ctx, rc, sl)
		if err != nil {
			return err
		}
	}

	orchestrator.PutArtifact(rc.Artifacts, orchestrator.KeyPrecheck, orchestrator.PrecheckReport{
		Strict:       strict,
		Dependencies: deps,
		Network:      network,
		Report:       report,
	})
	sl.Info("prepare finished")
	return nil
}

func (h *handlers) planPath(rc *orchestrator.RunContext) (string, error) {
	if f := rc.Config.Deploy.PlanFile; f != "" {
		if !filepath.IsAbs(f) && rc.WorkDir != "" {
			f = filepath.Join(rc.WorkDir, f)
		}
		return f, nil
	}
	dir := rc.WorkDir
	if dir == "" {
		dir = "."
	}
	return plan.Find(dir)
}

func (h *handlers) dependencies(rc *orchestrator.RunContext) map[string]bool {
	return map[string]bool{
		"plan_parser": h.parser != nil,
		"deployer":    h.deployer != nil || rc.Options.DryRun,
	}
}

func (h *handlers) probeHosts(ctx context.Context, rc *orchestrator.RunContext, sl *orchestrator.StageLogger) ([]orchestrator.ProbeResult, error) {
	cfg := rc.Config.Precheck
	targets := rc.Plan.ManagementAddresses()
	sl.Info("probing management addresses", orchestrator.Detail{"targets": len(targets), "port": cfg.ProbePort})

	p := &prober{
		dialer:  h.dialer,
		port:    cfg.ProbePort,
		timeout: cfg.ProbeTimeout,
		limit:   cfg.Parallelism,
		onResult: func(r orchestrator.ProbeResult) {
			sl.Debug("probe finished", orchestrator.Detail{"target": r.Target, "reachable": r.Reachable})
		},
	}
	results, err := p.run(ctx, targets)
	if err != nil {
		return nil, err
	}

	var unreachable []string
	for _, r := range results {
		if !r.Reachable {
			unreachable = append(unreachable, r.Target)
		}
	}
	if len(unreachable) == 0 {
		sl.Info("all management addresses reachable")
		return results, nil
	}
	if rc.Options.DryRun {
		sl.Warn("unreachable management addresses", orchestrator.Detail{"targets": unreachable})
		return results, nil
	}
	sl.Error("unreachable management addresses", orchestrator.Detail{"targets": unreachable})
	return nil, fmt.Errorf("network precheck failed: %s unreachable", strings.Join(unreachable, ", "))
}
