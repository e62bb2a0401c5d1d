package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sephirothchang/CXVoyager-sub000/internal/config"
	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
	"github.com/sephirothchang/CXVoyager-sub000/internal/plan"
)

// Compile-time interface checks.
var (
	_ Deployer = (*HTTPDeployer)(nil)
	_ Deployer = MockDeployer{}
)

// HTTPDeployer hands each stage to a deployment agent over HTTP. The agent
// receives POST {base}/stages/{stage} with the plan as JSON and answers with
// a JSON object describing what it produced.
type HTTPDeployer struct {
	base  string
	token string
	http  *http.Client
}

// NewHTTPDeployer creates an HTTPDeployer for baseURL.
func NewHTTPDeployer(baseURL, token string, timeout time.Duration) *HTTPDeployer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPDeployer{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

type deployRequest struct {
	Stage string     `json:"stage"`
	Plan  *plan.Plan `json:"plan"`
}

func (d *HTTPDeployer) Deploy(ctx context.Context, stage orchestrator.Stage, p *plan.Plan) (map[string]any, error) {
	body, err := json.Marshal(deployRequest{Stage: stage.String(), Plan: p})
	if err != nil {
		return nil, fmt.Errorf("deployer: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.base+"/stages/"+stage.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("deployer: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deployer: %s: %w", stage, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deployer: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("deployer: %s: HTTP %d: %s", stage, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("deployer: decode response: %w", err)
	}
	return out, nil
}

// MockDeployer answers every stage with a canned result naming the plan
// addresses the stage would touch.
type MockDeployer struct{}

func (MockDeployer) Deploy(ctx context.Context, stage orchestrator.Stage, p *plan.Plan) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]any{
		"mock":    true,
		"action":  plannedAction(stage, p),
		"targets": len(p.ManagementAddresses()),
	}, nil
}

// DeployerFromConfig picks the deployer described by the api section: the
// mock when api.mock is set, an HTTPDeployer when api.base_url is set and
// none otherwise.
func DeployerFromConfig(cfg *config.Config) Deployer {
	switch {
	case cfg == nil:
		return nil
	case cfg.API.Mock:
		return MockDeployer{}
	case cfg.API.BaseURL != "":
		return NewHTTPDeployer(cfg.API.BaseURL, cfg.API.Token, time.Duration(cfg.API.Timeout)*time.Second)
	default:
		return nil
	}
}
