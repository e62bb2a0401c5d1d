package stages

import (
	"context"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sephirothchang/CXVoyager-sub000/internal/orchestrator"
)

// prober checks TCP reachability of many addresses in parallel. Results
// keep the order of the targets.
type prober struct {
	dialer  Dialer
	port    int
	timeout time.Duration
	limit   int

	// onResult is called from each probe goroutine; it may be nil.
	onResult func(orchestrator.ProbeResult)
}

// run probes every target. It returns early only when ctx is cancelled; an
// unreachable target is a result, not an error.
func (p *prober) run(ctx context.Context, targets []string) ([]orchestrator.ProbeResult, error) {
	results := make([]orchestrator.ProbeResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}

	for i, target := range targets {
		g.Go(func() error {
			res := p.probe(gctx, target)
			results[i] = res
			if p.onResult != nil {
				p.onResult(res)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (p *prober) probe(ctx context.Context, target string) orchestrator.ProbeResult {
	addr := net.JoinHostPort(target, strconv.Itoa(p.port))
	res := orchestrator.ProbeResult{Target: addr}

	dctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	conn, err := p.dialer.DialContext(dctx, "tcp", addr)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	_ = conn.Close()
	res.Reachable = true
	return res
}
