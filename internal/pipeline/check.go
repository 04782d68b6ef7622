package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/refset/churn-decision-agent/internal/decision"
	"github.com/refset/churn-decision-agent/internal/dispatch"
)

type CheckStatus string

const (
	CheckSuccess CheckStatus = "success"
	CheckFailed  CheckStatus = "failed"
)

// CheckResult is the outcome of probing one component.
type CheckResult struct {
	Component string      `json:"component"`
	Status    CheckStatus `json:"status"`
	Detail    string      `json:"detail"`
}

type check struct {
	name string
	run  func(ctx context.Context) (string, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type snapshotter interface {
	Snapshot(ctx context.Context) (map[string]any, error)
}

func warehouseCheck(p pinger) check {
	return check{name: "warehouse", run: func(ctx context.Context) (string, error) {
		if err := p.Ping(ctx); err != nil {
			return "", err
		}
		return "connected", nil
	}}
}

func kpiCheck(s snapshotter) check {
	return check{name: "looker", run: func(ctx context.Context) (string, error) {
		snapshot, err := s.Snapshot(ctx)
		if err != nil {
			return "", err
		}
		fetched := 0
		for _, v := range snapshot {
			if v != nil {
				fetched++
			}
		}
		return fmt.Sprintf("%d of %d KPIs available", fetched, len(snapshot)), nil
	}}
}

const checkPrompt = `Respond with the single word "ok".`

func reasoningCheck(b decision.Backend) check {
	return check{name: "reasoning", run: func(ctx context.Context) (string, error) {
		text, err := b.Complete(ctx, decision.Prompt{System: "You are a health check.", User: checkPrompt})
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", errors.New("empty completion")
		}
		return "completion received", nil
	}}
}

// dispatchCheck sends a no-op decision, which must come back skipped
// without touching any channel.
func dispatchCheck(d *dispatch.Dispatcher) check {
	return check{name: "dispatch", run: func(ctx context.Context) (string, error) {
		res := d.Send(ctx, decision.Record{"customer_id": "CHECK"}, decision.Analysis{
			CustomerID: "CHECK",
			Decision:   decision.ActionDecision{ActionType: decision.ActionNone, Priority: decision.PriorityLow},
		})
		if res.Status != decision.StatusSkipped {
			return "", fmt.Errorf("no-op action returned %s: %s", res.Status, res.Reason)
		}
		configured := d.Configured()
		if len(configured) == 0 {
			return "no channels configured", nil
		}
		return "channels: " + strings.Join(configured, ", "), nil
	}}
}

// Check probes every component. It never stops at the first failure.
func (p *Pipeline) Check(ctx context.Context) []CheckResult {
	results := make([]CheckResult, 0, len(p.checks))
	for _, c := range p.checks {
		detail, err := c.run(ctx)
		r := CheckResult{Component: c.name, Status: CheckSuccess, Detail: detail}
		if err != nil {
			r.Status, r.Detail = CheckFailed, err.Error()
		}
		results = append(results, r)
	}
	return results
}
