package decision

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Agent runs the full decision pipeline for one signal: assemble the
// context, diagnose it, then select an action.
type Agent struct {
	assembler Assembler
	diagnoser *Diagnoser
	selector  *Selector
	now       func() time.Time
}

// NewAgent wires a Diagnoser and Selector over the same backend.
func NewAgent(backend Backend, log *zap.Logger, now func() time.Time) *Agent {
	if now == nil {
		now = time.Now
	}
	return &Agent{
		assembler: Assembler{Now: now},
		diagnoser: NewDiagnoser(backend, log),
		selector:  NewSelector(backend, log),
		now:       now,
	}
}

// Analyze never fails; degraded backends show up as Tier values on the
// diagnosis and decision.
func (a *Agent) Analyze(ctx context.Context, customer Record, signal Signal, kpis map[string]any) Analysis {
	ac := a.assembler.Assemble(customer, signal, kpis)
	diagnosis := a.diagnoser.Diagnose(ctx, ac)
	decision := a.selector.Select(ctx, ac, diagnosis)
	return Analysis{
		CustomerID: ac.CustomerID(),
		AnalyzedAt: a.now(),
		Context:    ac,
		Diagnosis:  diagnosis,
		Decision:   decision,
	}
}
