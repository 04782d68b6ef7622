package decision

import (
	"context"

	"go.uber.org/zap"
)

// Selector asks the backend which remediation to take for a diagnosis.
type Selector struct {
	backend Backend
	log     *zap.Logger
}

func NewSelector(backend Backend, log *zap.Logger) *Selector {
	return &Selector{backend: backend, log: log.Named("selector")}
}

// Select always returns a decision, with the same three tiers as Diagnose.
func (s *Selector) Select(ctx context.Context, ac AnalysisContext, d RootCauseDiagnosis) ActionDecision {
	log := s.log.With(zap.String("customer_id", ac.CustomerID()), zap.String("signal", string(ac.SignalKind())))

	text, err := s.backend.Complete(ctx, DecisionPrompt(ac, d))
	if err != nil {
		log.Error("Action determination failed", zap.Error(err))
		return FailedDecision()
	}

	res := ParseDecision(text)
	if res.Tier == TierFallback {
		log.Warn("Failed to parse structured decision, using keyword fallback",
			zap.Error(res.Err), zap.String("action_type", string(res.Value.ActionType)))
	}
	return res.Value
}
