package decision

import (
	"context"

	"go.uber.org/zap"
)

// Diagnoser asks the backend for a root-cause diagnosis of a context.
type Diagnoser struct {
	backend Backend
	log     *zap.Logger
}

func NewDiagnoser(backend Backend, log *zap.Logger) *Diagnoser {
	return &Diagnoser{backend: backend, log: log.Named("diagnoser")}
}

// Diagnose always returns a diagnosis. A malformed response is recovered by
// keyword fallback; a backend error yields FailedDiagnosis.
func (d *Diagnoser) Diagnose(ctx context.Context, ac AnalysisContext) RootCauseDiagnosis {
	log := d.log.With(zap.String("customer_id", ac.CustomerID()), zap.String("signal", string(ac.SignalKind())))

	text, err := d.backend.Complete(ctx, DiagnosisPrompt(ac))
	if err != nil {
		log.Error("Root cause analysis failed", zap.Error(err))
		return FailedDiagnosis()
	}

	res := ParseDiagnosis(text)
	switch res.Tier {
	case TierFallback:
		log.Warn("Failed to parse structured diagnosis, using keyword fallback",
			zap.Error(res.Err), zap.String("severity", string(res.Value.Severity)))
	default:
		log.Debug("Diagnosis parsed",
			zap.String("severity", string(res.Value.Severity)), zap.Float64("confidence", res.Value.Confidence))
	}
	return res.Value
}
