package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/refset/churn-decision-agent/internal/decision"
)

// Warehouse supplies customers and signals and records action outcomes.
type Warehouse interface {
	ExtractCustomers(ctx context.Context, windowDays int) ([]decision.Record, error)
	AtRiskCustomers(ctx context.Context, windowDays int) ([]decision.Record, error)
	Anomalies(ctx context.Context, metric string, threshold float64) ([]decision.Record, error)
	// CustomerDetail returns nil without error when the customer is unknown.
	CustomerDetail(ctx context.Context, customerID string) (decision.Record, error)
	LogOutcome(ctx context.Context, outcome decision.ActionOutcome) error
}

// KPISource returns the dashboard KPI snapshot shared by every item of a cycle.
type KPISource interface {
	Snapshot(ctx context.Context) (map[string]any, error)
}

// Analyzer turns a customer and signal into a diagnosis and decision.
type Analyzer interface {
	Analyze(ctx context.Context, customer decision.Record, signal decision.Signal, kpis map[string]any) decision.Analysis
}

// Dispatcher delivers a decision to its channel.
type Dispatcher interface {
	Send(ctx context.Context, customer decision.Record, analysis decision.Analysis) decision.ActionResult
}

// Publisher fans action outcomes out to subscribers.
type Publisher interface {
	PublishOutcome(ctx context.Context, outcome decision.ActionOutcome) error
}

type Options struct {
	WindowDays int
	Threshold  float64
	Metrics    []string
	// Publisher is optional.
	Publisher Publisher
	Now       func() time.Time
}

// Orchestrator runs one end-to-end decision cycle at a time. Items are
// processed sequentially and a failing item never stops the cycle.
type Orchestrator struct {
	warehouse  Warehouse
	kpis       KPISource
	analyzer   Analyzer
	dispatcher Dispatcher
	publisher  Publisher
	log        *zap.Logger

	windowDays int
	threshold  float64
	metrics    []string
	now        func() time.Time
}

func New(wh Warehouse, kpis KPISource, analyzer Analyzer, dispatcher Dispatcher, log *zap.Logger, opts Options) *Orchestrator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		warehouse:  wh,
		kpis:       kpis,
		analyzer:   analyzer,
		dispatcher: dispatcher,
		publisher:  opts.Publisher,
		log:        log.Named("cycle"),
		windowDays: opts.WindowDays,
		threshold:  opts.Threshold,
		metrics:    append([]string(nil), opts.Metrics...),
		now:        now,
	}
}

// RunCycle executes one cycle and always returns its result. A failing
// extraction, prediction, anomaly or KPI stage ends the cycle early with the
// error recorded; CycleEnd is set either way.
func (o *Orchestrator) RunCycle(ctx context.Context) *Result {
	res := newResult(uuid.NewString(), o.now())
	log := o.log.With(zap.String("cycle_id", res.CycleID))
	log.Info("Starting churn analysis cycle")

	defer func() {
		res.finish(o.now())
		log.Info("Churn analysis cycle finished",
			zap.String("stage", string(res.Stage)),
			zap.Float64("duration_seconds", res.DurationSeconds),
			zap.Int("actions_executed", res.ActionsExecuted),
			zap.Int("successful_actions", res.SuccessfulActions),
			zap.Int("failed_actions", res.FailedActions),
			zap.Int("errors", len(res.Errors)))
	}()

	res.Stage = StageExtract
	customers, err := o.warehouse.ExtractCustomers(ctx, o.windowDays)
	if err != nil {
		o.abort(log, res, err)
		return res
	}
	res.CustomersAnalyzed = len(customers)
	log.Info("Extracted customer data", zap.Int("customers", len(customers)))

	res.Stage = StagePredict
	atRisk, err := o.warehouse.AtRiskCustomers(ctx, o.windowDays)
	if err != nil {
		o.abort(log, res, err)
		return res
	}
	res.Predictions = len(atRisk)
	log.Info("Found customers at risk of churning", zap.Int("predictions", len(atRisk)))

	res.Stage = StageDetectAnomalies
	anomalies := o.detectAnomalies(ctx, log)
	res.Anomalies = len(anomalies)
	log.Info("Detected anomalies", zap.Int("anomalies", len(anomalies)))

	res.Stage = StageFetchKPI
	kpis, err := o.kpis.Snapshot(ctx)
	if err != nil {
		o.abort(log, res, err)
		return res
	}

	res.Stage = StageProcessRisks
	for _, rec := range atRisk {
		signal := decision.PredictionFromRecord(rec)
		if err := o.processItem(ctx, res, signal, kpis); err != nil {
			log.Error("Error processing customer", zap.String("customer_id", signal.CustomerID), zap.Error(err))
			res.addError("Error processing customer %s: %v", signal.CustomerID, err)
		}
	}

	res.Stage = StageProcessAnomalies
	for _, rec := range anomalies {
		signal := decision.AnomalyFromRecord(rec)
		if err := o.processItem(ctx, res, signal, kpis); err != nil {
			log.Error("Error processing anomaly", zap.String("customer_id", signal.CustomerID),
				zap.String("metric", signal.MetricName), zap.Error(err))
			res.addError("Error processing anomaly for customer %s: %v", signal.CustomerID, err)
		}
	}

	res.Stage = StageFinalize
	return res
}

func (o *Orchestrator) abort(log *zap.Logger, res *Result, err error) {
	log.Error("Cycle stage failed", zap.String("stage", string(res.Stage)), zap.Error(err))
	res.addError("%s: %v", res.Stage, err)
}

// processItem handles one signal. A missing customer is skipped without
// error. Panics are returned as errors so the cycle can continue.
func (o *Orchestrator) processItem(ctx context.Context, res *Result, signal decision.Signal, kpis map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	customerID := signal.Customer()
	log := o.log.With(zap.String("customer_id", customerID), zap.String("signal", string(signal.Kind())))

	customer, err := o.warehouse.CustomerDetail(ctx, customerID)
	if err != nil {
		return fmt.Errorf("customer detail: %w", err)
	}
	if customer == nil {
		log.Warn("No customer data found")
		return nil
	}

	analysis := o.analyzer.Analyze(ctx, customer, signal, kpis)
	if analysis.Decision.ActionType == decision.ActionNone {
		log.Info("No action required", zap.String("reason", analysis.Decision.Reason))
		return nil
	}

	res.ActionsExecuted++
	result := o.dispatcher.Send(ctx, customer, analysis)
	if result.Status == decision.StatusSuccess {
		res.SuccessfulActions++
	} else {
		res.FailedActions++
		log.Warn("Action failed", zap.String("action_type", string(result.ActionType)), zap.String("reason", result.Reason))
	}

	o.logOutcome(ctx, log, res.CycleID, signal, analysis, result)
	return nil
}

// logOutcome records the retraining row. Failures here are not action
// failures and are only logged.
func (o *Orchestrator) logOutcome(ctx context.Context, log *zap.Logger, cycleID string, signal decision.Signal, a decision.Analysis, r decision.ActionResult) {
	outcome := decision.ActionOutcome{
		ID:              uuid.NewString(),
		CycleID:         cycleID,
		CustomerID:      a.CustomerID,
		SignalKind:      signal.Kind(),
		ActionType:      a.Decision.ActionType,
		Priority:        a.Decision.Priority,
		Confidence:      a.Decision.Confidence,
		Status:          r.Status,
		Reason:          r.Reason,
		Reference:       r.Reference,
		DiagnosisTier:   a.Diagnosis.Tier,
		DecisionTier:    a.Decision.Tier,
		AnalysisContext: a.Context,
		CreatedAt:       o.now(),
	}

	if err := o.warehouse.LogOutcome(ctx, outcome); err != nil {
		log.Error("Failed to log action outcome", zap.Error(err))
	} else {
		log.Info("Action outcome logged", zap.String("outcome_id", outcome.ID))
	}

	if o.publisher != nil {
		if err := o.publisher.PublishOutcome(ctx, outcome); err != nil {
			log.Warn("Failed to publish action outcome", zap.Error(err))
		}
	}
}
