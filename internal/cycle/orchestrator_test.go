package cycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/refset/churn-decision-agent/internal/decision"
)

type fakeWarehouse struct {
	customers   []decision.Record
	atRisk      []decision.Record
	anomalies   map[string][]decision.Record
	anomalyErrs map[string]error
	details     map[string]decision.Record
	extractErr  error
	predictErr  error
	logErr      error

	queried  []string
	outcomes []decision.ActionOutcome
}

func (w *fakeWarehouse) ExtractCustomers(context.Context, int) ([]decision.Record, error) {
	return w.customers, w.extractErr
}

func (w *fakeWarehouse) AtRiskCustomers(context.Context, int) ([]decision.Record, error) {
	return w.atRisk, w.predictErr
}

func (w *fakeWarehouse) Anomalies(_ context.Context, metric string, _ float64) ([]decision.Record, error) {
	w.queried = append(w.queried, metric)
	if err := w.anomalyErrs[metric]; err != nil {
		return nil, err
	}
	return w.anomalies[metric], nil
}

func (w *fakeWarehouse) CustomerDetail(_ context.Context, id string) (decision.Record, error) {
	return w.details[id], nil
}

func (w *fakeWarehouse) LogOutcome(_ context.Context, o decision.ActionOutcome) error {
	w.outcomes = append(w.outcomes, o)
	return w.logErr
}

type fakeKPIs struct {
	snapshot map[string]any
	err      error
}

func (k fakeKPIs) Snapshot(context.Context) (map[string]any, error) { return k.snapshot, k.err }

// fakeAnalyzer picks the action per customer id; unlisted customers get none.
type fakeAnalyzer struct {
	actions map[string]decision.ActionType
	panicOn string
	seen    []decision.Signal
}

func (a *fakeAnalyzer) Analyze(_ context.Context, customer decision.Record, signal decision.Signal, kpis map[string]any) decision.Analysis {
	a.seen = append(a.seen, signal)
	id := customer.CustomerID()
	if id == a.panicOn {
		panic("analyzer exploded")
	}
	action, ok := a.actions[id]
	if !ok {
		action = decision.ActionNone
	}
	return decision.Analysis{
		CustomerID: id,
		Context:    decision.Assembler{}.Assemble(customer, signal, kpis),
		Diagnosis:  decision.RootCauseDiagnosis{Severity: decision.SeverityHigh, Tier: decision.TierParsed},
		Decision: decision.ActionDecision{
			ActionType: action,
			Priority:   decision.PriorityHigh,
			Confidence: 0.8,
			Tier:       decision.TierParsed,
		},
	}
}

type fakeDispatcher struct {
	fail map[string]bool
	sent []string
}

func (d *fakeDispatcher) Send(_ context.Context, customer decision.Record, a decision.Analysis) decision.ActionResult {
	id := customer.CustomerID()
	d.sent = append(d.sent, id)
	status := decision.StatusSuccess
	if d.fail[id] {
		status = decision.StatusFailed
	}
	return decision.ActionResult{ActionType: a.Decision.ActionType, Status: status, CustomerID: id}
}

type fakePublisher struct{ outcomes []decision.ActionOutcome }

func (p *fakePublisher) PublishOutcome(_ context.Context, o decision.ActionOutcome) error {
	p.outcomes = append(p.outcomes, o)
	return nil
}

var metrics = []string{"login_frequency_30d", "purchase_frequency_30d", "support_tickets_30d", "monthly_revenue"}

func newOrchestrator(t *testing.T, wh *fakeWarehouse, kpis KPISource, an *fakeAnalyzer, d *fakeDispatcher, opts Options) *Orchestrator {
	t.Helper()
	if opts.Metrics == nil {
		opts.Metrics = metrics
	}
	opts.WindowDays = 30
	opts.Threshold = 2.0
	return New(wh, kpis, an, d, zaptest.NewLogger(t), opts)
}

func customer(id string) decision.Record {
	return decision.Record{"customer_id": id, "monthly_revenue": 500.0}
}

func TestRunCycleEmpty(t *testing.T) {
	wh := &fakeWarehouse{}
	o := newOrchestrator(t, wh, fakeKPIs{}, &fakeAnalyzer{}, &fakeDispatcher{}, Options{})

	res := o.RunCycle(context.Background())

	assert.Zero(t, res.CustomersAnalyzed)
	assert.Zero(t, res.Predictions)
	assert.Zero(t, res.Anomalies)
	assert.Zero(t, res.ActionsExecuted)
	assert.Zero(t, res.SuccessfulActions)
	assert.Zero(t, res.FailedActions)
	require.NotNil(t, res.Errors)
	assert.Empty(t, res.Errors)
	assert.True(t, res.Completed())
	assert.NotEmpty(t, res.CycleID)
	assert.False(t, res.CycleEnd.Before(res.CycleStart))
	assert.Equal(t, metrics, wh.queried)
}

func TestRunCycleMissingCustomerIsSkipped(t *testing.T) {
	wh := &fakeWarehouse{
		customers: []decision.Record{customer("CUST-404")},
		atRisk:    []decision.Record{{"customer_id": "CUST-404", "churn_probability": 0.9}},
	}
	an := &fakeAnalyzer{actions: map[string]decision.ActionType{"CUST-404": decision.ActionAlert}}
	d := &fakeDispatcher{}
	o := newOrchestrator(t, wh, fakeKPIs{}, an, d, Options{})

	res := o.RunCycle(context.Background())

	assert.Equal(t, 1, res.Predictions)
	assert.Zero(t, res.ActionsExecuted)
	assert.Empty(t, res.Errors)
	assert.Empty(t, an.seen)
	assert.Empty(t, d.sent)
}

func TestRunCycleCountsSuccessAndFailure(t *testing.T) {
	wh := &fakeWarehouse{
		customers: []decision.Record{customer("CUST-001"), customer("CUST-002"), customer("CUST-003")},
		atRisk: []decision.Record{
			{"customer_id": "CUST-001", "churn_probability": 0.82, "predicted_churn": true},
			{"customer_id": "CUST-002", "churn_probability": 0.74, "predicted_churn": true},
			{"customer_id": "CUST-003", "churn_probability": 0.71, "predicted_churn": true},
		},
		details: map[string]decision.Record{
			"CUST-001": customer("CUST-001"),
			"CUST-002": customer("CUST-002"),
			"CUST-003": customer("CUST-003"),
		},
	}
	an := &fakeAnalyzer{actions: map[string]decision.ActionType{
		"CUST-001": decision.ActionTicket,
		"CUST-002": decision.ActionEmail,
	}}
	d := &fakeDispatcher{fail: map[string]bool{"CUST-002": true}}
	pub := &fakePublisher{}
	o := newOrchestrator(t, wh, fakeKPIs{snapshot: map[string]any{"monthly_churn_rate": 0.04}}, an, d, Options{Publisher: pub})

	res := o.RunCycle(context.Background())

	assert.Equal(t, 3, res.CustomersAnalyzed)
	assert.Equal(t, 3, res.Predictions)
	assert.Equal(t, 2, res.ActionsExecuted)
	assert.Equal(t, 1, res.SuccessfulActions)
	assert.Equal(t, 1, res.FailedActions)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"CUST-001", "CUST-002"}, d.sent)

	require.Len(t, wh.outcomes, 2)
	first := wh.outcomes[0]
	assert.Equal(t, res.CycleID, first.CycleID)
	assert.Equal(t, "CUST-001", first.CustomerID)
	assert.Equal(t, decision.SignalPrediction, first.SignalKind)
	assert.Equal(t, decision.ActionTicket, first.ActionType)
	assert.Equal(t, decision.StatusSuccess, first.Status)
	assert.Equal(t, 0.04, first.AnalysisContext.KPIMetrics()["monthly_churn_rate"])
	assert.Equal(t, decision.StatusFailed, wh.outcomes[1].Status)
	assert.Len(t, pub.outcomes, 2)
}

func TestRunCycleOutcomeLogFailureIsNotActionFailure(t *testing.T) {
	wh := &fakeWarehouse{
		atRisk:  []decision.Record{{"customer_id": "CUST-001"}},
		details: map[string]decision.Record{"CUST-001": customer("CUST-001")},
		logErr:  errors.New("insert failed"),
	}
	an := &fakeAnalyzer{actions: map[string]decision.ActionType{"CUST-001": decision.ActionAlert}}
	o := newOrchestrator(t, wh, fakeKPIs{}, an, &fakeDispatcher{}, Options{})

	res := o.RunCycle(context.Background())

	assert.Equal(t, 1, res.SuccessfulActions)
	assert.Zero(t, res.FailedActions)
	assert.Empty(t, res.Errors)
}

func TestRunCycleStageFailure(t *testing.T) {
	tests := []struct {
		name  string
		wh    *fakeWarehouse
		kpis  fakeKPIs
		stage Stage
	}{
		{"extract", &fakeWarehouse{extractErr: errors.New("warehouse unreachable")}, fakeKPIs{}, StageExtract},
		{"predict", &fakeWarehouse{predictErr: errors.New("model missing")}, fakeKPIs{}, StagePredict},
		{"kpi", &fakeWarehouse{}, fakeKPIs{err: errors.New("looker down")}, StageFetchKPI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(t, tt.wh, tt.kpis, &fakeAnalyzer{}, &fakeDispatcher{}, Options{})

			res := o.RunCycle(context.Background())

			require.Len(t, res.Errors, 1)
			assert.Contains(t, res.Errors[0], string(tt.stage)+": ")
			assert.Equal(t, tt.stage, res.Stage)
			assert.False(t, res.Completed())
			assert.False(t, res.CycleEnd.IsZero())
		})
	}
}

func TestRunCycleSkipsFailingMetric(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	wh := &fakeWarehouse{
		anomalies: map[string][]decision.Record{
			"monthly_revenue": {{"customer_id": "CUST-004", "metric_value": 12.0, "z_score": -2.4, "anomaly_flag": "ANOMALY"}},
		},
		anomalyErrs: map[string]error{"login_frequency_30d": errors.New("column missing")},
		details:     map[string]decision.Record{"CUST-004": customer("CUST-004")},
	}
	an := &fakeAnalyzer{actions: map[string]decision.ActionType{"CUST-004": decision.ActionAlert}}
	o := New(wh, fakeKPIs{}, an, &fakeDispatcher{}, zap.New(core), Options{WindowDays: 30, Threshold: 2, Metrics: metrics})

	res := o.RunCycle(context.Background())

	assert.True(t, res.Completed())
	assert.Equal(t, 1, res.Anomalies)
	assert.Equal(t, 1, res.SuccessfulActions)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, logs.FilterMessage("Failed to detect anomalies for metric").Len())

	require.Len(t, an.seen, 1)
	anomaly, ok := an.seen[0].(decision.Anomaly)
	require.True(t, ok)
	assert.Equal(t, "monthly_revenue", anomaly.MetricName)
	require.Len(t, wh.outcomes, 1)
	assert.Equal(t, decision.SignalAnomaly, wh.outcomes[0].SignalKind)
}

func TestRunCycleRecoversItemPanic(t *testing.T) {
	wh := &fakeWarehouse{
		atRisk: []decision.Record{{"customer_id": "CUST-001"}, {"customer_id": "CUST-002"}},
		details: map[string]decision.Record{
			"CUST-001": customer("CUST-001"),
			"CUST-002": customer("CUST-002"),
		},
	}
	an := &fakeAnalyzer{
		panicOn: "CUST-001",
		actions: map[string]decision.ActionType{"CUST-002": decision.ActionEmail},
	}
	o := newOrchestrator(t, wh, fakeKPIs{}, an, &fakeDispatcher{}, Options{})

	res := o.RunCycle(context.Background())

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "CUST-001")
	assert.Contains(t, res.Errors[0], "analyzer exploded")
	assert.Equal(t, 1, res.SuccessfulActions)
	assert.True(t, res.Completed())
}

func TestRunCycleUsesClock(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ticks := []time.Time{start, start.Add(90 * time.Second)}
	now := func() time.Time {
		tick := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return tick
	}
	o := newOrchestrator(t, &fakeWarehouse{}, fakeKPIs{}, &fakeAnalyzer{}, &fakeDispatcher{}, Options{Now: now})

	res := o.RunCycle(context.Background())

	assert.Equal(t, start, res.CycleStart)
	assert.Equal(t, 90.0, res.DurationSeconds)
}
