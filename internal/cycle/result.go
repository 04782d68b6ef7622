package cycle

import (
	"fmt"
	"time"
)

// Stage is a step of one cycle, in execution order.
type Stage string

const (
	StageStart            Stage = "START"
	StageExtract          Stage = "EXTRACT"
	StagePredict          Stage = "PREDICT"
	StageDetectAnomalies  Stage = "DETECT_ANOMALIES"
	StageFetchKPI         Stage = "FETCH_KPI"
	StageProcessRisks     Stage = "PROCESS_RISKS"
	StageProcessAnomalies Stage = "PROCESS_ANOMALIES"
	StageFinalize         Stage = "FINALIZE"
)

// Result accumulates the statistics of one cycle. It is owned by the
// orchestrator until RunCycle returns it.
type Result struct {
	CycleID           string        `json:"cycle_id"`
	CycleStart        time.Time     `json:"cycle_start"`
	CycleEnd          time.Time     `json:"cycle_end"`
	Duration          time.Duration `json:"-"`
	DurationSeconds   float64       `json:"cycle_duration_seconds"`
	Stage             Stage         `json:"stage"`
	CustomersAnalyzed int           `json:"customers_analyzed"`
	Predictions       int           `json:"churn_predictions"`
	Anomalies         int           `json:"anomalies_detected"`
	ActionsExecuted   int           `json:"actions_executed"`
	SuccessfulActions int           `json:"successful_actions"`
	FailedActions     int           `json:"failed_actions"`
	Errors            []string      `json:"errors"`
}

func newResult(id string, start time.Time) *Result {
	return &Result{
		CycleID:    id,
		CycleStart: start,
		Stage:      StageStart,
		Errors:     []string{},
	}
}

// Completed reports whether the cycle reached FINALIZE without a stage error.
func (r *Result) Completed() bool {
	return r.Stage == StageFinalize
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) finish(end time.Time) {
	r.CycleEnd = end
	r.Duration = end.Sub(r.CycleStart)
	r.DurationSeconds = r.Duration.Seconds()
}
