package decision

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Record is one row from the warehouse, keyed by column name.
type Record map[string]any

// String returns the field rendered as text, or "" when absent.
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Float returns the field as a float64 when it holds a number.
func (r Record) Float(key string) (float64, bool) {
	return toFloat(r[key])
}

// CustomerID returns the record's customer_id field.
func (r Record) CustomerID() string {
	return r.String("customer_id")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case interface{ Float64() (float64, error) }:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityUnknown  Severity = "unknown"
)

type ActionType string

const (
	ActionAlert  ActionType = "alert"
	ActionTicket ActionType = "ticket"
	ActionEmail  ActionType = "email"
	ActionNone   ActionType = "none"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Tier records which branch produced a diagnosis or decision.
type Tier string

const (
	TierParsed   Tier = "parsed"
	TierFallback Tier = "fallback"
	TierFailed   Tier = "failed"
)

// RootCauseDiagnosis explains why a customer is at risk.
type RootCauseDiagnosis struct {
	PrimaryCause        string   `json:"primary_cause"`
	ContributingFactors []string `json:"contributing_factors"`
	Severity            Severity `json:"severity"`
	RecommendedActions  []string `json:"recommended_actions"`
	Confidence          float64  `json:"confidence"`
	Tier                Tier     `json:"tier"`
}

// ActionDecision is the remediation chosen for a diagnosis.
type ActionDecision struct {
	ActionType    ActionType     `json:"action_type"`
	Priority      Priority       `json:"priority"`
	Reason        string         `json:"reason"`
	ActionDetails map[string]any `json:"action_details"`
	Confidence    float64        `json:"confidence"`
	Tier          Tier           `json:"tier"`
}

// Analysis bundles everything decided for one signal.
type Analysis struct {
	CustomerID string             `json:"customer_id"`
	AnalyzedAt time.Time          `json:"analyzed_at"`
	Context    AnalysisContext    `json:"analysis_context"`
	Diagnosis  RootCauseDiagnosis `json:"root_cause_analysis"`
	Decision   ActionDecision     `json:"action_decision"`
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ActionResult is what a channel reports after a dispatch attempt.
type ActionResult struct {
	ActionType ActionType     `json:"action_type"`
	Status     Status         `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	Reference  string         `json:"reference,omitempty"`
	URL        string         `json:"url,omitempty"`
	CustomerID string         `json:"customer_id"`
	Priority   Priority       `json:"priority"`
	Confidence float64        `json:"confidence"`
	ExecutedAt time.Time      `json:"executed_at"`
	Details    map[string]any `json:"details,omitempty"`
}

// ActionOutcome is the retraining record written after every dispatch.
type ActionOutcome struct {
	ID              string          `json:"id"`
	CycleID         string          `json:"cycle_id"`
	CustomerID      string          `json:"customer_id"`
	SignalKind      SignalKind      `json:"signal_kind"`
	ActionType      ActionType      `json:"action_type"`
	Priority        Priority        `json:"priority"`
	Confidence      float64         `json:"confidence"`
	Status          Status          `json:"status"`
	Reason          string          `json:"reason,omitempty"`
	Reference       string          `json:"reference,omitempty"`
	DiagnosisTier   Tier            `json:"diagnosis_tier"`
	DecisionTier    Tier            `json:"decision_tier"`
	AnalysisContext AnalysisContext `json:"analysis_context"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Prompt is a system instruction plus the user turn sent to a backend.
type Prompt struct {
	System string
	User   string
}

// Backend is a reasoning model that completes prompts with free-form text.
type Backend interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}
