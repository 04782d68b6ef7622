package decision

import (
	"encoding/json"
	"maps"
	"time"
)

// CustomerFields are the customer metrics every context carries, as Unknown
// when the warehouse row lacks them.
var CustomerFields = []string{
	"customer_id",
	"monthly_revenue",
	"total_revenue",
	"days_since_last_login",
	"login_frequency_30d",
	"purchase_frequency_30d",
	"support_tickets_30d",
	"feature_usage_count",
}

// AnalysisContext is the read-only snapshot a diagnosis and decision are
// made from. Accessors return copies.
type AnalysisContext struct {
	customerID string
	kind       SignalKind
	customer   map[string]any
	signal     map[string]any
	kpis       map[string]any
	timestamp  time.Time
}

func (c AnalysisContext) CustomerID() string { return c.customerID }
func (c AnalysisContext) SignalKind() SignalKind { return c.kind }
func (c AnalysisContext) CustomerMetrics() map[string]any { return maps.Clone(c.customer) }
func (c AnalysisContext) SignalMetrics() map[string]any { return maps.Clone(c.signal) }
func (c AnalysisContext) KPIMetrics() map[string]any { return maps.Clone(c.kpis) }
func (c AnalysisContext) Timestamp() time.Time { return c.timestamp }

type contextJSON struct {
	CustomerID      string         `json:"customer_id"`
	SignalKind      SignalKind     `json:"signal_kind"`
	CustomerMetrics map[string]any `json:"customer_metrics"`
	SignalMetrics   map[string]any `json:"signal_metrics"`
	KPIMetrics      map[string]any `json:"kpi_metrics"`
	Timestamp       time.Time      `json:"timestamp"`
}

func (c AnalysisContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(contextJSON{
		CustomerID:      c.customerID,
		SignalKind:      c.kind,
		CustomerMetrics: c.customer,
		SignalMetrics:   c.signal,
		KPIMetrics:      c.kpis,
		Timestamp:       c.timestamp,
	})
}

// Assembler merges a customer row, a signal and a KPI snapshot into an
// AnalysisContext. It never fails.
type Assembler struct {
	Now func() time.Time
}

// Assemble builds the context. A nil customer row or KPI snapshot yields
// empty groups; absent fields become Unknown rather than being dropped.
func (a Assembler) Assemble(customer Record, signal Signal, kpis map[string]any) AnalysisContext {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}

	cm := make(map[string]any, len(customer)+len(CustomerFields))
	for k, v := range customer {
		if v == nil {
			v = Unknown
		}
		cm[k] = v
	}
	for _, f := range CustomerFields {
		if _, ok := cm[f]; !ok {
			cm[f] = Unknown
		}
	}

	customerID := customer.CustomerID()
	if customerID == "" && signal != nil {
		customerID = signal.Customer()
	}
	if customerID != "" {
		cm["customer_id"] = customerID
	}

	var (
		kind SignalKind
		sm   = map[string]any{}
	)
	if signal != nil {
		kind = signal.Kind()
		sm = signal.metrics()
	}

	km := make(map[string]any, len(kpis))
	for name, v := range kpis {
		if v == nil {
			v = Unknown
		}
		km[name] = v
	}

	return AnalysisContext{
		customerID: customerID,
		kind:       kind,
		customer:   cm,
		signal:     sm,
		kpis:       km,
		timestamp:  now(),
	}
}
