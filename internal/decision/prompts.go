package decision

import (
	"encoding/json"
	"fmt"
	"strings"
)

const diagnosisSystem = `You are an expert customer success analyst specializing in churn prediction and root cause analysis.

Analyze the provided customer data and determine the most likely root cause of the risk signal.

Consider:
1. Customer behavior patterns
2. Revenue trends
3. Engagement metrics
4. Support interactions
5. Feature usage patterns

Respond with a single JSON object and nothing else:
{
  "primary_cause": "string",
  "contributing_factors": ["string"],
  "severity": "critical | high | medium | low",
  "recommended_actions": ["string"],
  "confidence": 0.0
}
confidence is a number between 0 and 1.`

const decisionSystem = `You are an automated customer success agent that determines appropriate actions based on churn risk analysis.

Available actions:
1. alert - Send an immediate Slack alert to the customer success team
2. ticket - Create a detailed Jira ticket for investigation
3. email - Send a personalized email to the customer
4. none - No action needed

Consider:
- Churn probability or anomaly strength
- Customer value (revenue)
- Severity of issues
- Urgency of response needed
- Available team resources

Respond with a single JSON object and nothing else:
{
  "action_type": "alert | ticket | email | none",
  "priority": "high | medium | low",
  "reason": "string",
  "action_details": {},
  "confidence": 0.0
}
confidence is a number between 0 and 1.`

func signalHeading(kind SignalKind) string {
	if kind == SignalAnomaly {
		return "Anomaly Signal"
	}
	return "Churn Prediction"
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// DiagnosisPrompt renders the root-cause request for a context.
func DiagnosisPrompt(ac AnalysisContext) Prompt {
	var b strings.Builder
	b.WriteString("Customer Analysis Context:\n\n")
	fmt.Fprintf(&b, "Customer Metrics:\n%s\n\n", indentJSON(ac.customer))
	fmt.Fprintf(&b, "%s:\n%s\n\n", signalHeading(ac.kind), indentJSON(ac.signal))
	fmt.Fprintf(&b, "KPI Context:\n%s\n\n", indentJSON(ac.kpis))
	b.WriteString("Analyze the root cause of this customer's risk and respond in the specified format.")
	return Prompt{System: diagnosisSystem, User: b.String()}
}

// DecisionPrompt renders the action request for a context and its diagnosis.
func DecisionPrompt(ac AnalysisContext, d RootCauseDiagnosis) Prompt {
	var b strings.Builder
	b.WriteString("Analysis Results:\n\n")
	fmt.Fprintf(&b, "Root Cause Analysis:\n%s\n\n", indentJSON(d))
	fmt.Fprintf(&b, "Customer Context:\n%s\n\n", indentJSON(ac.customer))
	fmt.Fprintf(&b, "%s:\n%s\n\n", signalHeading(ac.kind), indentJSON(ac.signal))
	b.WriteString("Determine the most appropriate action for this customer.")
	return Prompt{System: decisionSystem, User: b.String()}
}
