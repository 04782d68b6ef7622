package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDiagnosisStrict(t *testing.T) {
	text := "Here is my analysis:\n```json\n" + `{
  "primary_cause": "Login activity collapsed after onboarding lead left",
  "contributing_factors": ["15 days since last login", "3 open support tickets"],
  "severity": "High",
  "recommended_actions": ["Schedule executive check-in"],
  "confidence": 0.85
}` + "\n```"

	res := ParseDiagnosis(text)
	require.NoError(t, res.Err)
	assert.Equal(t, TierParsed, res.Tier)
	assert.Equal(t, RootCauseDiagnosis{
		PrimaryCause:        "Login activity collapsed after onboarding lead left",
		ContributingFactors: []string{"15 days since last login", "3 open support tickets"},
		Severity:            SeverityHigh,
		RecommendedActions:  []string{"Schedule executive check-in"},
		Confidence:          0.85,
		Tier:                TierParsed,
	}, res.Value)
}

func TestParseDiagnosisFallback(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Severity
	}{
		{"critical keyword", "This customer is in a CRITICAL state.", SeverityCritical},
		{"severe keyword", "severe disengagement", SeverityCritical},
		{"urgent keyword", "needs urgent attention", SeverityCritical},
		{"critical beats high", "high revenue, critical risk", SeverityCritical},
		{"high keyword", "high risk", SeverityHigh},
		{"significant keyword", "significant drop in logins", SeverityHigh},
		{"medium keyword", "medium risk overall", SeverityMedium},
		{"moderate keyword", "moderate concern", SeverityMedium},
		{"no keyword", "the customer seems fine", SeverityLow},
		{"empty", "", SeverityLow},
		{"missing field", `{"primary_cause": "x", "severity": "critical"}`, SeverityCritical},
		{"bad severity", `{"primary_cause": "x", "contributing_factors": [], "severity": "dire", "recommended_actions": [], "confidence": 0.4}`, SeverityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseDiagnosis(tt.text)
			assert.Equal(t, TierFallback, res.Tier)
			assert.Error(t, res.Err)
			assert.Equal(t, tt.want, res.Value.Severity)
			assert.Equal(t, FallbackReason, res.Value.PrimaryCause)
			assert.Equal(t, []string{"Unable to parse specific factors"}, res.Value.ContributingFactors)
			assert.Equal(t, []string{"Review customer manually"}, res.Value.RecommendedActions)
			assert.Equal(t, 0.5, res.Value.Confidence)
		})
	}
}

func TestParseDiagnosisRejectsOutOfRangeConfidence(t *testing.T) {
	text := `{"primary_cause": "x", "contributing_factors": [], "severity": "low", "recommended_actions": [], "confidence": 1.7}`
	res := ParseDiagnosis(text)
	assert.Equal(t, TierFallback, res.Tier)
	assert.ErrorContains(t, res.Err, "confidence")
	assert.Equal(t, 0.5, res.Value.Confidence)
}

func TestParseDecisionStrict(t *testing.T) {
	tests := []struct {
		name string
		text string
		want ActionDecision
	}{
		{
			name: "plain",
			text: `{"action_type": "ticket", "priority": "high", "reason": "Enterprise account at risk", "action_details": {"assignee": "csm"}, "confidence": 0.9}`,
			want: ActionDecision{ActionTicket, PriorityHigh, "Enterprise account at risk", map[string]any{"assignee": "csm"}, 0.9, TierParsed},
		},
		{
			name: "alias and missing details",
			text: `{"action_type": "slack_alert", "priority": "Medium", "reason": "r", "confidence": 0}`,
			want: ActionDecision{ActionAlert, PriorityMedium, "r", map[string]any{}, 0, TierParsed},
		},
		{
			name: "jira alias",
			text: `Decision: {"action_type": "jira_ticket", "priority": "low", "reason": "r", "confidence": 1}`,
			want: ActionDecision{ActionTicket, PriorityLow, "r", map[string]any{}, 1, TierParsed},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseDecision(tt.text)
			require.NoError(t, res.Err)
			assert.Equal(t, TierParsed, res.Tier)
			assert.Equal(t, tt.want, res.Value)
		})
	}
}

func TestParseDecisionFallback(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		action   ActionType
		priority Priority
	}{
		{"jira wins over slack and email", "Post in slack, send an email and open a JIRA issue", ActionTicket, PriorityLow},
		{"ticket keyword", "open a ticket, this is urgent", ActionTicket, PriorityHigh},
		{"slack before email", "email the customer and ping slack, moderate priority", ActionAlert, PriorityMedium},
		{"email only", "send an email", ActionEmail, PriorityLow},
		{"nothing", "no action required", ActionNone, PriorityLow},
		{"critical is high priority", "critical", ActionNone, PriorityHigh},
		{"invalid enum", `{"action_type": "call", "priority": "high", "reason": "r", "confidence": 0.3}`, ActionNone, PriorityHigh},
		{"missing reason", `{"action_type": "email", "priority": "low", "confidence": 0.3}`, ActionEmail, PriorityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseDecision(tt.text)
			assert.Equal(t, TierFallback, res.Tier)
			assert.Error(t, res.Err)
			assert.Equal(t, tt.action, res.Value.ActionType)
			assert.Equal(t, tt.priority, res.Value.Priority)
			assert.Equal(t, FallbackReason, res.Value.Reason)
			assert.Equal(t, map[string]any{}, res.Value.ActionDetails)
			assert.Equal(t, 0.5, res.Value.Confidence)
		})
	}
}

func TestFailedResults(t *testing.T) {
	d := FailedDiagnosis()
	assert.Equal(t, FailedReason, d.PrimaryCause)
	assert.Equal(t, SeverityUnknown, d.Severity)
	assert.Zero(t, d.Confidence)
	assert.NotNil(t, d.ContributingFactors)
	assert.Empty(t, d.ContributingFactors)
	assert.NotNil(t, d.RecommendedActions)
	assert.Equal(t, TierFailed, d.Tier)

	a := FailedDecision()
	assert.Equal(t, ActionNone, a.ActionType)
	assert.Equal(t, PriorityLow, a.Priority)
	assert.Equal(t, FailedReason, a.Reason)
	assert.Zero(t, a.Confidence)
	assert.Equal(t, map[string]any{}, a.ActionDetails)
	assert.Equal(t, TierFailed, a.Tier)
}

func TestConfidenceAlwaysInRange(t *testing.T) {
	texts := []string{
		"",
		"garbage",
		`{"confidence": -3}`,
		`{"primary_cause": "x", "contributing_factors": [], "severity": "low", "recommended_actions": [], "confidence": 42}`,
		`{"action_type": "none", "priority": "low", "reason": "r", "confidence": -0.1}`,
		`{"action_type": "none", "priority": "low", "reason": "r", "confidence": 0.25}`,
	}
	for _, text := range texts {
		d := ParseDiagnosis(text).Value
		assert.GreaterOrEqual(t, d.Confidence, 0.0, text)
		assert.LessOrEqual(t, d.Confidence, 1.0, text)

		a := ParseDecision(text).Value
		assert.GreaterOrEqual(t, a.Confidence, 0.0, text)
		assert.LessOrEqual(t, a.Confidence, 1.0, text)
	}
}
