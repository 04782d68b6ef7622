package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	FallbackReason = "Analysis completed (fallback parsing)"
	FailedReason   = "Analysis failed"

	fallbackConfidence = 0.5
)

// Result is the interpretation of one backend response. Value is always
// usable; Tier says how it was obtained and Err why it was not parsed.
type Result[T any] struct {
	Tier  Tier
	Value T
	Err   error
}

type keywordRule[T any] struct {
	keywords []string
	value    T
}

// Rules are checked in order; the first rule with any keyword present wins.
var (
	severityRules = []keywordRule[Severity]{
		{[]string{"critical", "severe", "urgent"}, SeverityCritical},
		{[]string{"high", "significant"}, SeverityHigh},
		{[]string{"medium", "moderate"}, SeverityMedium},
	}
	actionRules = []keywordRule[ActionType]{
		{[]string{"jira", "ticket"}, ActionTicket},
		{[]string{"slack"}, ActionAlert},
		{[]string{"email"}, ActionEmail},
	}
	priorityRules = []keywordRule[Priority]{
		{[]string{"high", "urgent", "critical"}, PriorityHigh},
		{[]string{"medium", "moderate"}, PriorityMedium},
	}
)

func matchKeywords[T any](text string, rules []keywordRule[T], otherwise T) T {
	lower := strings.ToLower(text)
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.value
			}
		}
	}
	return otherwise
}

// extractJSON returns the first JSON object in text. Markdown code fences and
// surrounding prose are tolerated.
func extractJSON(text string) (json.RawMessage, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, errors.New("no JSON object in response")
	}
	var raw json.RawMessage
	if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode JSON object: %w", err)
	}
	return raw, nil
}

type rawDiagnosis struct {
	PrimaryCause        *string   `json:"primary_cause"`
	ContributingFactors *[]string `json:"contributing_factors"`
	Severity            *string   `json:"severity"`
	RecommendedActions  *[]string `json:"recommended_actions"`
	Confidence          *float64  `json:"confidence"`
}

func strictDiagnosis(text string) (RootCauseDiagnosis, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return RootCauseDiagnosis{}, err
	}
	var rd rawDiagnosis
	if err := json.Unmarshal(raw, &rd); err != nil {
		return RootCauseDiagnosis{}, fmt.Errorf("decode diagnosis: %w", err)
	}

	switch {
	case rd.PrimaryCause == nil || strings.TrimSpace(*rd.PrimaryCause) == "":
		return RootCauseDiagnosis{}, errors.New("primary_cause missing")
	case rd.ContributingFactors == nil:
		return RootCauseDiagnosis{}, errors.New("contributing_factors missing")
	case rd.Severity == nil:
		return RootCauseDiagnosis{}, errors.New("severity missing")
	case rd.RecommendedActions == nil:
		return RootCauseDiagnosis{}, errors.New("recommended_actions missing")
	case rd.Confidence == nil:
		return RootCauseDiagnosis{}, errors.New("confidence missing")
	}

	severity, err := parseSeverity(*rd.Severity)
	if err != nil {
		return RootCauseDiagnosis{}, err
	}
	if err := checkConfidence(*rd.Confidence); err != nil {
		return RootCauseDiagnosis{}, err
	}

	return RootCauseDiagnosis{
		PrimaryCause:        *rd.PrimaryCause,
		ContributingFactors: *rd.ContributingFactors,
		Severity:            severity,
		RecommendedActions:  *rd.RecommendedActions,
		Confidence:          *rd.Confidence,
		Tier:                TierParsed,
	}, nil
}

// ParseDiagnosis interprets a backend response as a diagnosis, falling back
// to the severity keyword table when the response is not well-formed.
func ParseDiagnosis(text string) Result[RootCauseDiagnosis] {
	d, err := strictDiagnosis(text)
	if err == nil {
		return Result[RootCauseDiagnosis]{Tier: TierParsed, Value: d}
	}
	return Result[RootCauseDiagnosis]{Tier: TierFallback, Value: fallbackDiagnosis(text), Err: err}
}

func fallbackDiagnosis(text string) RootCauseDiagnosis {
	return RootCauseDiagnosis{
		PrimaryCause:        FallbackReason,
		ContributingFactors: []string{"Unable to parse specific factors"},
		Severity:            matchKeywords(text, severityRules, SeverityLow),
		RecommendedActions:  []string{"Review customer manually"},
		Confidence:          fallbackConfidence,
		Tier:                TierFallback,
	}
}

// FailedDiagnosis is returned when no response could be obtained at all.
func FailedDiagnosis() RootCauseDiagnosis {
	return RootCauseDiagnosis{
		PrimaryCause:        FailedReason,
		ContributingFactors: []string{},
		Severity:            SeverityUnknown,
		RecommendedActions:  []string{},
		Confidence:          0,
		Tier:                TierFailed,
	}
}

type rawDecision struct {
	ActionType    *string        `json:"action_type"`
	Priority      *string        `json:"priority"`
	Reason        *string        `json:"reason"`
	ActionDetails map[string]any `json:"action_details"`
	Confidence    *float64       `json:"confidence"`
}

func strictDecision(text string) (ActionDecision, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return ActionDecision{}, err
	}
	var rd rawDecision
	if err := json.Unmarshal(raw, &rd); err != nil {
		return ActionDecision{}, fmt.Errorf("decode decision: %w", err)
	}

	switch {
	case rd.ActionType == nil:
		return ActionDecision{}, errors.New("action_type missing")
	case rd.Priority == nil:
		return ActionDecision{}, errors.New("priority missing")
	case rd.Reason == nil:
		return ActionDecision{}, errors.New("reason missing")
	case rd.Confidence == nil:
		return ActionDecision{}, errors.New("confidence missing")
	}

	action, err := parseActionType(*rd.ActionType)
	if err != nil {
		return ActionDecision{}, err
	}
	priority, err := parsePriority(*rd.Priority)
	if err != nil {
		return ActionDecision{}, err
	}
	if err := checkConfidence(*rd.Confidence); err != nil {
		return ActionDecision{}, err
	}

	details := rd.ActionDetails
	if details == nil {
		details = map[string]any{}
	}
	return ActionDecision{
		ActionType:    action,
		Priority:      priority,
		Reason:        *rd.Reason,
		ActionDetails: details,
		Confidence:    *rd.Confidence,
		Tier:          TierParsed,
	}, nil
}

// ParseDecision interprets a backend response as an action decision, falling
// back to the action and priority keyword tables.
func ParseDecision(text string) Result[ActionDecision] {
	d, err := strictDecision(text)
	if err == nil {
		return Result[ActionDecision]{Tier: TierParsed, Value: d}
	}
	return Result[ActionDecision]{Tier: TierFallback, Value: fallbackDecision(text), Err: err}
}

func fallbackDecision(text string) ActionDecision {
	return ActionDecision{
		ActionType:    matchKeywords(text, actionRules, ActionNone),
		Priority:      matchKeywords(text, priorityRules, PriorityLow),
		Reason:        FallbackReason,
		ActionDetails: map[string]any{},
		Confidence:    fallbackConfidence,
		Tier:          TierFallback,
	}
}

// FailedDecision is the conservative decision used when the backend could
// not be reached.
func FailedDecision() ActionDecision {
	return ActionDecision{
		ActionType:    ActionNone,
		Priority:      PriorityLow,
		Reason:        FailedReason,
		ActionDetails: map[string]any{},
		Confidence:    0,
		Tier:          TierFailed,
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func parseSeverity(s string) (Severity, error) {
	switch sev := Severity(normalize(s)); sev {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityUnknown:
		return sev, nil
	}
	return "", fmt.Errorf("unrecognised severity %q", s)
}

func parseActionType(s string) (ActionType, error) {
	switch normalize(s) {
	case "alert", "slack", "slack_alert":
		return ActionAlert, nil
	case "ticket", "jira", "jira_ticket":
		return ActionTicket, nil
	case "email":
		return ActionEmail, nil
	case "none":
		return ActionNone, nil
	}
	return "", fmt.Errorf("unrecognised action_type %q", s)
}

func parsePriority(s string) (Priority, error) {
	switch p := Priority(normalize(s)); p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return p, nil
	}
	return "", fmt.Errorf("unrecognised priority %q", s)
}

func checkConfidence(c float64) error {
	if c < 0 || c > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", c)
	}
	return nil
}
