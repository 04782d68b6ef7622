package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/refset/churn-decision-agent/internal/decision"
)

var jiraPriorities = map[decision.Priority]string{
	decision.PriorityHigh:   "High",
	decision.PriorityMedium: "Medium",
	decision.PriorityLow:    "Low",
}

// Jira creates investigation tickets through the Jira REST API v2.
type Jira struct {
	baseURL       string
	username      string
	apiToken      string
	projectKey    string
	customerField string
	httpClient    *http.Client
}

// NewJira builds a ticket channel. customerField, when set, is the custom
// field id (e.g. customfield_10001) that receives the customer id.
func NewJira(baseURL, username, apiToken, projectKey, customerField string) *Jira {
	return &Jira{
		baseURL:       strings.TrimRight(baseURL, "/"),
		username:      username,
		apiToken:      apiToken,
		projectKey:    projectKey,
		customerField: customerField,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

type jiraCreated struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

func (j *Jira) Deliver(ctx context.Context, customer decision.Record, a decision.Analysis) (Receipt, error) {
	payload, err := json.Marshal(map[string]any{"fields": j.issueFields(customer, a)})
	if err != nil {
		return Receipt{}, fmt.Errorf("encode issue: %w", err)
	}

	var created jiraCreated
	if err := j.post(ctx, j.baseURL+"/rest/api/2/issue", payload, &created); err != nil {
		return Receipt{}, err
	}
	return Receipt{
		Reference: created.Key,
		URL:       fmt.Sprintf("%s/browse/%s", j.baseURL, created.Key),
		Details:   map[string]any{"jira_id": created.ID},
	}, nil
}

func (j *Jira) issueFields(customer decision.Record, a decision.Analysis) map[string]any {
	priority, ok := jiraPriorities[a.Decision.Priority]
	if !ok {
		priority = "Medium"
	}
	_, signalValue := signalField(a)

	summary := fmt.Sprintf("%s: Customer %s - %s churn probability", headline(a), a.CustomerID, signalValue)
	if isAnomaly(a) {
		summary = fmt.Sprintf("%s: Customer %s - %s", headline(a), a.CustomerID, signalValue)
	}

	fields := map[string]any{
		"project":     map[string]string{"key": j.projectKey},
		"summary":     summary,
		"description": jiraDescription(customer, a),
		"issuetype":   map[string]string{"name": "Task"},
		"priority":    map[string]string{"name": priority},
		"labels":      []string{"churn-risk", "automated-alert", "customer-" + a.CustomerID},
	}
	if j.customerField != "" {
		fields[j.customerField] = a.CustomerID
	}
	return fields
}

// jiraDescription renders the ticket body in Jira wiki markup.
func jiraDescription(customer decision.Record, a decision.Analysis) string {
	signalLabel, signalValue := signalField(a)
	d := a.Diagnosis

	var b strings.Builder
	fmt.Fprintf(&b, "h2. Customer %s\n\n", headline(a))
	b.WriteString("h3. Customer Information\n")
	fmt.Fprintf(&b, "* Customer ID: %s\n", a.CustomerID)
	fmt.Fprintf(&b, "* Monthly Revenue: %s\n", money(customer["monthly_revenue"]))
	fmt.Fprintf(&b, "* Total Revenue: %s\n", money(customer["total_revenue"]))
	fmt.Fprintf(&b, "* Days Since Last Login: %s\n", value(customer, "days_since_last_login"))
	fmt.Fprintf(&b, "* Login Frequency (30d): %s\n", value(customer, "login_frequency_30d"))
	fmt.Fprintf(&b, "* Support Tickets (30d): %s\n\n", value(customer, "support_tickets_30d"))

	b.WriteString("h3. Risk Analysis\n")
	fmt.Fprintf(&b, "* %s: %s\n", signalLabel, signalValue)
	fmt.Fprintf(&b, "* Primary Root Cause: %s\n", primaryCause(d))
	fmt.Fprintf(&b, "* Severity: %s\n", d.Severity)
	fmt.Fprintf(&b, "* Confidence: %s\n\n", percent(d.Confidence))

	fmt.Fprintf(&b, "h3. Contributing Factors\n%s\n\n", bullets(d.ContributingFactors))
	fmt.Fprintf(&b, "h3. Recommended Actions\n%s\n\n", bullets(d.RecommendedActions))

	b.WriteString("h3. Analysis Context\n")
	fmt.Fprintf(&b, "* Analysis Timestamp: %s\n", a.AnalyzedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "* Decision Confidence: %s\n\n", percent(a.Decision.Confidence))
	b.WriteString("----\n_This ticket was created automatically by the churn decision agent._")
	return b.String()
}

func (j *Jira) post(ctx context.Context, url string, payload []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.SetBasicAuth(j.username, j.apiToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Jira API error %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(result)
}
