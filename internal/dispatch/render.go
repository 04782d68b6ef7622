package dispatch

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/refset/churn-decision-agent/internal/decision"
)

const notAvailable = "N/A"

func isAnomaly(a decision.Analysis) bool {
	return a.Context.SignalKind() == decision.SignalAnomaly
}

func headline(a decision.Analysis) string {
	if isAnomaly(a) {
		return "Anomaly Alert"
	}
	return "Churn Risk Alert"
}

// signalField is the label and value describing what triggered the analysis.
func signalField(a decision.Analysis) (string, string) {
	sm := decision.Record(a.Context.SignalMetrics())
	if isAnomaly(a) {
		return "Anomaly", fmt.Sprintf("%s (z-score %s)", sm.String("metric_name"), number(sm["z_score"], 2))
	}
	return "Churn Probability", percent(sm["churn_probability"])
}

// summaryLine is the one-line notification text.
func summaryLine(a decision.Analysis) string {
	sm := decision.Record(a.Context.SignalMetrics())
	if isAnomaly(a) {
		return fmt.Sprintf("Anomaly Alert: Customer %s has an anomalous %s (z-score %s)",
			a.CustomerID, sm.String("metric_name"), number(sm["z_score"], 2))
	}
	return fmt.Sprintf("Churn Risk Alert: Customer %s has %s churn probability",
		a.CustomerID, percent(sm["churn_probability"]))
}

func percent(v any) string {
	f, ok := decision.Record{"v": v}.Float("v")
	if !ok {
		return notAvailable
	}
	return strconv.FormatFloat(f*100, 'f', 1, 64) + "%"
}

func number(v any, prec int) string {
	f, ok := decision.Record{"v": v}.Float("v")
	if !ok {
		return notAvailable
	}
	return strconv.FormatFloat(f, 'f', prec, 64)
}

// money renders a whole-dollar amount with thousands separators.
func money(v any) string {
	f, ok := decision.Record{"v": v}.Float("v")
	if !ok {
		return notAvailable
	}
	n := int64(math.Round(f))
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return sign + "$" + b.String()
}

// value renders a customer field, N/A when absent or unknown.
func value(r decision.Record, key string) string {
	s := r.String(key)
	if s == "" || s == decision.Unknown {
		return notAvailable
	}
	return s
}

func priorityEmoji(p decision.Priority) string {
	switch p {
	case decision.PriorityHigh:
		return "🔴"
	case decision.PriorityMedium:
		return "🟡"
	case decision.PriorityLow:
		return "🟢"
	}
	return "⚪"
}

func primaryCause(d decision.RootCauseDiagnosis) string {
	if d.PrimaryCause == "" {
		return "Unknown"
	}
	return d.PrimaryCause
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "* None"
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "* " + item
	}
	return strings.Join(lines, "\n")
}
