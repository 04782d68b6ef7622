package decision

// Unknown stands in for any field the source did not supply.
const Unknown = "unknown"

type SignalKind string

const (
	SignalPrediction SignalKind = "prediction"
	SignalAnomaly    SignalKind = "anomaly"
)

// Signal is the reason a customer is being analyzed: a churn Prediction or a
// metric Anomaly. Both share the diagnose/select pipeline and differ only in
// the metrics they contribute.
type Signal interface {
	Kind() SignalKind
	Customer() string
	metrics() map[string]any
}

// Prediction is a churn model verdict for one customer.
type Prediction struct {
	CustomerID       string
	ChurnProbability *float64
	PredictedChurn   *bool
}

func (p Prediction) Kind() SignalKind { return SignalPrediction }
func (p Prediction) Customer() string { return p.CustomerID }

func (p Prediction) metrics() map[string]any {
	m := map[string]any{
		"churn_probability": Unknown,
		"predicted_churn":   Unknown,
	}
	if p.ChurnProbability != nil {
		m["churn_probability"] = *p.ChurnProbability
	}
	if p.PredictedChurn != nil {
		m["predicted_churn"] = *p.PredictedChurn
	}
	return m
}

// PredictionFromRecord reads churn_probability and predicted_churn from a
// warehouse prediction row.
func PredictionFromRecord(r Record) Prediction {
	p := Prediction{CustomerID: r.CustomerID()}
	if f, ok := r.Float("churn_probability"); ok {
		p.ChurnProbability = &f
	}
	if f, ok := r.Float("predicted_churn"); ok {
		churn := f != 0
		p.PredictedChurn = &churn
	}
	return p
}

// Anomaly is a monitored metric whose z-score crossed the threshold.
type Anomaly struct {
	CustomerID  string
	MetricName  string
	MetricValue *float64
	ZScore      *float64
	Flag        string
}

func (a Anomaly) Kind() SignalKind { return SignalAnomaly }
func (a Anomaly) Customer() string { return a.CustomerID }

func (a Anomaly) metrics() map[string]any {
	m := map[string]any{
		"metric_name":  Unknown,
		"metric_value": Unknown,
		"z_score":      Unknown,
		"anomaly_flag": Unknown,
	}
	if a.MetricName != "" {
		m["metric_name"] = a.MetricName
	}
	if a.MetricValue != nil {
		m["metric_value"] = *a.MetricValue
	}
	if a.ZScore != nil {
		m["z_score"] = *a.ZScore
	}
	if a.Flag != "" {
		m["anomaly_flag"] = a.Flag
	}
	return m
}

// AnomalyFromRecord reads an anomaly row (metric_name, metric_value,
// z_score, anomaly_flag).
func AnomalyFromRecord(r Record) Anomaly {
	a := Anomaly{
		CustomerID: r.CustomerID(),
		MetricName: r.String("metric_name"),
		Flag:       r.String("anomaly_flag"),
	}
	if f, ok := r.Float("metric_value"); ok {
		a.MetricValue = &f
	}
	if f, ok := r.Float("z_score"); ok {
		a.ZScore = &f
	}
	return a
}
