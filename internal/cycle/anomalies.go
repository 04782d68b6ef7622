package cycle

import (
	"context"

	"go.uber.org/zap"

	"github.com/refset/churn-decision-agent/internal/decision"
)

// detectAnomalies sweeps every monitored metric. A metric that cannot be
// queried is logged and skipped; each returned row is tagged with the metric
// it was found on.
func (o *Orchestrator) detectAnomalies(ctx context.Context, log *zap.Logger) []decision.Record {
	var all []decision.Record
	for _, metric := range o.metrics {
		rows, err := o.warehouse.Anomalies(ctx, metric, o.threshold)
		if err != nil {
			log.Warn("Failed to detect anomalies for metric", zap.String("metric", metric), zap.Error(err))
			continue
		}
		for _, row := range rows {
			if row == nil {
				continue
			}
			row["metric_name"] = metric
			all = append(all, row)
		}
		log.Debug("Anomaly sweep", zap.String("metric", metric), zap.Int("anomalies", len(rows)))
	}
	return all
}
