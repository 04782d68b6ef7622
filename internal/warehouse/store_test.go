package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/refset/churn-decision-agent/internal/decision"
)

func TestAnomalySQL(t *testing.T) {
	sql, err := anomalySQL("support_tickets_30d")
	require.NoError(t, err)
	assert.Contains(t, sql, `avg("support_tickets_30d")`)
	assert.Contains(t, sql, `c."support_tickets_30d"::float8 AS metric_value`)
	assert.Contains(t, sql, "abs(z_score) > $3")
}

func TestAnomalySQLRejectsUnknownMetric(t *testing.T) {
	for _, metric := range []string{"", "customer_id", "monthly_revenue; DROP TABLE customers"} {
		_, err := anomalySQL(metric)
		assert.True(t, errors.Is(err, ErrUnknownMetric), metric)
	}
}

func TestOutcomeArgs(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ac := decision.Assembler{}.Assemble(decision.Record{"customer_id": "CUST-001"}, decision.Prediction{CustomerID: "CUST-001"}, nil)
	args, err := outcomeArgs(decision.ActionOutcome{
		ID:              "0b7a4c8e-7f53-4f5f-9d1e-5b2c9a0d3e11",
		CycleID:         "cycle-1",
		CustomerID:      "CUST-001",
		SignalKind:      decision.SignalPrediction,
		ActionType:      decision.ActionTicket,
		Priority:        decision.PriorityHigh,
		Confidence:      0.9,
		Status:          decision.StatusSuccess,
		Reference:       "CUST-42",
		DiagnosisTier:   decision.TierParsed,
		DecisionTier:    decision.TierFallback,
		AnalysisContext: ac,
		CreatedAt:       created,
	})
	require.NoError(t, err)
	require.Len(t, args, 14)
	assert.Equal(t, "ticket", args[4])
	assert.Equal(t, "fallback", args[11])
	assert.Equal(t, created, args[13])

	var ctxJSON map[string]any
	require.NoError(t, json.Unmarshal(args[12].([]byte), &ctxJSON))
	assert.Equal(t, "CUST-001", ctxJSON["customer_id"])
}

func TestOutcomeArgsDefaultsCreatedAt(t *testing.T) {
	args, err := outcomeArgs(decision.ActionOutcome{})
	require.NoError(t, err)
	assert.False(t, args[13].(time.Time).IsZero())
}

func TestDemoCustomers(t *testing.T) {
	require.Len(t, DemoCustomers, 10)
	atRisk := 0
	for _, c := range DemoCustomers {
		if c.PredictedChurn() {
			atRisk++
		}
	}
	assert.Equal(t, 5, atRisk)
	assert.Equal(t, "CUST-001", DemoCustomers[0].CustomerID)
	assert.Equal(t, "CUST-010", DemoCustomers[9].CustomerID)
}

// TestStoreLive runs against a real Postgres when CHURN_WAREHOUSE_TEST_URL is set.
func TestStoreLive(t *testing.T) {
	conn := os.Getenv("CHURN_WAREHOUSE_TEST_URL")
	if conn == "" {
		t.Skip("CHURN_WAREHOUSE_TEST_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, conn, zaptest.NewLogger(t), 30)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Seed(ctx, time.Now()))

	customers, err := s.ExtractCustomers(ctx, 30)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(customers), len(DemoCustomers))

	atRisk, err := s.AtRiskCustomers(ctx, 30)
	require.NoError(t, err)
	require.NotEmpty(t, atRisk)
	assert.Equal(t, "CUST-009", atRisk[0].CustomerID())

	anomalies, err := s.Anomalies(ctx, "support_tickets_30d", 2.0)
	require.NoError(t, err)
	require.NotEmpty(t, anomalies)
	assert.Equal(t, "CUST-007", anomalies[0].CustomerID())

	detail, err := s.CustomerDetail(ctx, "CUST-003")
	require.NoError(t, err)
	assert.Equal(t, "Initech", detail.String("company_name"))

	missing, err := s.CustomerDetail(ctx, "CUST-404")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
