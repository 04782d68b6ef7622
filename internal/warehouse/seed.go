package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// DemoCustomer is one row of the local demo data set.
type DemoCustomer struct {
	CustomerID        string
	Company           string
	Email             string
	MonthlyRevenue    float64
	TotalRevenue      float64
	DaysSincePurchase int
	DaysSinceLogin    int
	Logins30d         int
	Purchases30d      int
	Tickets30d        int
	FeatureUsage      int
	ChurnProbability  float64
}

// PredictedChurn applies the model's decision threshold.
func (c DemoCustomer) PredictedChurn() bool {
	return c.ChurnProbability >= 0.5
}

// DemoCustomers has five high-risk accounts (odd ids) and one support
// ticket outlier (CUST-007) so both signal kinds fire.
var DemoCustomers = []DemoCustomer{
	{"CUST-001", "Acme Corp", "ops@acme.example", 500, 6000, 21, 15, 2, 0, 3, 4, 0.85},
	{"CUST-002", "Globex", "it@globex.example", 320, 5100, 3, 1, 24, 4, 1, 19, 0.25},
	{"CUST-003", "Initech", "admin@initech.example", 850, 15300, 40, 28, 1, 0, 2, 2, 0.92},
	{"CUST-004", "Umbrella", "cs@umbrella.example", 180, 2200, 6, 2, 18, 3, 1, 12, 0.35},
	{"CUST-005", "Hooli", "team@hooli.example", 120, 1200, 30, 19, 3, 0, 2, 5, 0.78},
	{"CUST-006", "Vehement", "ops@vehement.example", 210, 2400, 9, 4, 15, 2, 1, 10, 0.42},
	{"CUST-007", "Soylent", "support@soylent.example", 450, 4500, 14, 9, 6, 1, 14, 6, 0.88},
	{"CUST-008", "Stark Industries", "it@stark.example", 95, 950, 5, 1, 20, 3, 0, 14, 0.15},
	{"CUST-009", "Wayne Enterprises", "cs@wayne.example", 430, 4300, 35, 22, 2, 0, 3, 3, 0.95},
	{"CUST-010", "Cyberdyne", "ops@cyberdyne.example", 150, 1500, 7, 3, 16, 2, 1, 11, 0.38},
}

const modelVersion = "v2.1"

const upsertCustomerSQL = `
INSERT INTO customers (
	customer_id, subscription_id, company_name, email, subscription_start_date,
	monthly_revenue, total_revenue, days_since_last_purchase, days_since_last_login,
	login_frequency_30d, purchase_frequency_30d, support_tickets_30d, feature_usage_count,
	churned_flag, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NULL, $14, $14)
ON CONFLICT (customer_id) DO UPDATE SET
	monthly_revenue = EXCLUDED.monthly_revenue,
	total_revenue = EXCLUDED.total_revenue,
	days_since_last_purchase = EXCLUDED.days_since_last_purchase,
	days_since_last_login = EXCLUDED.days_since_last_login,
	login_frequency_30d = EXCLUDED.login_frequency_30d,
	purchase_frequency_30d = EXCLUDED.purchase_frequency_30d,
	support_tickets_30d = EXCLUDED.support_tickets_30d,
	feature_usage_count = EXCLUDED.feature_usage_count,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at`

const upsertPredictionSQL = `
INSERT INTO churn_predictions (customer_id, churn_probability, predicted_churn, model_version, predicted_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (customer_id) DO UPDATE SET
	churn_probability = EXCLUDED.churn_probability,
	predicted_churn = EXCLUDED.predicted_churn,
	model_version = EXCLUDED.model_version,
	predicted_at = EXCLUDED.predicted_at`

// Seed applies the schema and loads DemoCustomers with fresh timestamps so
// every window query picks them up.
func (s *Store) Seed(ctx context.Context, now time.Time) error {
	if err := s.Migrate(ctx); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, c := range DemoCustomers {
		created := now.Add(-time.Duration(i) * time.Minute)
		batch.Queue(upsertCustomerSQL,
			c.CustomerID,
			fmt.Sprintf("SUB-%s", c.CustomerID[len("CUST-"):]),
			c.Company,
			c.Email,
			now.AddDate(-1, 0, 0),
			c.MonthlyRevenue,
			c.TotalRevenue,
			c.DaysSincePurchase,
			c.DaysSinceLogin,
			c.Logins30d,
			c.Purchases30d,
			c.Tickets30d,
			c.FeatureUsage,
			created,
		)
		batch.Queue(upsertPredictionSQL, c.CustomerID, c.ChurnProbability, c.PredictedChurn(), modelVersion, created)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed demo data: %w", err)
	}
	s.log.Info("Loaded demo customers and predictions", zap.Int("customers", len(DemoCustomers)))
	return nil
}
