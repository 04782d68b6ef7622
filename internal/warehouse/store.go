package warehouse

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/refset/churn-decision-agent/internal/decision"
)

//go:embed schema.sql
var schema string

// ErrUnknownMetric is returned for an anomaly metric that is not a
// numeric customer column.
var ErrUnknownMetric = errors.New("unknown metric")

// Metrics are the customer columns anomalies can be computed over.
var Metrics = []string{
	"monthly_revenue",
	"total_revenue",
	"days_since_last_purchase",
	"days_since_last_login",
	"login_frequency_30d",
	"purchase_frequency_30d",
	"support_tickets_30d",
	"feature_usage_count",
}

// recentDays bounds which customers are scored against the window's
// statistics.
const recentDays = 7

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
	// statsDays is the window the anomaly mean and deviation are taken over.
	statsDays int
}

func New(pool *pgxpool.Pool, log *zap.Logger, statsDays int) *Store {
	return &Store{pool: pool, log: log.Named("warehouse"), statsDays: statsDays}
}

func Open(ctx context.Context, connString string, log *zap.Logger, statsDays int) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to warehouse: %w", err)
	}
	return New(pool, log, statsDays), nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping warehouse: %w", err)
	}
	return nil
}

// Migrate creates the warehouse tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]decision.Record, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (decision.Record, error) {
		m, err := pgx.RowToMap(row)
		return decision.Record(m), err
	})
}

// ExtractCustomers returns every customer created within the window, newest
// first.
func (s *Store) ExtractCustomers(ctx context.Context, windowDays int) ([]decision.Record, error) {
	recs, err := s.query(ctx, extractCustomersSQL, windowDays)
	if err != nil {
		return nil, fmt.Errorf("extract customers: %w", err)
	}
	s.log.Debug("Extracted customers", zap.Int("window_days", windowDays), zap.Int("records", len(recs)))
	return recs, nil
}

// AtRiskCustomers returns customers the churn model flagged within the
// window, most likely to churn first.
func (s *Store) AtRiskCustomers(ctx context.Context, windowDays int) ([]decision.Record, error) {
	recs, err := s.query(ctx, atRiskSQL, windowDays)
	if err != nil {
		return nil, fmt.Errorf("predict churn: %w", err)
	}
	return recs, nil
}

// Anomalies returns recent customers whose metric lies more than threshold
// standard deviations from the window mean, strongest deviation first.
func (s *Store) Anomalies(ctx context.Context, metric string, threshold float64) ([]decision.Record, error) {
	sql, err := anomalySQL(metric)
	if err != nil {
		return nil, err
	}
	recs, err := s.query(ctx, sql, s.statsDays, recentDays, threshold)
	if err != nil {
		return nil, fmt.Errorf("detect anomalies in %s: %w", metric, err)
	}
	return recs, nil
}

// CustomerDetail returns nil, nil when no customer has the id.
func (s *Store) CustomerDetail(ctx context.Context, customerID string) (decision.Record, error) {
	recs, err := s.query(ctx, customerDetailSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("customer %s: %w", customerID, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

func (s *Store) LogOutcome(ctx context.Context, o decision.ActionOutcome) error {
	args, err := outcomeArgs(o)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, insertOutcomeSQL, args...); err != nil {
		return fmt.Errorf("log action outcome: %w", err)
	}
	return nil
}

// RecentOutcomes lists the latest logged outcomes, newest first.
func (s *Store) RecentOutcomes(ctx context.Context, limit int) ([]decision.Record, error) {
	recs, err := s.query(ctx, recentOutcomesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("recent outcomes: %w", err)
	}
	return recs, nil
}

func anomalySQL(metric string) (string, error) {
	if !slices.Contains(Metrics, metric) {
		return "", fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	col := pgx.Identifier{metric}.Sanitize()
	return fmt.Sprintf(anomalySQLTemplate, col), nil
}

func outcomeArgs(o decision.ActionOutcome) ([]any, error) {
	ctxJSON, err := json.Marshal(o.AnalysisContext)
	if err != nil {
		return nil, fmt.Errorf("encode analysis context: %w", err)
	}
	created := o.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return []any{
		o.ID,
		o.CycleID,
		o.CustomerID,
		string(o.SignalKind),
		string(o.ActionType),
		string(o.Priority),
		o.Confidence,
		string(o.Status),
		o.Reason,
		o.Reference,
		string(o.DiagnosisTier),
		string(o.DecisionTier),
		ctxJSON,
		created,
	}, nil
}
