package warehouse

const customerColumns = `
	customer_id,
	subscription_id,
	company_name,
	email,
	subscription_start_date,
	monthly_revenue,
	total_revenue,
	days_since_last_purchase,
	days_since_last_login,
	login_frequency_30d,
	purchase_frequency_30d,
	support_tickets_30d,
	feature_usage_count,
	churned_flag,
	created_at`

const extractCustomersSQL = `
SELECT` + customerColumns + `
FROM customers
WHERE created_at >= now() - make_interval(days => $1)
ORDER BY created_at DESC`

const customerDetailSQL = `
SELECT` + customerColumns + `
FROM customers
WHERE customer_id = $1`

const atRiskSQL = `
SELECT
	c.customer_id,
	c.subscription_id,
	c.monthly_revenue,
	c.days_since_last_purchase,
	c.days_since_last_login,
	c.login_frequency_30d,
	c.purchase_frequency_30d,
	c.support_tickets_30d,
	c.feature_usage_count,
	p.churn_probability,
	p.predicted_churn,
	p.model_version
FROM churn_predictions p
JOIN customers c USING (customer_id)
WHERE p.predicted_churn
	AND c.churned_flag IS NOT TRUE
	AND p.predicted_at >= now() - make_interval(days => $1)
ORDER BY p.churn_probability DESC`

// anomalySQLTemplate takes the sanitized metric column. $1 is the stats
// window in days, $2 the recent window, $3 the z-score threshold.
const anomalySQLTemplate = `
WITH stats AS (
	SELECT avg(%[1]s)::float8 AS mean, stddev_samp(%[1]s)::float8 AS sd
	FROM customers
	WHERE created_at >= now() - make_interval(days => $1)
), scored AS (
	SELECT
		c.customer_id,
		c.subscription_id,
		c.%[1]s::float8 AS metric_value,
		(c.%[1]s - s.mean) / NULLIF(s.sd, 0) AS z_score
	FROM customers c
	CROSS JOIN stats s
	WHERE c.created_at >= now() - make_interval(days => $2)
)
SELECT customer_id, subscription_id, metric_value, z_score, 'ANOMALY' AS anomaly_flag
FROM scored
WHERE abs(z_score) > $3
ORDER BY abs(z_score) DESC`

const insertOutcomeSQL = `
INSERT INTO action_outcomes (
	id, cycle_id, customer_id, signal_kind, action_type, priority, confidence,
	status, reason, reference, diagnosis_tier, decision_tier, analysis_context, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

const recentOutcomesSQL = `
SELECT
	id::text AS id,
	cycle_id,
	customer_id,
	signal_kind,
	action_type,
	priority,
	confidence,
	status,
	reason,
	reference,
	created_at
FROM action_outcomes
ORDER BY created_at DESC
LIMIT $1`
