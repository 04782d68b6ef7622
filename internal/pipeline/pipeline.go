package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/refset/churn-decision-agent/internal/config"
	"github.com/refset/churn-decision-agent/internal/cycle"
	"github.com/refset/churn-decision-agent/internal/decision"
	"github.com/refset/churn-decision-agent/internal/dispatch"
	"github.com/refset/churn-decision-agent/internal/journal"
	"github.com/refset/churn-decision-agent/internal/kafka"
	"github.com/refset/churn-decision-agent/internal/looker"
	"github.com/refset/churn-decision-agent/internal/reasoning"
	"github.com/refset/churn-decision-agent/internal/server"
	"github.com/refset/churn-decision-agent/internal/warehouse"
)

type cycleRunner interface {
	RunCycle(ctx context.Context) *cycle.Result
}

type recorder interface {
	Record(ctx context.Context, r *cycle.Result) error
}

type cyclePublisher interface {
	PublishCycle(ctx context.Context, r *cycle.Result) error
}

// Pipeline wires the decision cycle to its data sources and channels and
// runs it on demand or on a schedule.
type Pipeline struct {
	cfg *config.Config
	log *zap.Logger

	runner  cycleRunner
	journal recorder
	history server.History
	cycles  cyclePublisher
	checks  []check
	closers []func() error

	// mu serializes cycles; scheduled and on-demand runs never overlap.
	mu sync.Mutex
}

// New creates a new pipeline from configuration. Optional integrations
// (Redis cache, Kafka, action channels) are wired only when configured.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg, log: log.Named("pipeline")}

	store, err := warehouse.Open(ctx, cfg.Warehouse.ConnString, log, cfg.Pipeline.WindowDays)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, func() error { store.Close(); return nil })

	lookerClient := looker.NewClient(cfg.Looker.BaseURL, cfg.Looker.ClientID, cfg.Looker.ClientSecret, cfg.Looker.Timeout)
	var kpis looker.Snapshotter = looker.NewSource(lookerClient, cfg.Looker.KPILooks, log)
	if cfg.Cache.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		p.closers = append(p.closers, rdb.Close)
		kpis = looker.NewCachedSource(kpis, rdb, cfg.Cache.TTL, log)
	}

	backend, err := reasoning.New(ctx, cfg.Reasoning, log)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("reasoning backend: %w", err)
	}

	dispatcher := dispatch.New(channels(cfg), log)

	opts := cycle.Options{
		WindowDays: cfg.Pipeline.WindowDays,
		Threshold:  cfg.Pipeline.AnomalyThreshold,
		Metrics:    cfg.Pipeline.MonitoredMetrics,
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OutcomesTopic, cfg.Kafka.CyclesTopic, log)
		p.closers = append(p.closers, producer.Close)
		opts.Publisher = producer
		p.cycles = producer
	}

	j, err := journal.Open(ctx, cfg.Pipeline.JournalPath)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	p.closers = append(p.closers, j.Close)
	p.journal = j
	p.history = j

	agent := decision.NewAgent(backend, log, nil)
	p.runner = cycle.New(store, kpis, agent, dispatcher, log, opts)
	p.checks = []check{
		warehouseCheck(store),
		kpiCheck(kpis),
		reasoningCheck(backend),
		dispatchCheck(dispatcher),
	}
	return p, nil
}

func channels(cfg *config.Config) dispatch.Channels {
	var ch dispatch.Channels
	if cfg.SlackEnabled() {
		ch.Alert = dispatch.NewSlack(cfg.Slack.Token, cfg.Slack.ChannelID, cfg.Slack.CRMBaseURL)
	}
	if cfg.JiraEnabled() {
		ch.Ticket = dispatch.NewJira(cfg.Jira.URL, cfg.Jira.Username, cfg.Jira.APIToken, cfg.Jira.ProjectKey, cfg.Jira.CustomerField)
	}
	if cfg.EmailEnabled() {
		ch.Email = dispatch.NewMailer(cfg.Email.SendGridAPIKey, cfg.Email.FromAddress, cfg.Email.FromName)
	}
	return ch
}

// RunOnce runs a single cycle, journals it and publishes its summary.
// Cancelling ctx does not interrupt a cycle that has started.
func (p *Pipeline) RunOnce(ctx context.Context) (*cycle.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	res := p.runner.RunCycle(ctx)

	if err := p.journal.Record(ctx, res); err != nil {
		p.log.Error("Failed to journal cycle", zap.String("cycle_id", res.CycleID), zap.Error(err))
	}
	if p.cycles != nil {
		if err := p.cycles.PublishCycle(ctx, res); err != nil {
			p.log.Warn("Failed to publish cycle summary", zap.String("cycle_id", res.CycleID), zap.Error(err))
		}
	}
	return res, nil
}

// Run runs an initial cycle and then one per interval until ctx is done.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	p.log.Info("Starting churn decision pipeline",
		zap.Duration("interval", interval),
		zap.Int("window_days", p.cfg.Pipeline.WindowDays),
		zap.Float64("anomaly_threshold", p.cfg.Pipeline.AnomalyThreshold),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.scheduled(ctx)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Shutting down pipeline")
			return nil
		case <-ticker.C:
			p.scheduled(ctx)
		}
	}
}

func (p *Pipeline) scheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := p.RunOnce(ctx)
	if err != nil {
		p.log.Error("Cycle error", zap.Error(err))
		return
	}
	if !res.Completed() {
		p.log.Warn("Cycle stopped early", zap.String("cycle_id", res.CycleID), zap.String("stage", string(res.Stage)))
	}
}

// Handler returns the HTTP API backed by this pipeline.
func (p *Pipeline) Handler() http.Handler {
	return server.New(server.Config{Runner: p, History: p.history, Log: p.log})
}

// Close releases every connection the pipeline opened.
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	p.closers = nil
	return errors.Join(errs...)
}
