package looker

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LookRunner runs a saved Look. *Client implements it.
type LookRunner interface {
	RunLook(ctx context.Context, lookID string) ([]map[string]any, error)
}

// Source builds KPI snapshots from a fixed set of named Looks.
type Source struct {
	runner   LookRunner
	looks    map[string]string
	log      *zap.Logger
	parallel int
}

// NewSource maps each KPI name to the Look that computes it.
func NewSource(runner LookRunner, looks map[string]string, log *zap.Logger) *Source {
	return &Source{runner: runner, looks: looks, log: log.Named("looker"), parallel: 4}
}

// Names returns the configured KPI names in sorted order.
func (s *Source) Names() []string {
	names := make([]string, 0, len(s.looks))
	for name := range s.looks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot runs every Look concurrently. A Look that is not configured or
// fails yields a nil entry; only a cancelled context is an error.
func (s *Source) Snapshot(ctx context.Context) (map[string]any, error) {
	var (
		mu       sync.Mutex
		snapshot = make(map[string]any, len(s.looks))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for _, name := range s.Names() {
		lookID := s.looks[name]
		g.Go(func() error {
			value := s.fetch(gctx, name, lookID)
			mu.Lock()
			snapshot[name] = value
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *Source) fetch(ctx context.Context, name, lookID string) any {
	if lookID == "" {
		s.log.Debug("No look configured for KPI", zap.String("kpi", name))
		return nil
	}
	rows, err := s.runner.RunLook(ctx, lookID)
	if err != nil {
		s.log.Warn("Could not fetch KPI", zap.String("kpi", name), zap.String("look_id", lookID), zap.Error(err))
		return nil
	}
	return summarize(rows)
}

// summarize unwraps a single-cell result to its scalar and keeps anything
// else as a row series.
func summarize(rows []map[string]any) any {
	if len(rows) == 1 && len(rows[0]) == 1 {
		for _, v := range rows[0] {
			return v
		}
	}
	series := make([]any, len(rows))
	for i, row := range rows {
		series[i] = row
	}
	return series
}
