package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/refset/churn-decision-agent/internal/config"
	"github.com/refset/churn-decision-agent/internal/pipeline"
)

func scheduleCmd() *cobra.Command {
	var (
		interval time.Duration
		listen   string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run a cycle now and then on every interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withPipeline(ctx, func(cfg *config.Config, p *pipeline.Pipeline, log *zap.Logger) error {
				if interval <= 0 {
					interval = cfg.Pipeline.Interval
				}
				if listen == "" {
					listen = cfg.Pipeline.ListenAddr
				}

				g, gctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					return p.Run(gctx, interval)
				})
				if listen != "" {
					srv := &http.Server{Addr: listen, Handler: p.Handler(), ReadHeaderTimeout: 10 * time.Second}
					g.Go(func() error {
						log.Info("Serving cycle API", zap.String("addr", listen))
						if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
							return err
						}
						return nil
					})
					g.Go(func() error {
						<-gctx.Done()
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
						defer cancel()
						return srv.Shutdown(shutdownCtx)
					})
				}
				return g.Wait()
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between cycles (default pipeline.interval)")
	cmd.Flags().StringVar(&listen, "listen", "", "serve the cycle API on this address (default pipeline.listen_addr)")
	return cmd
}
