// Package server exposes the cycle journal and on-demand cycles over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/refset/churn-decision-agent/internal/cycle"
	"github.com/refset/churn-decision-agent/internal/journal"
)

// Runner runs one cycle; calls are serialized by the implementation.
type Runner interface {
	RunOnce(ctx context.Context) (*cycle.Result, error)
}

// History reads finished cycles.
type History interface {
	Recent(ctx context.Context, limit int) ([]cycle.Result, error)
	Get(ctx context.Context, id string) (cycle.Result, error)
}

// Config for the HTTP API handler.
type Config struct {
	Runner  Runner
	History History
	Log     *zap.Logger
}

// New returns an HTTP handler exposing the cycle API.
func New(cfg Config) http.Handler {
	log := cfg.Log.Named("server")

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(log))

	hcfg := huma.DefaultConfig("Churn Decision Agent", "1.0.0")
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)

	registerHealth(api)
	registerCycles(api, cfg.Runner, cfg.History, log)
	return router
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("Request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
			)
		})
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type cycleOutput struct {
	Body cycle.Result `json:"body"`
}

func registerCycles(api huma.API, runner Runner, history History, log *zap.Logger) {
	type listInput struct {
		Limit int `query:"limit" default:"20" minimum:"1" maximum:"500"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-cycles",
		Method:      http.MethodGet,
		Path:        "/cycles",
		Summary:     "Recent cycles, newest first",
	}, func(ctx context.Context, input *listInput) (*struct {
		Body []cycle.Result `json:"body"`
	}, error) {
		cycles, err := history.Recent(ctx, input.Limit)
		if err != nil {
			log.Error("List cycles failed", zap.Error(err))
			return nil, huma.Error500InternalServerError("failed to read cycle journal")
		}
		if cycles == nil {
			cycles = []cycle.Result{}
		}
		return &struct {
			Body []cycle.Result `json:"body"`
		}{Body: cycles}, nil
	})

	type cyclePath struct {
		CycleID string `path:"cycle_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-cycle",
		Method:      http.MethodGet,
		Path:        "/cycles/{cycle_id}",
		Summary:     "One cycle",
	}, func(ctx context.Context, input *cyclePath) (*cycleOutput, error) {
		r, err := history.Get(ctx, input.CycleID)
		if errors.Is(err, journal.ErrNotFound) {
			return nil, huma.Error404NotFound("cycle not found")
		}
		if err != nil {
			log.Error("Get cycle failed", zap.String("cycle_id", input.CycleID), zap.Error(err))
			return nil, huma.Error500InternalServerError("failed to read cycle journal")
		}
		return &cycleOutput{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "run-cycle",
		Method:        http.MethodPost,
		Path:          "/cycles",
		Summary:       "Run one cycle now",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, _ *struct{}) (*cycleOutput, error) {
		r, err := runner.RunOnce(ctx)
		if err != nil {
			log.Error("On-demand cycle failed", zap.Error(err))
			return nil, huma.Error500InternalServerError(err.Error())
		}
		return &cycleOutput{Body: *r}, nil
	})
}
