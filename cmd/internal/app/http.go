package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	authapi "paydesk/cmd/internal/auth/api"
)

func newRouter(cfg Config, log *zap.Logger, pool *pgxpool.Pool, auth *authapi.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(WithRecovery(log))
	if cfg.MetricsEnabled {
		r.Use(WithMetrics())
	}
	r.Use(WithRequestLogging(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.ReadinessRequireDB {
			if pool == nil {
				http.Error(w, "db not configured", http.StatusServiceUnavailable)
				return
			}
			if err := PingDB(req.Context(), pool, 2*time.Second); err != nil {
				log.Info("readyz.db.not_ready", zap.Error(err))
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	if auth != nil {
		r.Mount("/", auth.Routes())
	}

	return r
}
