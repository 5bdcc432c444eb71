// Package app wires the Paydesk server runtime: config, logging, database
// pool, auth subsystems, event producer and the HTTP server.
package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"paydesk/cmd/identity"
	authapi "paydesk/cmd/internal/auth/api"
	"paydesk/cmd/internal/auth/session"
	"paydesk/cmd/internal/events"
	"paydesk/cmd/security/password"
)

// App owns the wired server runtime and its resources.
type App struct {
	cfg Config
	log *zap.Logger

	pool     *pgxpool.Pool
	producer events.Producer
	auth     *authapi.Handler
}

// New constructs a fully wired App from config. The caller owns ctx only for
// construction (pool connect + ping); Run takes its own.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		pool.Close()
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		pool.Close()
		return nil, err
	}
	tokens, err := session.NewHS256Manager(sessCfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	principals := func(ctx context.Context, userID string) (string, string, error) {
		u, err := users.GetUserByID(ctx, userID)
		if err != nil {
			return "", "", err
		}
		orgID := ""
		if u.OrgID != nil {
			orgID = *u.OrgID
		}
		return string(u.Role), orgID, nil
	}
	sessions := session.NewService(sessCfg, pool, session.NewPostgresStore(pool), tokens, principals)

	var producer events.Producer = events.NoopProducer{}
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		log.Info("events.kafka.enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	} else {
		log.Info("events.disabled.noop_producer")
	}

	authCfg := authapi.LoadConfigFromEnv()
	auth := authapi.New(authCfg, log, pool, users, sessions, pwCfg,
		authapi.WithEventProducer(producer),
	)

	return &App{
		cfg:      cfg,
		log:      log,
		pool:     pool,
		producer: producer,
		auth:     auth,
	}, nil
}

// Run starts the HTTP server and blocks until ctx cancellation or a fatal
// server error. Resources are released before returning.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           newRouter(a.cfg, a.log, a.pool, a.auth),
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	a.log.Info("server.start", zap.String("addr", a.cfg.HTTPAddr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", zap.String("reason", "context_done"))
	case err := <-errCh:
		a.log.Error("server.fail", zap.Error(err))
		a.close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		a.log.Error("server.shutdown.fail", zap.Error(err))
	}
	a.close()

	a.log.Info("server.stopped")
	return err
}

func (a *App) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Error("events.close.fail", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.log.Sync()
}
