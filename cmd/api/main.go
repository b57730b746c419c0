package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"mudamail/internal/config"
	"mudamail/internal/dispatch"
	"mudamail/internal/estimate"
	"mudamail/internal/httpserver"
	"mudamail/internal/logging"
	"mudamail/internal/mailtemplate"
	"mudamail/internal/observability"
	"mudamail/internal/providers"
	"mudamail/internal/store/pg"
	"mudamail/internal/testmode"
	"mudamail/internal/tracker"
)

func main() {
	cfg := config.LoadAPI()
	logging.Init("api", cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{})
	if err != nil {
		slog.Error("api db connect failed", "err", err)
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}

	observability.Register(prometheus.DefaultRegisterer)

	st := pg.New(db)
	tr := &tracker.Tracker{Store: st}
	renderer := &mailtemplate.Renderer{Store: st}

	resolver := &testmode.Resolver{
		Redis:      rdb,
		EnvFlag:    cfg.TestModeEnv,
		EnvAddress: cfg.TestModeAddress,
		AppEnv:     cfg.AppEnv,
	}
	interceptor := &testmode.Interceptor{Redirect: resolver.Resolve(ctx).Redirect}

	limiter := rate.NewLimiter(rate.Limit(cfg.ProviderRPS), cfg.ProviderBurst)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "email-provider"})
	provOpts := providers.Options{
		HTTPClient: &http.Client{Timeout: time.Duration(cfg.ProviderTimeout) * time.Second},
		AWSRegion:  cfg.AWSRegion,
	}

	newDispatcher := func(state testmode.State) httpserver.Dispatcher {
		d := &dispatch.Dispatcher{
			Store:       st,
			Renderer:    renderer,
			Tracker:     tr,
			Interceptor: interceptor,
			TestMode:    state,
			Limiter:     limiter,
			Breaker:     breaker,
			Estimator:   estimate.Fallback{},
			BatchSize:   cfg.BatchSize,
			BatchDelay:  time.Duration(cfg.BatchDelayMs) * time.Millisecond,
		}
		// Outside test mode, bind the provider named by the stored
		// config; a broken or absent config is reported by the run's own
		// pre-flight guards, not here.
		if !state.Active {
			if emailCfg, found, err := st.GetEmailConfig(ctx); err == nil && found {
				if p, err := providers.New(ctx, emailCfg, provOpts); err == nil {
					d.Provider = p
				} else {
					slog.Warn("provedor de email indisponível", "err", err)
				}
			}
		}
		return d
	}

	s := httpserver.New()
	api := &httpserver.API{
		Dispatch:    newDispatcher,
		Resolver:    resolver,
		Interceptor: interceptor,
		Tracking:    tr,
	}
	api.Register(s.Mux)

	// As router middleware so the counter gets the route template, not
	// the raw path.
	s.Mux.Use(httpserver.Metrics(observability.APIRequests))

	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, func(ctx context.Context) error {
		return db.Ping(ctx)
	}))

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		slog.Info("metrics listening", "port", cfg.MetricsPort)
		if err := http.ListenAndServe(":"+cfg.MetricsPort, mux); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "err", err)
		}
	}()

	handler := httpserver.Logging(s.Mux)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("api shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("api server failed", "err", err)
		os.Exit(1)
	}

	db.Close()
}
