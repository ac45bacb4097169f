package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/kidshub/internal/auth"
	"github.com/geocoder89/kidshub/internal/config"
	"github.com/geocoder89/kidshub/internal/db"
	httpx "github.com/geocoder89/kidshub/internal/http"
	"github.com/geocoder89/kidshub/internal/http/handlers"
	"github.com/geocoder89/kidshub/internal/observability"
	"github.com/geocoder89/kidshub/internal/redisclient"
	"github.com/geocoder89/kidshub/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const serviceName = "kidshub-api"

func main() {
	config.LoadDotEnv()
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		ServiceName: serviceName,
		Endpoint:    cfg.OTelEndpoint,
		Env:         cfg.Env,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(cfg.DBURL, 10)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	if cfg.SeedOrganizerEmail != "" {
		err := db.EnsureOrganizer(ctx, pool, db.SeedOrganizer{
			Email:            cfg.SeedOrganizerEmail,
			Password:         cfg.SeedOrganizerPassword,
			OrganizationName: cfg.SeedOrganizationName,
		})
		if err != nil {
			log.Error("seed organizer failed", "err", err)
			os.Exit(1)
		}
	}

	rdb := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	jobsRepo := postgres.NewJobsRepo(pool, prom)

	router := httpx.NewRouter(httpx.Deps{
		Log:            log,
		Env:            cfg.Env,
		ServiceName:    serviceName,
		AllowedOrigins: cfg.AllowedOrigin,
		AnonKey:        cfg.AnonKey,
		Prom:           prom,
		Gatherer:       reg,
		JWT:            auth.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL),
		Accounts:       postgres.NewAccountsRepo(pool, prom),
		RefreshTokens:  postgres.NewRefreshTokensRepo(pool, prom),
		Rows:           postgres.NewStore(pool, prom),
		Enrollments:    postgres.NewEnrollmentsRepo(pool, prom, jobsRepo),
		RateLimitRedis: rdb.Raw(),
		AuthRateLimit:  cfg.AuthRateLimit,
		WriteRateLimit: cfg.WriteRateLimit,
		Pingers: map[string]handlers.Pinger{
			"db":    pool.Ping,
			"redis": rdb.Ping,
		},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")
	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
