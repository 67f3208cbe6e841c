package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"greeting-service/internal/config"
	dbpkg "greeting-service/internal/db"
	httpx "greeting-service/internal/http"
	"greeting-service/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configFile := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("could not load .env file")
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	setupLogging(cfg)
	log.WithField("database", cfg.Database.Redacted()).Debug("configuration")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		log.WithError(err).Error("error creating telemetry")
		shutdownTelemetry = func(context.Context) error { return nil }
	}
	flushTelemetry := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			log.WithError(err).Error("shutting down telemetry")
		}
	}
	defer flushTelemetry()

	connect, err := dbpkg.NewConnector(cfg.Database.ConnString())
	if err != nil {
		log.WithError(err).Fatal("invalid database settings")
	}
	poolCfg := cfg.Database.PoolConfig()
	poolCfg.OnError = func(err error) {
		log.WithError(err).Warn("idle database connection failed")
	}
	pool, err := dbpkg.NewPool(connect, poolCfg)
	if err != nil {
		log.WithError(err).Fatal("failed to create connection pool")
	}
	defer pool.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := dbpkg.Ping(pingCtx, pool); err != nil {
		log.WithError(err).Warn("database not reachable yet, /tasks will fail until it is")
	}
	pingCancel()

	srv := httpx.NewServer(pool, httpx.WithCORS(cfg.CORS))
	httpx.RegisterMetrics(prometheus.DefaultRegisterer, dbpkg.NewPoolCollector(pool))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runHandler(ctx, "public", cfg.ListenAddress, srv.Handler())
	})
	if cfg.MetricsAddress != "" {
		g.Go(func() error {
			return runHandler(ctx, "metrics", cfg.MetricsAddress, httpx.NewMetricsHandler())
		})
	}

	if err := g.Wait(); err != nil {
		// Fatal skips deferred calls
		pool.Close()
		flushTelemetry()
		log.WithError(err).Fatal("server terminated unexpectedly")
	}
}

func setupLogging(cfg *config.Config) {
	switch cfg.LogFormat {
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
	default:
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}
	log.SetLevel(cfg.Level())
}

// runHandler binds addr before serving so a bind failure is reported to the
// caller, then serves until ctx is done and shuts the server down.
func runHandler(ctx context.Context, name, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s listener: %w", name, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", ln.Addr().String()).Infof("serving %s handler", name)
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Infof("shutting down %s handler", name)
	if err := srv.Shutdown(timeoutCtx); err != nil {
		log.WithError(err).Error("error shutting down server")
	}
	log.Infof("shut down %s handler", name)
	return nil
}
