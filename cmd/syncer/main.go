package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/eqtlab/bank-syncer/config"
	"github.com/eqtlab/bank-syncer/notify"
	"github.com/eqtlab/bank-syncer/pkg/cache"
	"github.com/eqtlab/bank-syncer/pkg/db"
	"github.com/eqtlab/bank-syncer/pkg/logger"
	"github.com/eqtlab/bank-syncer/pkg/metrics"
	"github.com/eqtlab/bank-syncer/pkg/postgres"
	"github.com/eqtlab/bank-syncer/powens"
	storage "github.com/eqtlab/bank-syncer/storage/postgres"
	"github.com/eqtlab/bank-syncer/syncer"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logger.New(true)

	cfg, err := config.ParseEnv(ctx)
	if err != nil {
		log.Fatal("can't parse configuration", zap.Error(err))
	}

	log = logger.New(cfg.Debug)

	pool, err := postgres.Connect(ctx, cfg.DB)
	if err != nil {
		log.Fatal("can't connect to db", zap.Error(err))
	}
	defer pool.Close()

	if err := postgres.Migrate(cfg.DB.URL, cfg.DB.MigrationsPath); err != nil {
		log.Fatal("can't apply migrations", zap.Error(err))
	}

	database := db.New(pool, log)
	store := storage.New(database)

	tokenCache, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		log.Fatal("can't connect to redis", zap.Error(err))
	}
	defer tokenCache.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	serveMetrics(cfg.MetricsAddr, registry, log)

	auth := powens.NewAuth(cfg.Powens, store, tokenCache, log.Logger)
	client := powens.NewClient(cfg.Powens, auth, log.Logger)

	sinks, err := notify.BuildSinks(cfg.Notify, log.Logger)
	if err != nil {
		log.Fatal("can't build notification sinks", zap.Error(err))
	}
	if len(sinks) == 0 {
		log.Warn("no notification sinks enabled, transactions will only be persisted")
	}

	dispatcher := notify.NewDispatcher(sinks, log.Logger, m)
	bankSyncer := syncer.New(store, client, dispatcher, log.Logger, m, cfg.Powens.Scope(), cfg.Syncer)

	done := runForever(
		log.Logger,
		func() { bankSyncer.Run(ctx) },
	)

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	<-exit

	cancel()
	<-done
	log.Info("syncer has been stopped")
}

var restartDelay = time.Minute

// runForever spawns a goroutine for every f in ff and restarts any f that
// panics. The returned channel closes once every f has returned normally, so
// the caller can drain in-flight work before exiting.
func runForever(log *zap.Logger, ff ...func()) <-chan struct{} {
	var wg conc.WaitGroup

	for i := range ff {
		f := ff[i]
		wg.Go(func() {
			for {
				var pc panics.Catcher
				pc.Try(f)

				err := pc.Recovered().AsError()
				if err == nil {
					return
				}

				log.Error("panic", zap.Error(err))
				time.Sleep(restartDelay)
			}
		})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	return done
}

// serveMetrics exposes the Prometheus registry and the recent log tail when
// an address is configured. Failures here are logged, not fatal: diagnostics
// are an observability aid, not a sync dependency.
func serveMetrics(addr string, registry *prometheus.Registry, log *logger.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/logtail", log.TailHandler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
}
