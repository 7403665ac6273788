package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/zarrbench/zarrbench/pkg/api"
	"github.com/zarrbench/zarrbench/pkg/config"
	"github.com/zarrbench/zarrbench/pkg/executor"
	"github.com/zarrbench/zarrbench/pkg/logging"
	"github.com/zarrbench/zarrbench/pkg/metrics"
	"github.com/zarrbench/zarrbench/pkg/shutdown"
	"github.com/zarrbench/zarrbench/pkg/store"
	"github.com/zarrbench/zarrbench/pkg/worker"
)

func main() {
	cfgFile := flag.String("config", "", "config file path (YAML)")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)

	log.Info("Starting zarrbench orchestration server", map[string]interface{}{
		"listen":      cfg.ListenAddr,
		"metrics":     cfg.MetricsAddr,
		"concurrency": cfg.Concurrency,
	})

	jobStore := store.NewMemoryStore()

	exec := executor.New(log)
	pool := worker.New(jobStore, exec.Run, worker.Config{
		Concurrency: cfg.Concurrency,
		JobTimeout:  cfg.JobTimeout,
		QueueSize:   cfg.QueueSize,
	}, log)

	collector := metrics.NewCollector(jobStore, pool)
	pool.SetTerminalHook(collector.ObserveJob)
	pool.Start()

	// Zero retention disables eviction entirely.
	var janitor *store.Janitor
	if cfg.JobRetention > 0 {
		janitor = store.NewJanitor(jobStore, store.JanitorConfig{
			Retention: cfg.JobRetention,
			Interval:  cfg.JanitorInterval,
		}, log)
		janitor.Start()
	}

	router := mux.NewRouter()
	handler := api.NewHandler(jobStore, pool, log)
	handler.RegisterRoutes(router)

	apiServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler(collector))
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}

	mgr := shutdown.New(cfg.ShutdownTimeout, log)
	mgr.Register("worker pool", pool.Stop)
	if janitor != nil {
		mgr.Register("janitor", func(ctx context.Context) error {
			janitor.Stop()
			return nil
		})
	}
	mgr.Register("metrics server", shutdown.StopHTTPServer(metricsServer, "metrics"))
	mgr.Register("api server", shutdown.StopHTTPServer(apiServer, "api"))

	go func() {
		log.Info("Metrics server listening", map[string]interface{}{"addr": cfg.MetricsAddr})
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Metrics server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	go func() {
		log.Info("API server listening", map[string]interface{}{"addr": cfg.ListenAddr})
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("API server failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}()

	mgr.Wait()
	log.Info("Server stopped")
}
