// Command recoforged is the thin daemon that wires the recoforge library
// core (pkg/...) behind an HTTP control surface: flag-parsed startup, a
// loaded/validated config, a logger, and a blocking serve loop. Routing and
// lifecycle only - request/response transport is not a core concern, so
// this file stays small relative to the library it wires together.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"recoforge/pkg/catalog"
	"recoforge/pkg/config"
	"recoforge/pkg/generator"
	"recoforge/pkg/generator/cloud/anthropic"
	"recoforge/pkg/generator/local"
	"recoforge/pkg/generator/middleware/circuit"
	genhealth "recoforge/pkg/generator/middleware/health"
	genmetrics "recoforge/pkg/generator/middleware/metrics"
	genratelimit "recoforge/pkg/generator/middleware/ratelimit"
	"recoforge/pkg/generator/middleware/retry"
	"recoforge/pkg/generator/middleware/timeout"
	"recoforge/pkg/health"
	"recoforge/pkg/history"
	"recoforge/pkg/logx"
	"recoforge/pkg/metrics"
	"recoforge/pkg/orchestrator"
	"recoforge/pkg/planner"
	"recoforge/pkg/ratelimit"
)

func main() {
	var configPath, libraryPath, addr, metricsMode string
	flag.StringVar(&configPath, "config", "", "path to the recoforge YAML config file")
	flag.StringVar(&libraryPath, "library", "", "path to the JSON catalog snapshot")
	flag.StringVar(&addr, "addr", ":8090", "HTTP listen address")
	flag.StringVar(&metricsMode, "metrics", "internal", "metrics backend: internal|prometheus|noop")
	flag.Parse()

	if configPath == "" {
		log.Fatalf("recoforged: -config is required")
	}
	if libraryPath == "" {
		log.Fatalf("recoforged: -library is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("recoforged: failed to load config: %v", err)
	}

	lib, err := catalog.LoadLibraryFile(libraryPath)
	if err != nil {
		log.Fatalf("recoforged: failed to load library: %v", err)
	}

	logger := logx.NewLogger("recoforged")
	recorder := newRecorder(metricsMode)

	daemon, err := newDaemon(cfg, lib, logger, recorder)
	if err != nil {
		log.Fatalf("recoforged: startup failed: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/fetch", daemon.handleFetch)
	mux.HandleFunc("/healthz", daemon.handleHealthz)
	if metricsMode == "prometheus" {
		mux.Handle("/metrics", promhttp.Handler())
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("recoforged listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("recoforged: server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("recoforged: received signal %v, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	daemon.history.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("recoforged: shutdown error: %v", err)
		os.Exit(1)
	}
	logger.Info("recoforged: shutdown complete")
}

func newRecorder(mode string) metrics.Recorder {
	switch mode {
	case "prometheus":
		return metrics.NewPrometheus()
	case "noop":
		return metrics.Nop()
	default:
		return metrics.NewInternal()
	}
}

// daemon holds the wired collaborators a running recoforged process serves
// requests through.
type daemon struct {
	cfg      *config.Config
	library  catalog.Library
	logger   *logx.Logger
	recorder metrics.Recorder
	history  *history.Store
	monitor  *health.Monitor
	orch     *orchestrator.Orchestrator
	backends map[string]generator.Generator
	planners map[string]*planner.Planner
	profile  catalog.Profile
}

func newDaemon(cfg *config.Config, lib catalog.Library, logger *logx.Logger, recorder metrics.Recorder) (*daemon, error) {
	limiter := ratelimit.New()
	for _, rl := range cfg.RateLimits {
		limiter.Configure(rl.Resource, ratelimit.BucketConfig{
			MaxRequests:  rl.Capacity,
			Period:       rl.Period,
			MaxQueueSize: rl.MaxQueueSize,
			Timeout:      rl.Timeout,
		})
	}

	monitor := health.New(cfg.HealthCheckInterval)
	historyStore := history.New(
		history.WithRetention(cfg.HistoryRetention),
		history.WithMinInterval(cfg.HistoryMinInterval),
	)

	backends := make(map[string]generator.Generator, len(cfg.Backends))
	planners := make(map[string]*planner.Planner, len(cfg.Backends))
	estimator := genratelimit.NewDefaultTokenEstimator()

	for _, b := range cfg.Backends {
		base, err := buildBackend(b)
		if err != nil {
			return nil, fmt.Errorf("backend %q: %w", b.ID, err)
		}

		chained := generator.Chain(base,
			genmetrics.Middleware(recorder, b.ID),
			retry.Middleware(logger),
			circuit.Middleware(monitor, b.ID),
			genratelimit.Middleware(limiter, b.ID, estimator, recorder),
			timeout.Middleware(requestTimeout(b)),
			genhealth.Middleware(monitor, b.ID, recorder),
		)
		backends[b.ID] = chained

		cache := planner.NewCache(cfg.PlanCacheTTL, cfg.PlanCacheCapacity)
		planners[b.ID] = planner.New(planner.NewRegistry(), cache)
	}

	orch := orchestrator.New(historyStore, monitor,
		orchestrator.WithLogger(logger),
		orchestrator.WithRecorder(recorder),
		orchestrator.WithDeadline(cfg.FetchDeadline),
	)

	return &daemon{
		cfg:      cfg,
		library:  lib,
		logger:   logger,
		recorder: recorder,
		history:  historyStore,
		monitor:  monitor,
		orch:     orch,
		backends: backends,
		planners: planners,
		profile:  catalog.DeriveProfile(lib),
	}, nil
}

func requestTimeout(b config.BackendConfig) time.Duration {
	if b.RequestTimeout > 0 {
		return b.RequestTimeout
	}
	return 60 * time.Second
}

func buildBackend(b config.BackendConfig) (generator.Generator, error) {
	switch b.Kind {
	case "local":
		return local.New(b.Host, b.Model, requestTimeout(b))
	case "cloud":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set for cloud backend %q", b.ID)
		}
		return anthropic.New(apiKey, b.Model, requestTimeout(b)), nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", b.Kind)
	}
}

func (d *daemon) handleFetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	backendID := r.URL.Query().Get("backend")
	gen, ok := d.backends[backendID]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown backend %q", backendID), http.StatusBadRequest)
		return
	}

	var req catalog.RequestSpec
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	req.BackendID = backendID

	backendCfg, _ := d.cfg.BackendByID(backendID)
	budget := planner.ResolveBudget(req, planner.BackendCaps{
		ContextTokens: backendCfg.ContextTokens,
		PromptCeiling: backendCfg.PromptCeiling,
	})

	deps := orchestrator.Deps{
		Generator: gen,
		Planner:   d.planners[backendID],
		Library:   d.library,
		Profile:   d.profile,
		Budget:    budget,
	}

	recs, err := d.orch.Fetch(r.Context(), backendID, req, deps)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(recs); err != nil {
		d.logger.Error("recoforged: failed to encode response: %v", err)
	}
}

func (d *daemon) handleHealthz(w http.ResponseWriter, r *http.Request) {
	backendID := r.URL.Query().Get("backend")
	if backendID == "" {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	snap := d.monitor.Inspect(backendID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}
