package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-library/internal/analyzer"
	"media-library/internal/handlers"
	"media-library/internal/ingest"
	"media-library/internal/logging"
	"media-library/internal/memory"
	"media-library/internal/middleware"
	"media-library/internal/pipeline"
	"media-library/internal/scheduler"
	"media-library/internal/snapshot"
	"media-library/internal/source"
	"media-library/internal/startup"

	"github.com/gorilla/mux"
)

func main() {
	startTime := time.Now()

	// Configure GOMEMLIMIT from container limits before anything allocates
	memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// Initialize snapshot store
	storeStart := time.Now()
	store, err := snapshot.New(context.Background(), config.SnapshotPath)
	if err != nil {
		startup.LogFatal("Failed to initialize snapshot store: %v", err)
	}
	defer store.Close()
	startup.LogSnapshotInit(time.Since(storeStart))

	// Analysis capabilities come from an external service; without one
	// the pipeline still indexes and serves, items just stay untagged.
	var an analyzer.Analyzer
	if config.AnalyzerURL != "" {
		an = analyzer.NewRemote(config.AnalyzerURL).Analyzer()
	} else {
		logging.Warn("ANALYZER_URL not set, running without analysis capabilities")
	}

	priorityMode := ingest.PriorityFIFO
	if config.PrioritizeByYear {
		priorityMode = ingest.PriorityByYear
	}

	// Memory backpressure for the analysis workers
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	defer monitor.Stop()

	pipeConfig := pipeline.Config{
		Scheduler: scheduler.Config{
			Workers:           config.AnalysisWorkers,
			MaxAttempts:       config.AnalysisAttempts,
			CapabilityTimeout: config.AnalysisTimeout,
		},
		SyncInterval: config.SyncInterval,
		PriorityMode: priorityMode,
		Memory:       monitor,
	}

	workerCount := config.AnalysisWorkers
	if workerCount <= 0 {
		workerCount = scheduler.DefaultConfig().Workers
	}
	startup.LogPipelineInit(workerCount, config.SyncInterval)

	// Assemble the pipeline over the media directory
	src := source.NewDirSource(config.MediaDir)
	pipe, err := pipeline.New(context.Background(), pipeConfig, src, an, store)
	if err != nil {
		startup.LogFatal("Failed to assemble pipeline: %v", err)
	}

	if err := pipe.Start(context.Background()); err != nil {
		startup.LogFatal("Failed to start pipeline: %v", err)
	}
	startup.LogPipelineStarted()

	// Initialize handlers
	h := handlers.New(pipe, config)

	// Setup router
	router := setupRouter(h)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Apply metrics middleware
	metricsConfig := middleware.DefaultMetricsConfig()
	meteredRouter := middleware.Metrics(metricsConfig)(router)

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(meteredRouter)

	// Create server
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // voice search sockets are long-lived
		IdleTimeout:  60 * time.Second,
	}

	// Metrics run on their own port so they stay off the public surface
	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", h.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:        ":" + config.MetricsPort,
			Handler:     metricsMux,
			ReadTimeout: 15 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, metricsSrv, pipe)

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// API routes
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/search", h.Search).Methods("GET")
	api.HandleFunc("/search/voice", h.VoiceSearch).Methods("GET")
	api.HandleFunc("/events", h.Events).Methods("GET")
	api.HandleFunc("/collections", h.ListCollections).Methods("GET")
	api.HandleFunc("/collections/refresh", h.RefreshCollections).Methods("POST")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")

	// Ingestion control
	api.HandleFunc("/sync", h.TriggerSync).Methods("POST")
	api.HandleFunc("/enqueue", h.Enqueue).Methods("POST")
	api.HandleFunc("/cancel", h.Cancel).Methods("POST")
	api.HandleFunc("/pause", h.Pause).Methods("POST")
	api.HandleFunc("/resume", h.Resume).Methods("POST")
	api.HandleFunc("/progress", h.Progress).Methods("GET")

	// Items
	api.HandleFunc("/items/{id:.*}/favorite", h.ToggleFavorite).Methods("POST")
	api.HandleFunc("/items/{id:.*}", h.GetItem).Methods("GET")

	// Face clusters
	api.HandleFunc("/faces", h.ListFaceClusters).Methods("GET")
	api.HandleFunc("/faces/{id}/label", h.LabelFaceCluster).Methods("POST")
	api.HandleFunc("/faces/{id}/merge", h.MergeFaceClusters).Methods("POST")

	return r
}

func handleShutdown(srv, metricsSrv *http.Server, pipe *pipeline.Pipeline) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping pipeline")
	pipe.Stop()
	startup.LogShutdownStepComplete("Pipeline stopped, snapshot flushed")

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}
