package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/assemble"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/async"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/categorize"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/common"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/extract"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/ingest"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/llm/openai"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/observability/logging"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/observability/metrics"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/ocr"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/pipeline"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/repository"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/resilience"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/schema"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/synthesize"
	"github.com/lexworks-solutions/public-poc-invoice-facts-extractor/internal/validate"
)

func main() {
	_ = godotenv.Load()

	logger := logging.NewJSONLogger("invoiced", os.Getenv("LOG_LEVEL"))

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	if cfg.Database.DSN == "" {
		logger.Error("DB_URL env var is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        1,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, pool, logger)

	if err := repository.HealthCheck(ctx, pool, 3*time.Second, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	if err := repository.EnsureSchema(ctx, db); err != nil {
		logger.Error("ensuring database schema", "error", err)
		os.Exit(1)
	}

	audit, err := repository.OpenAuditStore(cfg.Audit.SQLitePath, logger)
	if err != nil {
		logger.Error("opening audit store", "error", err)
		os.Exit(1)
	}
	defer audit.Close()

	// Category schema
	sch, err := schema.Load(cfg.Pipeline.SchemaPath)
	if err != nil {
		logger.Error("loading category schema", "error", err)
		os.Exit(1)
	}
	logger.Info("category schema loaded", "version", sch.Version, "categories", len(sch.Categories))

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	pipelineMetrics := metrics.NewPipeline(reg)

	// Model backend
	client := openai.NewClient(openai.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		Timeout:        cfg.LLM.Timeout,
		RequestsPerSec: cfg.LLM.RequestsPerSec,
		Resilience: resilience.Config{
			RetryMaxAttempts:    cfg.LLM.RetryMaxAttempts,
			RetryInitialBackoff: cfg.LLM.RetryBackoff,
		},
	}, logger)

	// Pipeline stages
	extractor := extract.NewOCRAdapter(ocr.NewExtractor(ocr.Config{
		Tesseract:     cfg.OCR.Tesseract,
		Pdftoppm:      cfg.OCR.Pdftoppm,
		TesseractLang: cfg.OCR.TesseractLang,
		TessdataDir:   cfg.OCR.TessdataDir,
		DPI:           cfg.OCR.DPI,
		MaxPages:      cfg.OCR.MaxPages,
		PSM:           cfg.OCR.PSM,
		OEM:           cfg.OCR.OEM,
	}, logger), logger)

	categorizer := categorize.New(sch, client, categorize.Config{
		MinCandidateConfidence: cfg.Pipeline.MinCandidateConf,
		MaxWindowTokens:        cfg.Pipeline.WindowMaxTokens,
	}, logger)
	synthesizer := synthesize.New(sch, client, logger)
	validator := validate.New(sch, client, validate.Config{
		AcceptConfidence: cfg.Pipeline.AcceptConfidence,
		RejectCertainty:  cfg.Pipeline.RejectCertainty,
	}, logger)
	assembler := assemble.New(sch, assemble.Config{
		TolerancePct: cfg.Pipeline.ReconcileTolerancePct,
	}, logger)

	processor := pipeline.NewProcessor(logger, extractor, categorizer, synthesizer, validator, assembler)
	processor.SnippetWorkers = cfg.Pipeline.SnippetWorkers
	processor.Metrics = pipelineMetrics

	// Queue + ingestion
	digests := repository.NewDigestRepository(db, logger)
	sink := repository.NewPersistenceSink(digests, audit, logger)
	queue := async.NewProcessorQueue(processor, sink, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
	)

	paths, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       cfg.Ingest.WatchRoots,
		InitialScan: cfg.Ingest.InitialScan,
		Debounce:    cfg.Ingest.Debounce,
	})
	if err != nil {
		logger.Error("starting watcher", "error", err)
		os.Exit(1)
	}
	ingestor := ingest.NewIngestor(queue, logger)
	go func() {
		stats := ingestor.Run(ctx, paths)
		logger.Info("ingestion stopped",
			"scanned", stats.Scanned,
			"enqueued", stats.Enqueued,
			"deduplicated", stats.Deduplicated,
			"failed", stats.Failed,
		)
	}()
	go func() {
		for err := range watchErrs {
			logger.Error("watch error", "error", err)
		}
	}()

	// Prometheus /metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
	go func() {
		logger.Info("metrics listening", "addr", cfg.Server.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", "error", err)
		}
	}()

	// gRPC health + reflection for probes and grpcurl
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.HealthAddr)
	if err != nil {
		logger.Error("health listener", "addr", cfg.Server.HealthAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("health listening", "addr", cfg.Server.HealthAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc serve", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
