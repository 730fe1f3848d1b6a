package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/alert"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/api"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/apify"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/config"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/handler"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/ingest"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/logger"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/metrics"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/repository"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/sweep"
	"github.com/amin-lexis-solutions/apify-scrapers-sub000/internal/worker"

	_ "github.com/lib/pq"
)

// dbPingTimeout bounds the startup connectivity check.
const dbPingTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log, err := createLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	db, err := connectDatabase(cfg, log)
	if err != nil {
		log.Error("Failed to connect to database", logger.Error(err))
		return 1
	}
	defer func() { _ = db.Close() }()

	return runService(cfg, log, db)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.GetConfigPath("config.yml"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	return cfg, nil
}

func createLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

func connectDatabase(cfg *config.Config, log logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	log.Info("Database connected",
		logger.String("host", cfg.Database.Host),
		logger.Int("port", cfg.Database.Port),
		logger.String("database", cfg.Database.Database),
	)
	return db, nil
}

// runService wires the pipeline and serves until shutdown.
func runService(cfg *config.Config, log logger.Logger, db *sql.DB) int {
	m := metrics.New(prometheus.DefaultRegisterer)

	coupons := repository.NewCouponRepository(db, log)
	runs := repository.NewRunRepository(db, log)
	stats := repository.NewStatsRepository(db, log)
	pages := repository.NewPageRepository(db, log)

	alerts := buildAlerter(cfg, log)
	apifyClient := apify.NewClient(cfg.Apify, log)

	processor := ingest.NewProcessor(
		ingest.NewFetcher(apifyClient, log),
		ingest.NewEngine(coupons, pages, log),
		ingest.NewDetector(stats, alerts, cfg.Anomaly, log),
		ingest.NewReconciler(coupons, apifyClient, alerts, log),
		runs, pages, alerts, m, log,
	)

	queue := worker.NewQueue(processor, cfg.Service.QueueSize, cfg.Service.ProcessTimeout, log)
	queue.Start()
	defer queue.Stop()

	sweeper := sweep.New(runs, queue, cfg.Sweep, log)
	if err := sweeper.Start(); err != nil {
		log.Error("Failed to start stale-run sweep", logger.Error(err))
		return 1
	}
	defer sweeper.Stop()

	webhookHandler := handler.NewWebhookHandler(runs, queue, m, log)
	runsHandler := handler.NewRunsHandler(runs, stats)
	healthHandler := handler.NewHealthHandler(db, cfg.Service.Version)

	httpServer := api.NewServer(cfg, log, func(router *gin.Engine) {
		api.SetupRoutes(router, webhookHandler, runsHandler, healthHandler)
	})

	log.Info("Coupon ingestion service starting", logger.Int("port", cfg.Service.Port))

	if err := httpServer.Run(context.Background()); err != nil {
		log.Error("Server error", logger.Error(err))
		return 1
	}

	log.Info("Coupon ingestion service exited cleanly")
	return 0
}

func buildAlerter(cfg *config.Config, log logger.Logger) alert.Alerter {
	if cfg.Alert.SlackWebhookURL != "" {
		return alert.NewSlack(cfg.Alert.SlackWebhookURL, log)
	}
	log.Warn("No Slack webhook configured, alerts go to the log only")
	return alert.NewLog(log)
}
