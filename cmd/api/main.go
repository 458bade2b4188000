package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/Preetam8873/Nuvana/internal/config"
	"github.com/Preetam8873/Nuvana/internal/handler"
	"github.com/Preetam8873/Nuvana/internal/integrations/rates"
	"github.com/Preetam8873/Nuvana/internal/ledger"
	"github.com/Preetam8873/Nuvana/internal/repository"
	"github.com/Preetam8873/Nuvana/internal/scheduler"
	"github.com/Preetam8873/Nuvana/internal/service"
	"github.com/Preetam8873/Nuvana/internal/storage"
	"github.com/Preetam8873/Nuvana/internal/utils"
	"github.com/Preetam8873/Nuvana/internal/utils/email"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize persistence
	var store service.Store
	var collectorStore scheduler.Store
	var ledgerStore ledger.Store
	switch cfg.Storage {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DBConn)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("Failed to ping database: %v", err)
		}
		repo := repository.NewRepository(db)
		store, collectorStore, ledgerStore = repo, repo, repo
	default:
		jsonStore, err := storage.Open(cfg.DataDir)
		if err != nil {
			logger.Fatalf("Failed to open data directory %s: %v", cfg.DataDir, err)
		}
		defer jsonStore.Close()
		store, collectorStore, ledgerStore = jsonStore, jsonStore, jsonStore
	}

	// Initialize layers
	lgr := ledger.New(ledgerStore, logger)

	seed := time.Now().UnixNano()
	if cfg.GeneratorSeed != "" {
		seed, err = strconv.ParseInt(cfg.GeneratorSeed, 10, 64)
		if err != nil {
			logger.Fatalf("Invalid GENERATOR_SEED: %v", err)
		}
	}
	gen := utils.NewGenerator(seed)

	var mailer *email.Sender
	if cfg.SMTPHost != "" {
		mailer = email.NewSender(cfg, logger)
	}

	var svcMailer service.Mailer
	var collectorMailer scheduler.Mailer
	if mailer != nil {
		svcMailer, collectorMailer = mailer, mailer
	}

	ratesClient := rates.NewClient(cfg, logger)
	svc, err := service.NewService(store, lgr, gen, ratesClient, svcMailer, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to build service: %v", err)
	}
	if err := svc.EnsureAdmin(); err != nil {
		logger.Fatalf("Failed to create admin user: %v", err)
	}

	// EMI collection job
	latePenalty, err := decimal.NewFromString(cfg.LatePenalty)
	if err != nil {
		logger.Fatalf("Invalid LATE_PENALTY: %v", err)
	}
	collector := scheduler.NewCollector(collectorStore, lgr, collectorMailer, latePenalty, logger)
	c := cron.New()
	if _, err := c.AddFunc(cfg.CollectorSpec, collector.Run); err != nil {
		logger.Fatalf("Invalid COLLECTOR_SPEC %q: %v", cfg.CollectorSpec, err)
	}
	c.Start()
	defer c.Stop()

	// Setup router
	h := handler.NewHandler(svc, logger)
	router := h.Routes(cfg)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
