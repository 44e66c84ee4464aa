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

	"github.com/aws/aws-sdk-go-v2/service/athena"

	"github.com/timmy/predictboard/internal/api"
	"github.com/timmy/predictboard/internal/awscfg"
	"github.com/timmy/predictboard/internal/catalog"
	"github.com/timmy/predictboard/internal/config"
	"github.com/timmy/predictboard/internal/domain"
	"github.com/timmy/predictboard/internal/executor"
	"github.com/timmy/predictboard/internal/logger"
	"github.com/timmy/predictboard/internal/repository"
	"github.com/timmy/predictboard/internal/series"
	"github.com/timmy/predictboard/internal/service"
	"github.com/timmy/predictboard/internal/storage"
	"github.com/timmy/predictboard/internal/version"
)

func main() {
	log := logger.NewDefault()
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	ctx := context.Background()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	records := repository.NewQueryRecordRepository(db)

	awsCfg, err := awscfg.Load(ctx, &cfg.AWS)
	if err != nil {
		log.WithError(err).Fatal("Failed to load AWS config")
	}
	athenaClient := athena.NewFromConfig(awsCfg, func(o *athena.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = &cfg.AWS.Endpoint
		}
	})
	exec := executor.New(athenaClient, &executor.Config{
		PollInterval: cfg.Athena.PollInterval,
		MaxWait:      cfg.Athena.MaxWait,
		PageSize:     cfg.Athena.PageSize,
	})
	results := storage.NewS3Storage(awsCfg, cfg.AWS.Endpoint)

	queries := service.NewQueryService(exec, records, results, log, &service.QueryConfig{
		CacheTTL:  cfg.Dashboard.CacheTTL,
		CacheSize: cfg.Dashboard.CacheSize,
	})

	reader := catalog.NewReader(queries.ExecutorFor(domain.QueryPurposeDiscovery), catalog.Config{
		Table:           cfg.Athena.Table,
		PartitionColumn: cfg.Catalog.PartitionColumn,
		Sentinel:        cfg.Catalog.Sentinel,
		WorkGroup:       cfg.Athena.WorkGroup,
	})
	refresher := catalog.NewRefresher(reader, cfg.Athena.Database, cfg.Athena.OutputLocation)
	if err := refresher.Start(cfg.Catalog.RefreshSchedule); err != nil {
		log.WithError(err).Fatal("Invalid catalog.refresh_schedule")
	}
	// Discovery runs in the background; until it succeeds tickers are listed on demand.
	refresher.Prime()
	defer refresher.Stop()

	var refDate time.Time
	if cfg.Series.ReferenceDate != "" {
		// Validate already checked the format.
		refDate, _ = time.Parse("2006-01-02", cfg.Series.ReferenceDate)
	}
	assembler := series.NewAssembler(series.Config{
		Database:         cfg.Athena.Database,
		Table:            cfg.Athena.Table,
		PredictionTable:  cfg.Athena.PredictionTable,
		TickerColumn:     cfg.Series.TickerColumn,
		DateColumn:       cfg.Series.DateColumn,
		PriceColumn:      cfg.Series.PriceColumn,
		PredictedColumn:  cfg.Series.PredictedColumn,
		CapturedAtColumn: cfg.Series.CapturedAtColumn,
		WindowDays:       cfg.Series.WindowDays,
		ReferenceDate:    refDate,
	})

	dashboard := service.NewDashboardService(queries, reader, refresher, assembler, service.DashboardConfig{
		Database:       cfg.Athena.Database,
		OutputLocation: cfg.Athena.OutputLocation,
		WorkGroup:      cfg.Athena.WorkGroup,
		Tables:         cfg.BrowseTables(),
		MinRows:        cfg.Dashboard.MinRows,
		MaxRows:        cfg.Dashboard.MaxRows,
		DefaultRows:    cfg.Dashboard.DefaultRows,
		ChartWidth:     cfg.Dashboard.ChartWidth,
		ChartHeight:    cfg.Dashboard.ChartHeight,
		ThumbWidth:     cfg.Dashboard.ThumbWidth,
	})

	router := api.SetupRouter(api.Deps{
		Dashboard:    dashboard,
		Queries:      queries,
		Logger:       log,
		Server:       cfg.Server,
		RateLimit:    cfg.RateLimit,
		HistoryLimit: cfg.Dashboard.HistoryLimit,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logger.Fields{
			"port":     cfg.Server.Port,
			"mode":     cfg.Server.Mode,
			"database": cfg.Athena.Database,
			"version":  version.Version,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}
