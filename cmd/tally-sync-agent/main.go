package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/tally_sync_agent/backend"
	"bitbucket.org/mmdatafocus/tally_sync_agent/config"
	"bitbucket.org/mmdatafocus/tally_sync_agent/middlewares"
	"bitbucket.org/mmdatafocus/tally_sync_agent/models"
	"bitbucket.org/mmdatafocus/tally_sync_agent/store"
	"bitbucket.org/mmdatafocus/tally_sync_agent/syncer"
	"bitbucket.org/mmdatafocus/tally_sync_agent/tally"
	"bitbucket.org/mmdatafocus/tally_sync_agent/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := config.GetLogger()

	settings, err := config.LoadSettings()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "settings"}).Fatal(err)
	}
	config.SetLogLevel(settings.LogLevel)

	bookStart, err := utils.ParseTallyDate(settings.BookStartDate)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "BOOK_START_DATE"}).Fatal(err)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if err := config.ConnectDatabase(settings.DatabasePath); err != nil {
		logger.WithFields(logrus.Fields{"field": "database"}).Fatal(err)
	}
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	models.MigrateTable(db)

	fetcher := tally.NewClient(settings.TallyURL, settings.TallyCompany, logger)
	pusher := backend.NewClient(settings.APIBaseURL, settings.APIKey, settings.APIKeyHeader, settings.CompanyID, logger)

	checkpoints := store.NewCheckpointStore(db, settings.CompanyID)
	staging := store.NewStagingStore(db, settings.CompanyID)
	runs := store.NewRunStore(db, settings.CompanyID)

	subBatchDelay := time.Duration(settings.SubBatchDelayMs) * time.Millisecond

	balances := syncer.NewBalanceQueue(pusher, logger, subBatchDelay)
	balances.Start(sigCtx)

	// Pipelines read the stop flag through the orchestrator, which is
	// built from the pipelines; the closure breaks the cycle.
	var orchestrator *syncer.Orchestrator
	stopRequested := func() bool {
		return orchestrator != nil && orchestrator.StopRequested()
	}

	var runners []syncer.EntityRunner
	engines := map[string]*syncer.ResumeEngine{}
	for _, strategy := range syncer.NewStrategies(settings.TallyCompany) {
		engines[strategy.EntityType()] = syncer.NewResumeEngine(db, strategy, fetcher, checkpoints, staging, runs, logger)
		runners = append(runners, syncer.NewEntityPipeline(syncer.PipelineConfig{
			Strategy:      strategy,
			Fetcher:       fetcher,
			Pusher:        pusher,
			Checkpoints:   checkpoints,
			Staging:       staging,
			Runs:          runs,
			Balances:      balances,
			Logger:        logger,
			BookStart:     bookStart,
			SubBatchDelay: subBatchDelay,
			StopRequested: stopRequested,
		}))
	}
	runners = append(runners, syncer.NewDeletionReconciler(
		settings.TallyCompany, fetcher, pusher, checkpoints, staging, runs, logger, bookStart, subBatchDelay))
	runners = append(runners, syncer.NewAPISyncService(pusher, checkpoints, staging, runs, logger, subBatchDelay))

	orchestrator = syncer.NewOrchestrator(runs, checkpoints, logger, runners...)

	scheduler := syncer.NewScheduler(orchestrator, logger)
	if err := scheduler.Start(sigCtx, settings.SyncIntervalMinutes); err != nil {
		logger.WithFields(logrus.Fields{"field": "scheduler"}).Fatal(err)
	}
	defer scheduler.Stop()

	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type")
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.RequestLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api", middlewares.AuthMiddleware(settings.ShellToken))
	api.POST("/sync", syncer.TriggerSyncHandler(orchestrator))
	api.POST("/sync/stop", syncer.StopHandler(orchestrator))
	api.POST("/sync/restage/:entity", syncer.RestageHandler(orchestrator, engines))
	api.GET("/sync/status/:entity", syncer.StatusHandler(orchestrator))
	api.GET("/sync-runs", syncer.SyncHistoryHandler(runs))
	api.GET("/sync-runs/:id", syncer.SyncRunDetailHandler(runs))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    "127.0.0.1:" + settings.Port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	logger.WithFields(logrus.Fields{
		"port":     settings.Port,
		"interval": settings.SyncIntervalMinutes,
	}).Info("tally sync agent started")

	select {
	case <-sigCtx.Done():
		orchestrator.RequestStop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

