package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinsight/ctr-registry-api/internal/handler"
	"github.com/clinsight/ctr-registry-api/internal/middleware"
	"github.com/clinsight/ctr-registry-api/internal/realtime"
	"github.com/clinsight/ctr-registry-api/internal/repository"
	"github.com/clinsight/ctr-registry-api/internal/service"
	"github.com/clinsight/ctr-registry-api/pkg/cache"
	"github.com/clinsight/ctr-registry-api/pkg/config"
	"github.com/clinsight/ctr-registry-api/pkg/database"
	"github.com/clinsight/ctr-registry-api/pkg/jobs"
	"github.com/clinsight/ctr-registry-api/pkg/logger"
	corsmiddleware "github.com/clinsight/ctr-registry-api/pkg/middleware/cors"
	reqidmiddleware "github.com/clinsight/ctr-registry-api/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()
	runner := database.NewRunner(db)

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, tracker cache disabled", "error", err)
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	studyRepo := repository.NewStudyRepository(db)
	releaseRepo := repository.NewReleaseRepository(db)
	effortRepo := repository.NewEffortRepository(db)
	itemRepo := repository.NewItemRepository(db)
	trackerRepo := repository.NewTrackerRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	packageRepo := repository.NewPackageRepository(db)
	textElementRepo := repository.NewTextElementRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Realtime hub. Snapshots read through the repositories directly so
	// a connecting client sees committed state only.
	metricsSvc := service.NewMetricsService()
	snapshotSvc := service.NewSnapshotService(studyRepo, releaseRepo, effortRepo, trackerRepo)
	hub := realtime.NewHub(snapshotSvc, logr, metricsSvc, cfg.Realtime.EventBuffer)
	go hub.Run(ctx)

	// Services.
	auditSvc := service.NewAuditService(auditRepo, logr)
	studySvc := service.NewStudyService(runner, studyRepo, auditSvc, hub, metricsSvc, logr)
	releaseSvc := service.NewReleaseService(runner, releaseRepo, studyRepo, auditSvc, hub, metricsSvc, logr)
	effortSvc := service.NewEffortService(runner, effortRepo, releaseRepo, auditSvc, hub, metricsSvc, logr)
	itemSvc := service.NewItemService(runner, itemRepo, effortRepo, trackerRepo, auditSvc, hub, cacheRepo, metricsSvc, logr)
	trackerSvc := service.NewTrackerService(runner, trackerRepo, itemRepo, userRepo, cacheRepo, auditSvc, hub, metricsSvc, logr)
	commentSvc := service.NewCommentService(runner, commentRepo, trackerRepo, itemRepo, auditSvc, hub, cacheRepo, metricsSvc, logr)
	packageSvc := service.NewPackageService(runner, packageRepo, auditSvc, hub, metricsSvc, logr)
	textElementSvc := service.NewTextElementService(runner, textElementRepo, auditSvc, hub, metricsSvc, logr)
	userSvc := service.NewUserService(runner, userRepo, auditSvc, hub, metricsSvc, logr)
	copySvc := service.NewCopyService(runner, itemRepo, effortRepo, packageRepo, trackerRepo, auditSvc, hub, cacheRepo, metricsSvc, logr)
	deleteSvc := service.NewDeleteService(runner, studyRepo, releaseRepo, effortRepo, itemRepo, trackerRepo, commentRepo, packageRepo, textElementRepo, userRepo, auditSvc, hub, cacheRepo, metricsSvc, logr)

	var exportSvc *service.ExportService
	var exportQueue *jobs.Queue
	if cfg.Exports.Enabled {
		exportSvc = service.NewExportService(effortRepo, trackerRepo, nil, cfg.Exports.ResultTTL, logr)
		exportQueue = jobs.NewQueue("exports", exportSvc.HandleJob, jobs.QueueConfig{
			Workers: cfg.Exports.WorkerConcurrency,
			Logger:  logr,
		})
		exportSvc.SetQueue(exportQueue)
		exportQueue.Start(ctx)
		defer exportQueue.Stop()
	}

	// Handlers.
	studyHandler := handler.NewStudyHandler(studySvc)
	releaseHandler := handler.NewReleaseHandler(releaseSvc)
	effortHandler := handler.NewEffortHandler(effortSvc)
	itemHandler := handler.NewItemHandler(itemSvc)
	trackerHandler := handler.NewTrackerHandler(trackerSvc)
	commentHandler := handler.NewCommentHandler(commentSvc)
	packageHandler := handler.NewPackageHandler(packageSvc)
	textElementHandler := handler.NewTextElementHandler(textElementSvc)
	userHandler := handler.NewUserHandler(userSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	copyHandler := handler.NewCopyHandler(copySvc)
	deleteHandler := handler.NewDeleteHandler(deleteSvc)
	wsHandler := handler.NewWSHandler(hub, cfg.Realtime, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))
	r.GET("/ws", wsHandler.Subscribe)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.OptionalJWT(cfg.JWT.Secret))
	{
		api.GET("/studies", studyHandler.List)
		api.GET("/studies/:id", studyHandler.Get)
		api.POST("/studies", studyHandler.Create)
		api.PATCH("/studies/:id", studyHandler.Update)
		api.GET("/studies/:id/database-releases", releaseHandler.ListByStudy)
		api.GET("/studies/:id/reporting-efforts", effortHandler.ListByStudy)

		api.GET("/database-releases/:id", releaseHandler.Get)
		api.POST("/database-releases", releaseHandler.Create)
		api.PATCH("/database-releases/:id", releaseHandler.Update)
		api.GET("/database-releases/:id/reporting-efforts", effortHandler.ListByRelease)

		api.GET("/reporting-efforts/:id", effortHandler.Get)
		api.POST("/reporting-efforts", effortHandler.Create)
		api.PATCH("/reporting-efforts/:id", effortHandler.Update)
		api.GET("/reporting-efforts/:id/items", itemHandler.ListByEffort)
		api.GET("/reporting-efforts/:id/trackers", trackerHandler.ListByEffort)
		api.POST("/reporting-efforts/:id/copy-items", copyHandler.Copy)

		api.GET("/items/:id", itemHandler.Get)
		api.POST("/items", itemHandler.Create)
		api.PATCH("/items/:id", itemHandler.Update)
		api.GET("/items/:id/tracker", trackerHandler.GetByItem)

		api.GET("/trackers/:id", trackerHandler.Get)
		api.PATCH("/trackers/:id", trackerHandler.Update)
		api.GET("/trackers/:id/comments", commentHandler.ListByTracker)

		api.POST("/comments", commentHandler.Create)
		api.POST("/comments/:id/resolve", commentHandler.Resolve)
		api.POST("/comments/:id/unresolve", commentHandler.Unresolve)
		api.DELETE("/comments/:id", commentHandler.Delete)

		api.GET("/packages", packageHandler.List)
		api.GET("/packages/:id", packageHandler.Get)
		api.POST("/packages", packageHandler.Create)
		api.PATCH("/packages/:id", packageHandler.Update)
		api.GET("/packages/:id/items", packageHandler.ListItems)
		api.POST("/package-items", packageHandler.AddItem)
		api.GET("/package-items/:id", packageHandler.GetItem)
		api.PATCH("/package-items/:id", packageHandler.UpdateItem)

		api.GET("/text-elements", textElementHandler.List)
		api.GET("/text-elements/:id", textElementHandler.Get)
		api.POST("/text-elements", textElementHandler.Create)
		api.PATCH("/text-elements/:id", textElementHandler.Update)

		api.GET("/users", userHandler.List)
		api.GET("/users/:id", userHandler.Get)
		api.POST("/users", userHandler.Create)

		api.GET("/audit-log", auditHandler.List)
		api.DELETE("/:entity/:id", deleteHandler.Delete)

		if exportSvc != nil {
			exportHandler := handler.NewExportHandler(exportSvc)
			api.POST("/reporting-efforts/:id/exports", exportHandler.Create)
			api.GET("/exports/:exportId", exportHandler.Status)
			api.GET("/exports/:exportId/download", exportHandler.Download)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
