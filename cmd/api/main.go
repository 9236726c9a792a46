package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/estfbs/pfe-management-api/api/swagger"
	"github.com/estfbs/pfe-management-api/internal/handler"
	"github.com/estfbs/pfe-management-api/internal/middleware"
	"github.com/estfbs/pfe-management-api/internal/models"
	"github.com/estfbs/pfe-management-api/internal/repository"
	"github.com/estfbs/pfe-management-api/internal/service"
	"github.com/estfbs/pfe-management-api/pkg/cache"
	"github.com/estfbs/pfe-management-api/pkg/config"
	"github.com/estfbs/pfe-management-api/pkg/database"
	"github.com/estfbs/pfe-management-api/pkg/jobs"
	"github.com/estfbs/pfe-management-api/pkg/logger"
	corsmiddleware "github.com/estfbs/pfe-management-api/pkg/middleware/cors"
	reqidmiddleware "github.com/estfbs/pfe-management-api/pkg/middleware/requestid"
	"github.com/estfbs/pfe-management-api/pkg/storage"
)

// @title PFE Management API
// @version 1.0.0
// @description Binome pairing, sujet selection and soutenance planning backend
// @BasePath /api/v1
// @schemes http

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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, planning cache disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	userRepo := repository.NewUserRepository(db)
	pairingRepo := repository.NewPairingRepository(db)
	soutenanceRepo := repository.NewSoutenanceRepository(db)
	salleRepo := repository.NewSalleRepository(db)
	filiereRepo := repository.NewFiliereRepository(db)
	sujetRepo := repository.NewSujetRepository(db)
	exportRepo := repository.NewPlanningExportRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, cfg.JWT, logr)
	pairingSvc := service.NewPairingService(pairingRepo, userRepo, filiereRepo, userRepo, logr).WithMetrics(metricsSvc)
	sujetSvc := service.NewSujetService(sujetRepo, pairingRepo, userRepo, filiereRepo, logr)
	soutenanceSvc := service.NewSoutenanceService(soutenanceRepo, salleRepo, pairingRepo, userRepo, userRepo, redisClient, cfg.Planning.CacheTTL, logr).WithMetrics(metricsSvc)
	accountSvc := service.NewAccountService(userRepo, filiereRepo, logr)

	uploadStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	evaluationSvc := service.NewEvaluationService(evaluationRepo, soutenanceRepo, pairingRepo, userRepo, uploadStore, userRepo, logr)

	var planningSvc *service.PlanningService
	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		planningSvc = service.NewPlanningService(exportRepo, soutenanceRepo, store, signer, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
		}, logr).WithMetrics(metricsSvc)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	pairingHandler := handler.NewPairingHandler(pairingSvc)
	sujetHandler := handler.NewSujetHandler(sujetSvc)
	soutenanceHandler := handler.NewSoutenanceHandler(soutenanceSvc)
	accountHandler := handler.NewAccountHandler(accountSvc)
	catalogHandler := handler.NewCatalogHandler(salleRepo, filiereRepo, userRepo)
	evaluationHandler := handler.NewEvaluationHandler(evaluationSvc, cfg.Uploads.MaxSizeBytes)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.PUT("/auth/password", authHandler.ChangePassword)
	authed.GET("/auth/me", authHandler.Me)

	etudiant := authed.Group("", middleware.RequireRoles(models.RoleEtudiant))
	etudiant.GET("/binomes/status", pairingHandler.Status)
	etudiant.GET("/binomes/search", pairingHandler.Search)
	etudiant.POST("/binomes/requests", pairingHandler.SendRequest)
	etudiant.POST("/binomes/requests/:id/respond", pairingHandler.Respond)
	etudiant.DELETE("/binomes/requests/:id", pairingHandler.Cancel)
	etudiant.POST("/binomes/solo", pairingHandler.ContinueSolo)
	etudiant.GET("/sujets/available", sujetHandler.Available)
	etudiant.POST("/sujets/select", sujetHandler.Select)
	etudiant.POST("/sujets/random", sujetHandler.SelectRandom)
	etudiant.POST("/sujets/proposals", sujetHandler.Propose)
	etudiant.POST("/rapports", evaluationHandler.SubmitRapport)
	etudiant.GET("/rapports/mine", evaluationHandler.MyRapport)

	staff := authed.Group("", middleware.RequireRoles(models.RoleChefDepartement, models.RoleAdmin))
	staff.GET("/sujets/proposals", sujetHandler.ListProposals)
	staff.POST("/sujets", sujetHandler.Create)
	staff.GET("/jurys", catalogHandler.ListJurys)
	staff.POST("/soutenances", soutenanceHandler.Create)
	staff.POST("/soutenances/validate", soutenanceHandler.Validate)
	staff.PUT("/soutenances/:id", soutenanceHandler.Update)
	staff.DELETE("/soutenances/:id", soutenanceHandler.Delete)
	staff.POST("/salles", catalogHandler.CreateSalle)

	jury := authed.Group("", middleware.RequireRoles(models.RoleJury))
	jury.POST("/soutenances/:id/notes", evaluationHandler.RecordNote)

	evaluators := authed.Group("", middleware.RequireRoles(models.RoleJury, models.RoleEncadrant, models.RoleChefDepartement, models.RoleAdmin))
	evaluators.GET("/soutenances/:id/notes", evaluationHandler.ListNotes)
	evaluators.PUT("/rapports/:id/note", evaluationHandler.GradeRapport)

	authed.GET("/rapports/:id/download", evaluationHandler.DownloadRapport)

	authed.GET("/soutenances", soutenanceHandler.List)
	authed.GET("/soutenances/:id", soutenanceHandler.Get)
	authed.GET("/salles", catalogHandler.ListSalles)
	authed.GET("/filieres", catalogHandler.ListFilieres)

	admin := authed.Group("", middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/accounts", accountHandler.List)
	admin.POST("/accounts", accountHandler.Create)
	admin.GET("/accounts/:id", accountHandler.Get)
	admin.PUT("/accounts/:id", accountHandler.Update)
	admin.DELETE("/accounts/:id", accountHandler.Delete)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if planningSvc != nil {
		planningHandler := handler.NewPlanningHandler(planningSvc)
		api.GET("/planning/exports/download", planningHandler.Download)
		staff.POST("/planning/exports", planningHandler.RequestExport)
		staff.GET("/planning/exports/:id", planningHandler.GetExport)

		planningSvc.StartQueue(ctx)
		defer planningSvc.StopQueue()

		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					planningSvc.CleanupArtifacts(cfg.Exports.SignedURLTTL)
				}
			}
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
