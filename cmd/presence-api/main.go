package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/presence-api/api/swagger"
	"github.com/noah-isme/presence-api/internal/handler"
	"github.com/noah-isme/presence-api/internal/middleware"
	"github.com/noah-isme/presence-api/internal/models"
	"github.com/noah-isme/presence-api/internal/repository"
	"github.com/noah-isme/presence-api/internal/service"
	"github.com/noah-isme/presence-api/pkg/cache"
	"github.com/noah-isme/presence-api/pkg/config"
	"github.com/noah-isme/presence-api/pkg/database"
	"github.com/noah-isme/presence-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/presence-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/presence-api/pkg/middleware/requestid"
)

// @title Presence API
// @version 1.0.0
// @description Classroom attendance decision engine
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
		logr.Sugar().Fatalw("postgres unavailable", "error", err)
	}
	defer db.Close()

	// Redis backs the per-identity submission lock and dashboard cache; the
	// service still renders decisions without it, lookback-only.
	var redisClient *redis.Client
	if client, err := cache.NewRedis(cfg.Redis); err != nil {
		logr.Sugar().Warnw("redis unavailable, submission lock disabled", "error", err)
	} else {
		redisClient = client
		defer client.Close()
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	attendanceRepo := repository.NewAttendanceRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	checkinSvc := service.NewCheckInService(attendanceRepo, studentRepo, classroomRepo, cacheRepo, metricsSvc, validate, logr, service.CheckInConfig{
		RateLimitWindow: cfg.Attendance.RateLimitWindow,
		DefaultRadiusM:  cfg.Attendance.DefaultRadiusM,
		LockTTL:         cfg.Attendance.LockTTL,
	})
	rotationSvc := service.NewRotationService(classroomRepo, validate, logr)
	classroomSvc := service.NewClassroomService(classroomRepo, validate, logr, cfg.Attendance.DefaultRadiusM)
	studentSvc := service.NewStudentService(studentRepo, logr)
	dashboardSvc := service.NewDashboardService(attendanceRepo, cacheRepo, metricsSvc, logr, cfg.Dashboard.CacheTTL)

	checkinHandler := handler.NewCheckInHandler(checkinSvc)
	rotationHandler := handler.NewRotationHandler(rotationSvc)
	classroomHandler := handler.NewClassroomHandler(classroomSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	attendanceHandler := handler.NewAttendanceHandler(dashboardSvc)

	verifier := middleware.NewAssertionVerifier(cfg.Assertion)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.Authenticate(verifier))
	{
		api.POST("/checkins", checkinHandler.Submit)

		staff := api.Group("", middleware.RequireRoles(models.RoleStaff, models.RoleAdmin))
		{
			staff.GET("/attendance", attendanceHandler.List)
			staff.GET("/attendance/export", attendanceHandler.Export)
			staff.GET("/classrooms", classroomHandler.List)
			staff.GET("/classrooms/:id", classroomHandler.Get)
		}

		admin := api.Group("", middleware.RequireRoles(models.RoleAdmin))
		{
			admin.POST("/classrooms", classroomHandler.Create)
			admin.POST("/classrooms/:id/rotate-secret", rotationHandler.Rotate)
			admin.GET("/classrooms/:id/rotations", rotationHandler.History)
			admin.POST("/students/:id/reset-device", studentHandler.ResetDevice)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
