package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"exam_review_backend/internal/config"
	"exam_review_backend/internal/controller"
	"exam_review_backend/internal/repository"
	"exam_review_backend/internal/service"
	"exam_review_backend/internal/util"
	"exam_review_backend/pkg/configwatcher"
	"exam_review_backend/pkg/database"
	"exam_review_backend/pkg/logger"
	"exam_review_backend/pkg/monitoring"
	"exam_review_backend/pkg/retry"
	"exam_review_backend/pkg/security"
	"exam_review_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
	callbackMu      sync.Mutex
	bgCtx           context.Context
	bgCancel        context.CancelFunc
}

type repositories struct {
	question *repository.QuestionRepository
	testRun  *repository.TestRunRepository
	attempt  *repository.TestAttemptRepository
}

type services struct {
	ai      *service.AIService
	storage *service.StorageService
	testing *service.TestingService
}

type controllers struct {
	testing *controller.TestingController
	health  *controller.HealthController
}

// RegisterConfigCallback 配置文件变更后回调
func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.callbackMu.Lock()
	defer a.callbackMu.Unlock()
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) notifyConfigChanged(cfg *config.Config) {
	a.callbackMu.Lock()
	callbacks := append([]func(*config.Config){}, a.configCallbacks...)
	a.callbackMu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		question: repository.NewQuestionRepository(db),
		testRun:  repository.NewTestRunRepository(db),
		attempt:  repository.NewTestAttemptRepository(db),
	}
}

func newRetrier(cfg config.RetryConfig) (*retry.Retrier, error) {
	policy := retry.Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      cfg.Multiplier,
	}
	return retry.New(policy, retry.WithObserver(func(op string, attempt int, err error) {
		monitoring.AICallFailures.WithLabelValues(op).Inc()
	}))
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) (*services, error) {
	s := &services{}

	retrier, err := newRetrier(cfg.Retry)
	if err != nil {
		return nil, err
	}

	var guard service.RunGuard
	if rdb != nil {
		guard = service.NewRedisRunGuard(rdb, cfg.Testing.LeaseTTL)
	} else {
		guard = service.NewMemoryRunGuard()
	}

	s.ai = service.NewAIService(cfg.AI)
	s.storage = service.NewStorageService(&cfg.Storage)
	s.testing = service.NewTestingService(
		repos.question,
		repos.testRun,
		repos.attempt,
		service.NewAIAnswerer(s.ai),
		service.NewAIVerifier(s.ai),
		retrier,
		guard,
		cfg.Testing,
		service.WithStorage(s.storage),
	)

	return s, nil
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		testing: controller.NewTestingController(s.testing),
		health:  controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(a.bgCtx, cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 启动时清理上次进程遗留的 run，之后定期清理心跳过期的 run
func (a *App) startBackgroundTasks(s *services) {
	settings := s.testing.Settings()

	ctx, cancel := context.WithTimeout(a.bgCtx, time.Minute)
	removed, err := s.testing.CleanupIncomplete(ctx, settings.StaleAfter)
	cancel()
	if err != nil {
		logger.Log.Error("startup cleanup failed", zap.Error(err))
	} else {
		logger.Log.Info("startup cleanup finished", zap.Int("removed", removed))
	}

	go func() {
		interval := settings.SweepInterval
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.bgCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.testing.SweepExpiredLeases(a.bgCtx, s.testing.Settings().LeaseTTL); err != nil {
					logger.Log.Error("lease sweep error", zap.Error(err))
				}
			}
		}
	}()

	if a.Config.ConfigFile != "" {
		go func() {
			if err := configwatcher.WatchConfig(a.bgCtx, a.Config.ConfigFile, nil, a.notifyConfigChanged); err != nil {
				logger.Log.Error("config watcher stopped", zap.Error(err))
			}
		}()
	}
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	app := &App{
		Config:   cfg,
		DB:       db,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
	if cfg.MigrateOnly {
		return app
	}

	// Redis 可选，未配置时 run 占用只在本进程内生效
	if cfg.Redis.Enabled() {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		}
		app.Redis = rdb
	}

	repos := app.initRepositories(db)
	services, err := app.initServices(repos, cfg, app.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	app.services = services
	controllers := app.initControllers(services, db, app.Redis)

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		if err := services.testing.UpdateSettings(newCfg.Testing); err != nil {
			logger.Log.Error("Rejected testing config", zap.Error(err))
		}
	})

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == util.StorageLocal {
		router.Static("/archives", filepath.Clean(cfg.Storage.LocalPath))
	}

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.Close(ctx)
	log.Println("Server exiting")
}

// Close 停止后台任务，取消执行中的测试并丢弃其记录
func (a *App) Close(ctx context.Context) {
	a.bgCancel()

	if a.services != nil {
		if err := a.services.testing.Shutdown(ctx); err != nil {
			logger.Log.Error("Testing service shutdown timed out", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
