package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/amb-mes/internal/config"
	"github.com/bitfantasy/amb-mes/internal/mes/classify"
	"github.com/bitfantasy/amb-mes/internal/mes/entity"
	"github.com/bitfantasy/amb-mes/internal/mes/events"
	"github.com/bitfantasy/amb-mes/internal/mes/handler"
	"github.com/bitfantasy/amb-mes/internal/mes/repository"
	"github.com/bitfantasy/amb-mes/internal/mes/sequence"
	"github.com/bitfantasy/amb-mes/internal/mes/service"
	"github.com/bitfantasy/amb-mes/internal/middleware"
	"github.com/bitfantasy/amb-mes/internal/shared/erpnext"
	"github.com/bitfantasy/amb-mes/internal/shared/feishu"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting amb-mes service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	db, err := initDatabase(cfg.Database, cfg.Server.Mode == gin.DebugMode)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := entity.AutoMigrate(db); err != nil {
		zapLogger.Warn("AutoMigrate MES tables warning", zap.Error(err))
	}

	rdb := initRedis(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
		if err := rdb.Ping(cmd.Context()).Err(); err != nil {
			zapLogger.Warn("Redis unavailable at startup", zap.Error(err))
		}
	}

	hub := events.NewHub(zapLogger)
	services, err := buildServices(cmd.Context(), cfg, db, rdb, hub, zapLogger)
	if err != nil {
		return err
	}

	health := handler.NewHealthHandler(Version, BuildTime, healthChecks(db, rdb)...)
	handlers := handler.NewHandlers(services, health, hub)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/mes/events"})))

	handler.RegisterRoutes(router, handlers, cfg.JWT.Secret)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")
	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
	return nil
}

// buildServices 按配置选择序号后端、物料目录、通知与存储
func buildServices(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb *redis.Client, hub *events.Hub, zapLogger *zap.Logger) (*service.Services, error) {
	repos := repository.NewRepositories(db)

	var seq sequence.Allocator
	switch cfg.Sequence.Backend {
	case config.SequenceRedis:
		seq = sequence.NewRedisAllocator(rdb, cfg.Sequence.KeyPrefix)
	case config.SequenceMemory:
		seq = sequence.NewMemoryAllocator()
	default:
		seq = sequence.NewDBAllocator(db)
	}

	var catalog repository.ItemSource = repos.Item
	if cfg.Catalog.Source == config.CatalogERPNext {
		catalog = service.NewERPNextCatalog(erpnext.NewClient(cfg.ERPNext.BaseURL, cfg.ERPNext.APIKey, cfg.ERPNext.APISecret))
	}
	if rdb != nil && cfg.Catalog.CacheTTL > 0 {
		catalog = repository.NewCachedCatalog(catalog, rdb, cfg.Catalog.CacheTTL, zapLogger)
	}

	classifier := classify.Default()
	if cfg.Classifier.RulesFile != "" {
		f, err := os.Open(cfg.Classifier.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("打开分类规则文件失败: %w", err)
		}
		defer f.Close()
		rules, err := classify.LoadRules(f)
		if err != nil {
			return nil, err
		}
		if classifier, err = classify.New(rules); err != nil {
			return nil, err
		}
	}

	var notifier service.Notifier
	if cfg.Feishu.AppID != "" {
		notifier = service.NewFeishuNotifier(feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, cfg.Feishu.BaseURL))
	}

	var storage service.ReportStorage
	if cfg.MinIO.Endpoint != "" {
		s, err := service.NewMinIOStorage(ctx, cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.Bucket, cfg.MinIO.UseSSL)
		if err != nil {
			zapLogger.Warn("MinIO unavailable, COA reports will not be uploaded", zap.Error(err))
		} else {
			storage = s
		}
	}

	return service.NewServices(service.Deps{
		Batches:    repos.Batch,
		Containers: repos.Container,
		BOMs:       repos.BOM,
		COAs:       repos.COA,
		Items:      repos.Item,
		Catalog:    catalog,
		Sequence:   seq,
		Audit:      repos.Audit,
		Notifier:   notifier,
		Storage:    storage,
		Events:     hub,
		Logger:     zapLogger,
		Options: service.Options{
			Golden:        cfg.Golden,
			NameMaxLength: cfg.Naming.MaxLength,
			Classifier:    classifier,
			NotifyChatID:  cfg.Feishu.ChatID,
		},
	}), nil
}

func healthChecks(db *gorm.DB, rdb *redis.Client) []handler.Checker {
	checks := []handler.Checker{
		handler.CheckFunc{Label: "database", Fn: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}},
	}
	if rdb != nil {
		checks = append(checks, handler.CheckFunc{Label: "redis", Fn: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return checks
}
