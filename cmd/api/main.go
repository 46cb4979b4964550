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

	_ "go.uber.org/automaxprocs"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"go-library-catalog/internal/core/auth"
	"go-library-catalog/internal/core/cache"
	"go-library-catalog/internal/core/config"
	"go-library-catalog/internal/core/database"
	"go-library-catalog/internal/core/logger"
	"go-library-catalog/internal/core/server"
	"go-library-catalog/internal/library"
	"go-library-catalog/internal/repo"
	"go-library-catalog/internal/transport/http/handler"
	"go-library-catalog/internal/transport/http/router"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("CONFIG_PATH"))
	log, cleanup := logger.New(logger.Options{
		Level: cfg.Log.Level,
		JSON:  cfg.Log.JSON,
		Rotate: logger.FileRotate{
			Filename:   cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		},
	})
	defer cleanup()

	policies, err := cfg.Library.PolicyTable()
	if err != nil {
		log.Fatal("policy table", zap.Error(err))
	}

	// 指标：独立 registry，不用全局默认
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	lib, err := library.New(library.Options{
		Policies:     policies,
		BlockOverdue: cfg.Library.BlockOverdue,
		Logger:       log.Named("library"),
		Metrics:      library.NewMetrics(reg),
	})
	if err != nil {
		log.Fatal("library init", zap.Error(err))
	}

	// 持久化（可选）：未配置 db.driver 时纯内存运行
	store := openStore(cfg, log)
	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		snap, err := store.Load(ctx)
		cancel()
		if err != nil {
			log.Fatal("snapshot load", zap.Error(err))
		}
		if err := lib.Restore(snap); err != nil {
			log.Fatal("snapshot restore", zap.Error(err))
		}
		log.Info("snapshot restored",
			zap.Int("books", len(snap.Books)),
			zap.Int("users", len(snap.Users)),
			zap.Int("records", len(snap.Records)),
		)
	} else {
		log.Warn("no db configured, state is in-memory only")
	}

	// JWT
	jwter := &auth.JWTer{
		Secret: []byte(cfg.JWT.Secret),
		Issuer: cfg.JWT.Issuer,
		TTL:    time.Duration(cfg.JWT.AccessTokenTTLMin) * time.Minute,
	}

	h := handler.NewLibraryHandler(lib, jwter, handler.Librarian{
		Username:     cfg.Admin.Username,
		PasswordHash: cfg.Admin.PasswordHash,
	}, store, log.Named("http"))

	r := router.NewAPIEngine(router.Deps{
		Log:      log,
		Mode:     server.GinMode(cfg.App.Env),
		Handler:  h,
		JWT:      jwter,
		Registry: reg,
		Limits: router.Limits{
			RPS:           cfg.App.HTTP.RateLimitRPS,
			Burst:         cfg.App.HTTP.RateLimitBurst,
			MaxConcurrent: cfg.App.HTTP.MaxConcurrent,
			MaxBodyBytes:  cfg.App.HTTP.MaxBodyBytes,
			Timeout:       time.Duration(cfg.App.HTTP.RequestTimeoutSec) * time.Second,
			LoginRPS:      cfg.App.HTTP.LoginRPS,
			LoginBurst:    cfg.App.HTTP.LoginBurst,
		},
	})

	// HTTP Server
	addr := server.Addr(cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	srv := server.BuildServer(
		addr, r,
		time.Duration(cfg.App.HTTP.ReadTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.WriteTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.IdleTimeoutSec)*time.Second,
	)

	// 启动日志
	host4human := cfg.App.HTTP.Host
	if host4human == "" || host4human == "0.0.0.0" {
		host4human = "127.0.0.1"
	}
	baseURL := "http://" + host4human + ":" + fmt.Sprint(cfg.App.HTTP.Port)
	log.Info("library api starting",
		zap.String("addr", addr),
		zap.String("open", baseURL),
		zap.String("health", baseURL+"/health"),
		zap.String("metrics", baseURL+"/metrics"),
		zap.String("api_v1", baseURL+"/api/v1"),
	)

	// 异步启动
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("library api start FAILED", zap.Error(err))
		}
	}()
	log.Info("library api started SUCCESS")

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	// 最后一次落盘
	if store != nil {
		if err := store.Save(ctx, lib.Snapshot()); err != nil {
			log.Error("final snapshot save failed", zap.Error(err))
		}
	}
	log.Info("library api stopped gracefully")
}

func openStore(cfg *config.Config, l *zap.Logger) repo.SnapshotStore {
	if cfg.DB.Driver == "" {
		return nil
	}
	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		Log:                logger.ToStdLogger(l.Named("gorm"), zapcore.WarnLevel),
	})
	if err != nil {
		l.Fatal("db open", zap.Error(err))
	}
	l.Info("database connected", zap.String("driver", cfg.DB.Driver))

	snapshots := repo.NewSnapshotRepo(db)
	if cfg.DB.AutoMigrate {
		if err := snapshots.Migrate(context.Background()); err != nil {
			l.Fatal("automigrate failed", zap.Error(err))
		}
		l.Info("automigrate done")
	}
	ttl := time.Duration(cfg.Redis.SnapshotTTLSec) * time.Second
	return repo.NewStore(snapshots, openCache(cfg, l), ttl, l.Named("cache"))
}

// openCache 返回 nil 表示未配置 redis
func openCache(cfg *config.Config, l *zap.Logger) *cache.Cache {
	if cfg.Redis.Addr == "" {
		return nil
	}
	c := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		l.Warn("redis unreachable, snapshot cache degraded", zap.Error(err))
	}
	return c
}
