package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"suncoop/backend/internal/api/handler"
	"suncoop/backend/internal/api/middleware"
	"suncoop/backend/internal/api/router"
	"suncoop/backend/internal/repository"
	"suncoop/backend/internal/scheduler"
	"suncoop/backend/internal/service"
	"suncoop/backend/pkg/database"
	"suncoop/backend/pkg/jwt"
	"suncoop/backend/pkg/redis"
)

func newServeCmd(configPath *string) *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务与后台任务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configPath, skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "启动时不执行数据库迁移")
	return cmd
}

func serve(parent context.Context, configPath string, skipMigrate bool) error {
	// 1. 配置、日志、数据库
	rt, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, logger := rt.cfg, rt.logger

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
	)

	// 1.1 数据库迁移
	if !skipMigrate {
		sqlDB, err := rt.db.DB()
		if err != nil {
			return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
		}
		if err := database.RunMigrations(sqlDB, logger); err != nil {
			return err
		}
	}

	// 2. Redis（可选：连接失败时单实例降级运行）
	var (
		rdb      *redis.Client
		limiter  middleware.RateChecker
		schedOps []scheduler.Option
	)
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(&cfg.Redis, logger.Named("redis"))
		if err != nil {
			logger.Warn("Redis 连接失败，定时任务锁与分布式限流不可用", zap.Error(err))
			rdb = nil
		}
	}
	if rdb != nil {
		defer rdb.Close()
		limiter = rdb
		schedOps = append(schedOps, scheduler.WithLocker(rdb))
	}

	// 3. 依赖注入: Repository → Service → Handler
	sched := scheduler.New(logger.Named("scheduler"), schedOps...)
	repo := repository.NewRepository(rt.db)
	svc := service.NewService(cfg, repo, sched, logger)
	if err := service.RegisterJobs(sched, &cfg.Scheduler, svc); err != nil {
		return fmt.Errorf("登记后台任务失败: %w", err)
	}
	h := handler.NewHandler(svc)

	// 4. 路由与 HTTP 服务器
	gin.SetMode(gin.ReleaseMode)
	engine := router.Setup(cfg, h, jwt.NewManager(&cfg.Auth), limiter, logger.Named("http"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 5. 等待退出信号或服务器异常
	select {
	case <-ctx.Done():
		logger.Info("收到关闭信号，开始优雅关闭...")
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP 服务器异常", zap.Error(err))
		}
	}

	// 6. 依次关闭：HTTP → 调度器 → 通知投递
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		logger.Warn("调度器关闭超时", zap.Error(err))
	}
	svc.Notifier.Wait()

	logger.Info("服务器已关闭")
	return nil
}
