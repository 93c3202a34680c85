package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"suncoop/backend/config"
	"suncoop/backend/pkg/database"
	applogger "suncoop/backend/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "suncoop",
		Short:         "SunCoop 班次考勤后端",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径（默认查找 ./config/config.yaml）")

	root.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newRunJobCmd(&configPath),
	)
	return root
}

// app 各子命令共用的基础依赖
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
}

// bootstrap 加载配置、初始化日志并连接数据库
func bootstrap(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, db: db}, nil
}

func (rt *app) close() {
	if sqlDB, err := rt.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			rt.logger.Warn("关闭数据库连接失败", zap.Error(err))
		}
	}
	_ = rt.logger.Sync()
}
