package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"suncoop/backend/internal/repository"
	"suncoop/backend/internal/scheduler"
	"suncoop/backend/internal/service"
)

// run-job 在当前进程内执行一次后台任务，供 cron / 运维排障使用
func newRunJobCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run-job <name>",
		Short: "立即执行一次后台任务",
		Long:  "可选任务: " + strings.Join(jobNames(), ", "),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched := scheduler.New(rt.logger.Named("scheduler"))
			svc := service.NewService(rt.cfg, repository.NewRepository(rt.db), sched, rt.logger)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.Server.ShutdownTimeout)
				defer cancel()
				_ = sched.Shutdown(shutdownCtx)
				svc.Notifier.Wait()
			}()

			task, ok := service.JobTasks(svc)[args[0]]
			if !ok {
				return fmt.Errorf("未知任务 %q，可选: %s", args[0], strings.Join(jobNames(), ", "))
			}

			start := time.Now()
			if err := task(ctx); err != nil {
				rt.logger.Error("任务执行失败", zap.String("job", args[0]), zap.Error(err))
				return err
			}
			rt.logger.Info("任务执行完成",
				zap.String("job", args[0]),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		},
	}
}

func jobNames() []string {
	names := make([]string, 0, 8)
	for name := range service.JobTasks(&service.Service{}) {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
