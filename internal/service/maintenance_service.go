package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"suncoop/backend/config"
	"suncoop/backend/internal/model"
	"suncoop/backend/internal/repository"
	pkgerrors "suncoop/backend/pkg/errors"
)

// MaintenanceService 健康检查与数据保留
type MaintenanceService interface {
	CheckStuckEntries(ctx context.Context) (int, error)
	CleanupPresence(ctx context.Context) (int64, error)
}

type maintenanceService struct {
	repo           *repository.Repository
	notifier       Notifier
	logger         *zap.Logger
	now            func() time.Time
	stuckThreshold time.Duration
	retention      time.Duration
}

// NewMaintenanceService 创建 MaintenanceService 实例
func NewMaintenanceService(cfg *config.Config, repo *repository.Repository, notifier Notifier, logger *zap.Logger) MaintenanceService {
	return &maintenanceService{
		repo:           repo,
		notifier:       notifier,
		logger:         logger,
		now:            utcNow,
		stuckThreshold: cfg.Wifi.StuckEntryThreshold,
		retention:      cfg.Wifi.PresenceRetention,
	}
}

// CheckStuckEntries 签到超过阈值仍未签退的工时，每条只提醒一次
func (s *maintenanceService) CheckStuckEntries(ctx context.Context) (int, error) {
	now := s.now()
	stuck, err := s.repo.TimeEntry.ListStuck(ctx, now.Add(-s.stuckThreshold))
	if err != nil {
		return 0, fmt.Errorf("查询长时间未签退工时失败: %w", err)
	}

	reported := 0
	for i := range stuck {
		entry := &stuck[i]
		if err := s.repo.TimeEntry.MarkStuckNotified(ctx, entry.TimeEntryID, now); err != nil {
			if !errors.Is(err, pkgerrors.ErrConditionNotMet) {
				s.logger.Error("标记异常工时失败", zap.String("time_entry_id", entry.TimeEntryID), zap.Error(err))
			}
			continue
		}

		hours := 0.0
		if entry.ClockInAt != nil {
			hours = now.Sub(*entry.ClockInAt).Hours()
		}
		s.logger.Warn("工时长时间未签退",
			zap.String("time_entry_id", entry.TimeEntryID),
			zap.String("worker_id", entry.WorkerID),
			zap.String("location_id", entry.LocationID),
			zap.Float64("hours", hours),
		)
		s.notifier.NotifyAdmins(ctx, model.NotifyStuckTimeEntry, NotificationPayload{
			Title:       "工时长时间未签退",
			Content:     fmt.Sprintf("成员 %s 已连续签到 %.1f 小时，请核实", entry.WorkerID, hours),
			RelatedType: "time_entry",
			RelatedID:   entry.TimeEntryID,
		})
		reported++
	}
	return reported, nil
}

// CleanupPresence 删除超过保留期的已关闭连接会话（仍有待签退的不删除）
func (s *maintenanceService) CleanupPresence(ctx context.Context) (int64, error) {
	n, err := s.repo.WifiStatus.DeleteClosedBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("清理连接会话失败: %w", err)
	}
	if n > 0 {
		s.logger.Info("连接会话清理完成", zap.Int64("deleted", n))
	}
	return n, nil
}
