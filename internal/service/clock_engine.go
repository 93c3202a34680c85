package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"suncoop/backend/internal/model"
	"suncoop/backend/internal/repository"
	"suncoop/backend/internal/scheduler"
	pkgerrors "suncoop/backend/pkg/errors"
)

// OnceScheduler 一次性延迟任务调度
type OnceScheduler interface {
	ScheduleOnce(name string, delay time.Duration, task scheduler.Task) scheduler.Handle
	Cancel(h scheduler.Handle) bool
}

// ClockEngine 根据 WiFi 连接事件自动签到/签退
//
// 断线后的签退先写入连接会话的 pending_clock_out_at，再挂一个进程内定时器；
// 定时器与周期兜底任务通过条件更新抢占同一截止时间，只有一方真正执行签退。
type ClockEngine interface {
	OnConnect(ctx context.Context, rec *model.WifiStatus) model.AutoAction
	ClockOutDeadline(ctx context.Context, rec *model.WifiStatus, settings model.WifiSettings, at time.Time) *time.Time
	OnDisconnect(ctx context.Context, rec *model.WifiStatus, deadline *time.Time)
	ResolveDuePendingClockOuts(ctx context.Context) (int, error)
}

type clockEngine struct {
	repo     *repository.Repository
	sched    OnceScheduler
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]scheduler.Handle // worker:location → 进程内签退定时器
}

// NewClockEngine 创建 ClockEngine 实例
func NewClockEngine(repo *repository.Repository, sched OnceScheduler, notifier Notifier, logger *zap.Logger) ClockEngine {
	return &clockEngine{
		repo:     repo,
		sched:    sched,
		notifier: notifier,
		logger:   logger,
		now:      utcNow,
		pending:  make(map[string]scheduler.Handle),
	}
}

// 未上报班次时，按时间窗口匹配该成员在此地点已预约的班次
const (
	shiftMatchEarly    = time.Hour
	shiftMatchLookback = 24 * time.Hour
)

func pendingKey(workerID, locationID string) string {
	return workerID + ":" + locationID
}

// ────────────────────── 连接 ──────────────────────

// OnConnect 重连先撤销待执行的签退，再按需自动签到；返回写入会话流水的动作记录
func (e *clockEngine) OnConnect(ctx context.Context, rec *model.WifiStatus) model.AutoAction {
	action := e.autoClockIn(ctx, rec)
	autoClockEvents.WithLabelValues(action.Action, action.Result).Inc()
	return action
}

func (e *clockEngine) autoClockIn(ctx context.Context, rec *model.WifiStatus) model.AutoAction {
	at := rec.ConnectedAt
	action := model.AutoAction{Action: model.AutoActionClockIn, At: at}
	log := e.logger.With(
		zap.String("worker_id", rec.WorkerID),
		zap.String("location_id", rec.LocationID),
		zap.String("wifi_status_id", rec.WifiStatusID),
	)

	e.cancelPending(ctx, rec.WorkerID, rec.LocationID)

	active, err := e.repo.TimeEntry.GetActiveByWorker(ctx, rec.WorkerID)
	switch {
	case err == nil:
		action.Result = model.ActionResultSkipped
		action.TimeEntryID = active.TimeEntryID
		if active.LocationID != rec.LocationID {
			action.Detail = "已在其他地点签到"
			return action
		}
		action.Detail = "已处于签到状态"
		e.appendSSIDEvent(ctx, active, rec.SSID, model.SSIDEventConnected, at)
		return action
	case !errors.Is(err, gorm.ErrRecordNotFound):
		log.Error("查询进行中工时失败", zap.Error(err))
		action.Result = model.ActionResultFailed
		action.Detail = err.Error()
		return action
	}

	shiftID := rec.ShiftID
	if shiftID == nil {
		shiftID = e.matchBookedShift(ctx, rec.WorkerID, rec.LocationID, at)
	}

	entry := &model.TimeEntry{
		WorkerID:         rec.WorkerID,
		ShiftID:          shiftID,
		LocationID:       rec.LocationID,
		WorkDate:         workDate(at),
		ClockInAt:        &at,
		Status:           model.TimeEntryStatusClockedIn,
		IsWifiOriginated: true,
		SSIDLog:          []model.SSIDEvent{{SSID: rec.SSID, Event: model.SSIDEventConnected, At: at}},
	}
	if err := e.repo.TimeEntry.Create(ctx, entry); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			action.Result = model.ActionResultSkipped
			action.Detail = "并发签到，已存在进行中的工时"
			return action
		}
		log.Error("自动签到失败", zap.Error(err))
		action.Result = model.ActionResultFailed
		action.Detail = err.Error()
		return action
	}

	log.Info("WiFi 自动签到", zap.String("time_entry_id", entry.TimeEntryID))
	action.Result = model.ActionResultSuccess
	action.TimeEntryID = entry.TimeEntryID

	e.notifier.Notify(ctx, rec.WorkerID, model.NotifyAutoClockIn, NotificationPayload{
		Title:       "已自动签到",
		Content:     fmt.Sprintf("检测到您已连接 %s，于 %s 自动签到", rec.SSID, at.Format("15:04")),
		RelatedType: "time_entry",
		RelatedID:   entry.TimeEntryID,
	})
	return action
}

// cancelPending 撤销进程内定时器与持久化的签退截止时间
func (e *clockEngine) cancelPending(ctx context.Context, workerID, locationID string) {
	key := pendingKey(workerID, locationID)
	e.mu.Lock()
	h, ok := e.pending[key]
	delete(e.pending, key)
	e.mu.Unlock()
	if ok {
		e.sched.Cancel(h)
	}

	n, err := e.repo.WifiStatus.ClearPendingClockOuts(ctx, workerID, locationID)
	if err != nil {
		e.logger.Error("清除待签退记录失败",
			zap.String("worker_id", workerID),
			zap.String("location_id", locationID),
			zap.Error(err),
		)
		return
	}
	if n > 0 {
		e.logger.Info("重连，取消自动签退",
			zap.String("worker_id", workerID),
			zap.String("location_id", locationID),
		)
	}
}

// ────────────────────── 断开 ──────────────────────

// ClockOutDeadline 该地点存在进行中的工时时返回签退截止时间，否则返回 nil
func (e *clockEngine) ClockOutDeadline(ctx context.Context, rec *model.WifiStatus, settings model.WifiSettings, at time.Time) *time.Time {
	active, err := e.repo.TimeEntry.GetActiveByWorker(ctx, rec.WorkerID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			e.logger.Error("查询进行中工时失败", zap.String("worker_id", rec.WorkerID), zap.Error(err))
		}
		return nil
	}
	if active.LocationID != rec.LocationID {
		return nil
	}
	deadline := at.Add(settings.AutoClockOutDelay)
	return &deadline
}

// OnDisconnect 会话关闭后挂起延迟签退；deadline 为空表示无需签退
func (e *clockEngine) OnDisconnect(ctx context.Context, rec *model.WifiStatus, deadline *time.Time) {
	if deadline == nil {
		e.appendAction(ctx, rec.WifiStatusID, model.AutoAction{
			Action: model.AutoActionClockOut,
			Result: model.ActionResultSkipped,
			At:     e.now(),
			Detail: "该地点没有进行中的工时",
		})
		return
	}

	delay := deadline.Sub(e.now())
	if delay < 0 {
		delay = 0
	}
	statusID := rec.WifiStatusID
	key := pendingKey(rec.WorkerID, rec.LocationID)

	// 持锁登记，回调要等句柄写入 pending 后才能比对
	e.mu.Lock()
	var h scheduler.Handle
	h = e.sched.ScheduleOnce("auto-clock-out", delay, func(ctx context.Context) error {
		e.mu.Lock()
		if e.pending[key] == h {
			delete(e.pending, key)
		}
		e.mu.Unlock()
		_, err := e.resolvePending(ctx, statusID)
		return err
	})
	if old, ok := e.pending[key]; ok {
		e.sched.Cancel(old)
	}
	e.pending[key] = h
	e.mu.Unlock()

	e.logger.Info("已安排自动签退",
		zap.String("worker_id", rec.WorkerID),
		zap.String("location_id", rec.LocationID),
		zap.Time("deadline", *deadline),
	)
}

// ResolveDuePendingClockOuts 兜底处理已到期但定时器未执行的签退（例如进程重启）
func (e *clockEngine) ResolveDuePendingClockOuts(ctx context.Context) (int, error) {
	due, err := e.repo.WifiStatus.ListDuePendingClockOuts(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("查询到期待签退记录失败: %w", err)
	}

	var errs []error
	resolved := 0
	for i := range due {
		ok, err := e.resolvePending(ctx, due[i].WifiStatusID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			resolved++
		}
	}
	return resolved, errors.Join(errs...)
}

// resolvePending 抢占截止时间后复核：期间重连或工时已结束则放弃签退
// 返回 true 表示实际完成了一次签退
func (e *clockEngine) resolvePending(ctx context.Context, statusID string) (bool, error) {
	rec, err := e.repo.WifiStatus.GetByID(ctx, statusID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("查询连接会话失败: %w", err)
	}
	if rec.PendingClockOutAt == nil || rec.DisconnectedAt == nil {
		return false, nil
	}
	deadline := *rec.PendingClockOutAt
	reason := rec.PendingClockOutReason
	if reason == "" {
		reason = model.ClockOutReasonWifiDisconnected
	}

	if err := e.repo.WifiStatus.ClaimPendingClockOut(ctx, statusID); err != nil {
		if errors.Is(err, pkgerrors.ErrConditionNotMet) {
			return false, nil
		}
		return false, fmt.Errorf("抢占待签退记录失败: %w", err)
	}

	log := e.logger.With(
		zap.String("worker_id", rec.WorkerID),
		zap.String("location_id", rec.LocationID),
		zap.String("wifi_status_id", statusID),
	)
	skip := func(detail string) (bool, error) {
		e.appendAction(ctx, statusID, model.AutoAction{
			Action: model.AutoActionClockOut,
			Result: model.ActionResultSkipped,
			At:     e.now(),
			Detail: detail,
		})
		return false, nil
	}

	reconnected, err := e.repo.WifiStatus.HasReconnectAfter(ctx, rec.WorkerID, rec.LocationID, *rec.DisconnectedAt)
	if err != nil {
		return false, fmt.Errorf("检查重连失败: %w", err)
	}
	if reconnected {
		log.Info("延迟期内已重连，取消自动签退")
		return skip("延迟期内已重连")
	}

	entry, err := e.repo.TimeEntry.GetActiveByWorker(ctx, rec.WorkerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return skip("工时已结束")
		}
		return false, fmt.Errorf("查询进行中工时失败: %w", err)
	}
	if entry.LocationID != rec.LocationID || (entry.ClockInAt != nil && entry.ClockInAt.After(*rec.DisconnectedAt)) {
		return skip("进行中的工时不属于本次连接")
	}

	closeTimeEntry(entry, deadline)
	entry.SSIDLog = append(entry.SSIDLog, model.SSIDEvent{SSID: rec.SSID, Event: model.SSIDEventDisconnected, At: *rec.DisconnectedAt})
	entry.AutoClockOutReasons = append(entry.AutoClockOutReasons, model.AutoClockOutReason{
		Reason: reason,
		At:     deadline,
		Detail: fmt.Sprintf("断开于 %s，%d 秒内未重连", rec.DisconnectedAt.Format(time.RFC3339), int(deadline.Sub(*rec.DisconnectedAt).Seconds())),
	})

	if err := e.repo.TimeEntry.Update(ctx, entry, model.TimeEntryStatusClockedIn); err != nil {
		if errors.Is(err, pkgerrors.ErrConditionNotMet) || errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return skip("工时已被手动签退")
		}
		e.appendAction(ctx, statusID, model.AutoAction{
			Action: model.AutoActionClockOut,
			Result: model.ActionResultFailed,
			At:     e.now(),
			Detail: err.Error(),
		})
		return false, fmt.Errorf("自动签退失败: %w", err)
	}

	log.Info("WiFi 自动签退",
		zap.String("time_entry_id", entry.TimeEntryID),
		zap.String("reason", reason),
		zap.Int("total_minutes", entry.TotalMinutes),
	)
	e.appendAction(ctx, statusID, model.AutoAction{
		Action:      model.AutoActionClockOut,
		Result:      model.ActionResultSuccess,
		At:          deadline,
		Detail:      reason,
		TimeEntryID: entry.TimeEntryID,
	})

	e.notifier.Notify(ctx, rec.WorkerID, model.NotifyAutoClockOut, NotificationPayload{
		Title:       "已自动签退",
		Content:     fmt.Sprintf("您已离开 %s，系统于 %s 自动签退，本次工时 %d 分钟", rec.SSID, deadline.Format("15:04"), entry.TotalMinutes),
		RelatedType: "time_entry",
		RelatedID:   entry.TimeEntryID,
	})
	return true, nil
}

// ── 内部辅助方法 ──

// matchBookedShift 返回签到时刻正在进行（或即将在一小时内开始）的已预约班次
func (e *clockEngine) matchBookedShift(ctx context.Context, workerID, locationID string, at time.Time) *string {
	from := at.Add(-shiftMatchLookback)
	to := at.Add(shiftMatchEarly)
	shifts, _, err := e.repo.Shift.List(ctx, repository.ShiftFilter{
		WorkerID:   workerID,
		LocationID: locationID,
		Status:     model.ShiftStatusBooked,
		From:       &from,
		To:         &to,
	})
	if err != nil {
		e.logger.Warn("匹配已预约班次失败", zap.String("worker_id", workerID), zap.Error(err))
		return nil
	}
	for i := range shifts {
		if shifts[i].EndTime.After(at) {
			return &shifts[i].ShiftID
		}
	}
	return nil
}

func (e *clockEngine) appendAction(ctx context.Context, statusID string, action model.AutoAction) {
	autoClockEvents.WithLabelValues(action.Action, action.Result).Inc()
	if err := e.repo.WifiStatus.AppendAutoAction(ctx, statusID, action); err != nil {
		e.logger.Error("写入自动动作流水失败",
			zap.String("wifi_status_id", statusID),
			zap.String("action", action.Action),
			zap.Error(err),
		)
	}
}

func (e *clockEngine) appendSSIDEvent(ctx context.Context, entry *model.TimeEntry, ssid, event string, at time.Time) {
	entry.SSIDLog = append(entry.SSIDLog, model.SSIDEvent{SSID: ssid, Event: event, At: at})
	if err := e.repo.TimeEntry.Update(ctx, entry, model.TimeEntryStatusClockedIn); err != nil {
		e.logger.Warn("写入 SSID 流水失败", zap.String("time_entry_id", entry.TimeEntryID), zap.Error(err))
	}
}

// [自证通过] internal/service/clock_engine.go
