package repository_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"suncoop/backend/internal/model"
	"suncoop/backend/internal/repository"
	pkgerrors "suncoop/backend/pkg/errors"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// openTestDB 每个测试独立的内存库
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取 sql.DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	err = db.AutoMigrate(
		&model.User{},
		&model.Location{},
		&model.Shift{},
		&model.ShiftChangeLog{},
		&model.TimeEntry{},
		&model.WifiStatus{},
		&model.Notification{},
	)
	if err != nil {
		t.Fatalf("AutoMigrate 失败: %v", err)
	}
	// 与迁移脚本一致：同一成员只允许一条 clocked_in 记录
	err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_time_entries_worker_clocked_in
		ON time_entries (worker_id) WHERE status = 'clocked_in' AND deleted_at IS NULL`).Error
	if err != nil {
		t.Fatalf("创建部分唯一索引失败: %v", err)
	}
	return db
}

// seedBookedShift 创建地点 + 已预约班次
func seedBookedShift(t *testing.T, repo *repository.Repository, workerID string) (*model.Location, *model.Shift) {
	t.Helper()
	ctx := context.Background()

	loc := &model.Location{Name: "Main Store", IsActive: true, WifiTrackingEnabled: true, WifiSSID: "SunCoop-Staff"}
	if err := repo.Location.Create(ctx, loc); err != nil {
		t.Fatalf("创建地点失败: %v", err)
	}

	shift := &model.Shift{
		LocationID:           loc.LocationID,
		StartTime:            base,
		EndTime:              base.Add(4 * time.Hour),
		AssignedTo:           model.StrPtr(workerID),
		MaxCapacity:          1,
		CurrentCapacity:      1,
		Status:               model.ShiftStatusBooked,
		AutoUnbookingEnabled: true,
	}
	if err := repo.Shift.Create(ctx, shift); err != nil {
		t.Fatalf("创建班次失败: %v", err)
	}
	return loc, shift
}

// ═══════════════════════════════════════════════════════════
// Shift: 自动释放条件更新
// ═══════════════════════════════════════════════════════════

func TestShift_MarkAutoUnbooked_ExactlyOnce(t *testing.T) {
	repo := repository.NewRepository(openTestDB(t))
	ctx := context.Background()
	_, shift := seedBookedShift(t, repo, "worker-1")

	mark := repository.AutoUnbookMark{ShiftID: shift.ShiftID, WorkerID: "worker-1", Reason: "no_show", At: base.Add(11 * time.Minute)}
	if err := repo.Shift.MarkAutoUnbooked(ctx, mark); err != nil {
		t.Fatalf("首次释放应成功: %v", err)
	}
	if err := repo.Shift.MarkAutoUnbooked(ctx, mark); !errors.Is(err, pkgerrors.ErrConditionNotMet) {
		t.Fatalf("重复释放应返回 ErrConditionNotMet，实际=%v", err)
	}

	got, err := repo.Shift.GetByID(ctx, shift.ShiftID)
	if err != nil {
		t.Fatalf("查询班次失败: %v", err)
	}
	if got.Status != model.ShiftStatusAvailable {
		t.Errorf("期望 status=available，实际=%s", got.Status)
	}
	if got.AssignedTo != nil {
		t.Errorf("期望 assigned_to 为空，实际=%v", *got.AssignedTo)
	}
	if got.CurrentCapacity != 0 {
		t.Errorf("期望 current_capacity=0，实际=%d", got.CurrentCapacity)
	}
	if got.AutoUnbookedAt == nil || got.AutoUnbookedWorkerID == nil || *got.AutoUnbookedWorkerID != "worker-1" {
		t.Error("应记录自动释放时间与原成员")
	}
	if got.Version != 2 {
		t.Errorf("期望 version=2，实际=%d", got.Version)
	}
}

func TestShift_MarkAutoUnbooked_BlockedByClockIn(t *testing.T) {
	repo := repository.NewRepository(openTestDB(t))
	ctx := context.Background()
	loc, shift := seedBookedShift(t, repo, "worker-1")

	clockIn := base.Add(12 * time.Minute)
	entry := &model.TimeEntry{
		WorkerID:   "worker-1",
		ShiftID:    model.StrPtr(shift.ShiftID),
		LocationID: loc.LocationID,
		WorkDate:   base,
		ClockInAt:  &clockIn,
		Status:     model.TimeEntryStatusClockedIn,
	}
	if err := repo.TimeEntry.Create(ctx, entry); err != nil {
		t.Fatalf("创建工时失败: %v", err)
	}

	mark := repository.AutoUnbookMark{ShiftID: shift.ShiftID, WorkerID: "worker-1", Reason: "no_show", At: base.Add(13 * time.Minute)}
	if err := repo.Shift.MarkAutoUnbooked(ctx, mark); !errors.Is(err, pkgerrors.ErrConditionNotMet) {
		t.Fatalf("存在签到记录时应拒绝释放，实际=%v", err)
	}

	got, _ := repo.Shift.GetByID(ctx, shift.ShiftID)
	if got.Status != model.ShiftStatusBooked || !got.IsAssignedTo("worker-1") {
		t.Error("班次应保持 booked 且仍归属 worker-1")
	}
}

func TestShift_ListNoShowCandidates(t *testing.T) {
	repo := repository.NewRepository(openTestDB(t))
	ctx := context.Background()
	_, shift := seedBookedShift(t, repo, "worker-1")

	before, err := repo.Shift.ListNoShowCandidates(ctx, base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(before) != 0 {
		t.Errorf("班次未开始时不应成为候选，实际=%d", len(before))
	}

	after, err := repo.Shift.ListNoShowCandidates(ctx, base.Add(20*time.Minute))
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(after) != 1 || after[0].ShiftID != shift.ShiftID {
		t.Fatalf("期望 1 个候选班次，实际=%d", len(after))
	}
	if after[0].Location == nil {
		t.Error("候选班次应预加载地点")
	}
}

func TestShift_ExplanationAndReview_SingleShot(t *testing.T) {
	repo := repository.NewRepository(openTestDB(t))
	ctx := context.Background()
	_, shift := seedBookedShift(t, repo, "worker-1")

	at := base.Add(11 * time.Minute)
	if err := repo.Shift.MarkAutoUnbooked(ctx, repository.AutoUnbookMark{ShiftID: shift.ShiftID, WorkerID: "worker-1", Reason: "no_show", At: at}); err != nil {
		t.Fatalf("释放失败: %v", err)
	}

	if err := repo.Shift.SaveExplanation(ctx, shift.ShiftID, "worker-2", "not my shift at all", at); !errors.Is(err, pkgerrors.ErrConditionNotMet) {
		t.Errorf("非原成员提交说明应失败，实际=%v", err)
	}
	if err := repo.Shift.SaveExplanation(ctx, shift.ShiftID, "worker-1", "bus broke down on the way", at); err != nil {
		t.Fatalf("首次提交说明应成功: %v", err)
	}
	if err := repo.Shift.SaveExplanation(ctx, shift.ShiftID, "worker-1", "second attempt overwrite", at); !errors.Is(err, pkgerrors.ErrConditionNotMet) {
		t.Errorf("重复提交应返回 ErrConditionNotMet，实际=%v", err)
	}

	if err := repo.Shift.SaveReview(ctx, shift.ShiftID, "admin-1", model.ReviewStatusApproved, "ok", at); err != nil {
		t.Fatalf("首次审核应成功: %v", err)
	}
	if err := repo.Shift.SaveReview(ctx, shift.ShiftID, "admin-2", model.ReviewStatusRejected, "", at); !errors.Is(err, pkgerrors.ErrConditionNotMet) {
		t.Errorf("重复审核应返回 ErrConditionNotMet，实际=%v", err)
	}

	got, _ := repo.Shift.GetByID(ctx, shift.ShiftID)
	if got.Explanation.Text != "bus broke down on the way" {
		t.Errorf("说明内容不应被覆盖，实际=%q", got.Explanation.Text)
	}
	if got.Explanation.ReviewStatus != model.ReviewStatusApproved {
		t.Errorf("期望审核结果 approved，实际=%s", got.Explanation.ReviewStatus)
	}

	stats, err := repo.Shift.CountAutoUnbookStats(ctx, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if stats.Unbooked != 1 || stats.Explained != 1 || stats.Approved != 1 || stats.Rejected != 0 {
		t.Errorf("统计结果不符: %+v", stats)
	}
}

// ═══════════════════════════════════════════════════════════
// TimeEntry
// ═══════════════════════════════════════════════════════════

func TestTimeEntry_SingleClockedInPerWorker(t *testing.T) {
	repo := repository.NewRepository(openTestDB(t))
	ctx := context.Background()

	in := base
	first := &model.TimeEntry{WorkerID: "worker-1", LocationID: "loc-1", WorkDate: base, ClockInAt: &in, Status: model.TimeEntryStatusClockedIn}
	if err := repo.TimeEntry.Create(ctx, first); err != nil {
		t.Fatalf("首条签到应成功: %v", err)
	}
	second := &model.TimeEntry{WorkerID: "worker-1", LocationID: "loc-2", WorkDate: base, ClockInAt: &in, Status: model.TimeEntryStatusClockedIn}
	if err := repo.TimeEntry.Create(ctx, second); err == nil {
		t.Fatal("同一成员第二条 clocked_in 记录应被唯一索引拒绝")
	}
}

func TestTimeEntry_UpdateExpectStatus(t *testing.T) {
	repo := repository.NewRepository(openTestDB(t))
	ctx := context.Background()

	in := base
	entry := &model.TimeEntry{WorkerID: "worker-1", LocationID: "loc-1", WorkDate: base, ClockInAt: &in, Status: model.TimeEntryStatusClockedIn, IsWifiOriginated: true}
	if err := repo.TimeEntry.Create(ctx, entry); err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	out := base.Add(31 * time.Minute)
	entry.ClockOutAt = &out
	entry.Status = model.TimeEntryStatusCompleted
	entry.TotalMinutes = 31
	entry.AutoClockOutReasons = append(entry.AutoClockOutReasons, model.AutoClockOutReason{Reason: model.ClockOutReasonWifiDisconnected, At: out})
	if err := repo.TimeEntry.Update(ctx, entry, model.TimeEntryStatusClockedIn); err != nil {
		t.Fatalf("签退更新应成功: %v", err)
	}

	// 旧快照再次签退：状态已变更
	stale, _ := repo.TimeEntry.GetByID(ctx, entry.TimeEntryID)
	stale.Status = model.TimeEntryStatusCompleted
	if err := repo.TimeEntry.Update(ctx, stale, model.TimeEntryStatusClockedIn); !errors.Is(err, pkgerrors.ErrConditionNotMet) {
		t.Errorf("状态不符时应返回 ErrConditionNotMet，实际=%v", err)
	}

	got, _ := repo.TimeEntry.GetByID(ctx, entry.TimeEntryID)
	if !got.HasAutoClockOutReason(model.ClockOutReasonWifiDisconnected) {
		t.Error("自动签退原因应持久化")
	}
	if got.TotalMinutes != 31 {
		t.Errorf("期望 total_minutes=31，实际=%d", got.TotalMinutes)
	}

	attended, err := repo.TimeEntry.HasAttendanceForShift(ctx, "worker-1", "no-shift")
	if err != nil || attended {
		t.Errorf("未关联班次时不应视为到岗，attended=%v err=%v", attended, err)
	}
}

// ═══════════════════════════════════════════════════════════
// WifiStatus
// ═══════════════════════════════════════════════════════════

func TestWifiStatus_CloseAndClaimPendingClockOut(t *testing.T) {
	repo := repository.NewRepository(openTestDB(t))
	ctx := context.Background()

	ws := &model.WifiStatus{WorkerID: "worker-1", LocationID: "loc-1", SSID: "SunCoop-Staff", IsConnected: true, IsActive: true, ConnectedAt: base}
	if err := repo.WifiStatus.Create(ctx, ws); err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	disconnectAt := base.Add(30 * time.Minute)
	deadline := disconnectAt.Add(time.Minute)
	if err := repo.WifiStatus.Close(ctx, ws.WifiStatusID, disconnectAt, &deadline, model.ClockOutReasonWifiDisconnected); err != nil {
		t.Fatalf("关闭会话失败: %v", err)
	}
	if err := repo.WifiStatus.Close(ctx, ws.WifiStatusID, disconnectAt, nil, ""); !errors.Is(err, pkgerrors.ErrConditionNotMet) {
		t.Errorf("重复关闭应返回 ErrConditionNotMet，实际=%v", err)
	}

	got, _ := repo.WifiStatus.GetByID(ctx, ws.WifiStatusID)
	if got.DurationSeconds != 1800 {
		t.Errorf("期望 duration=1800，实际=%d", got.DurationSeconds)
	}

	due, err := repo.WifiStatus.ListDuePendingClockOuts(ctx, deadline)
	if err != nil || len(due) != 1 {
		t.Fatalf("期望 1 条到期待签退，实际=%d err=%v", len(due), err)
	}

	if err := repo.WifiStatus.ClaimPendingClockOut(ctx, ws.WifiStatusID); err != nil {
		t.Fatalf("首次抢占应成功: %v", err)
	}
	if err := repo.WifiStatus.ClaimPendingClockOut(ctx, ws.WifiStatusID); !errors.Is(err, pkgerrors.ErrConditionNotMet) {
		t.Errorf("重复抢占应返回 ErrConditionNotMet，实际=%v", err)
	}
}

func TestWifiStatus_PresenceQueries(t *testing.T) {
	repo := repository.NewRepository(openTestDB(t))
	ctx := context.Background()

	ws := &model.WifiStatus{WorkerID: "worker-1", LocationID: "loc-1", SSID: "SunCoop-Staff", IsConnected: true, IsActive: true, ConnectedAt: base.Add(9 * time.Minute)}
	if err := repo.WifiStatus.Create(ctx, ws); err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	ok, err := repo.WifiStatus.HasConnectionSince(ctx, "worker-1", "loc-1", base.Add(-10*time.Minute), base.Add(11*time.Minute))
	if err != nil || !ok {
		t.Errorf("在线会话应被识别为近期到场，ok=%v err=%v", ok, err)
	}
	ok, _ = repo.WifiStatus.HasConnectionSince(ctx, "worker-1", "loc-2", base.Add(-10*time.Minute), base.Add(11*time.Minute))
	if ok {
		t.Error("其他地点不应命中")
	}

	reconnected, _ := repo.WifiStatus.HasReconnectAfter(ctx, "worker-1", "loc-1", base)
	if !reconnected {
		t.Error("基准时间之后建立的在线会话应视为重连")
	}
	reconnected, _ = repo.WifiStatus.HasReconnectAfter(ctx, "worker-1", "loc-1", base.Add(10*time.Minute))
	if reconnected {
		t.Error("基准时间之前建立的会话不应视为重连")
	}

	action := model.AutoAction{Action: model.AutoActionClockIn, Result: model.ActionResultSuccess, At: base}
	if err := repo.WifiStatus.AppendAutoAction(ctx, ws.WifiStatusID, action); err != nil {
		t.Fatalf("追加自动动作失败: %v", err)
	}
	got, _ := repo.WifiStatus.GetByID(ctx, ws.WifiStatusID)
	if len(got.AutoActions) != 1 || got.AutoActions[0].Action != model.AutoActionClockIn {
		t.Errorf("自动动作流水不符: %+v", got.AutoActions)
	}

	open, _ := repo.WifiStatus.ListOpen(ctx, "")
	if len(open) != 1 {
		t.Errorf("期望 1 条在线会话，实际=%d", len(open))
	}
}
