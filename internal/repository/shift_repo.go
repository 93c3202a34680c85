package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"suncoop/backend/internal/model"
	pkgerrors "suncoop/backend/pkg/errors"
)

// ShiftFilter 班次查询条件，零值字段不参与过滤
type ShiftFilter struct {
	WorkerID   string
	LocationID string
	Status     string
	From       *time.Time
	To         *time.Time
	Offset     int
	Limit      int
}

// AutoUnbookedFilter 已自动释放班次查询条件
type AutoUnbookedFilter struct {
	WorkerID      string
	PendingReview bool
	Offset        int
	Limit         int
}

// AutoUnbookMark 自动释放的单次条件更新参数
type AutoUnbookMark struct {
	ShiftID  string
	WorkerID string
	Reason   string
	At       time.Time
}

// AutoUnbookStats 自动释放统计
type AutoUnbookStats struct {
	Unbooked  int64
	Explained int64
	Approved  int64
	Rejected  int64
}

// ShiftRepository 班次数据访问接口
type ShiftRepository interface {
	Create(ctx context.Context, shift *model.Shift) error
	GetByID(ctx context.Context, id string) (*model.Shift, error)
	List(ctx context.Context, filter ShiftFilter) ([]model.Shift, int64, error)
	Update(ctx context.Context, shift *model.Shift) error
	// ListNoShowCandidates 已预约、已开始、开启自动释放且从未被自动释放过的班次
	ListNoShowCandidates(ctx context.Context, now time.Time) ([]model.Shift, error)
	// MarkAutoUnbooked 单条条件更新完成释放；条件不满足返回 ErrConditionNotMet
	MarkAutoUnbooked(ctx context.Context, mark AutoUnbookMark) error
	SaveExplanation(ctx context.Context, shiftID, workerID, text string, at time.Time) error
	SaveReview(ctx context.Context, shiftID, reviewerID, status, notes string, at time.Time) error
	ListAutoUnbooked(ctx context.Context, filter AutoUnbookedFilter) ([]model.Shift, int64, error)
	ListStaleAutoUnbooked(ctx context.Context, unbookedBefore, now time.Time) ([]model.Shift, error)
	TransitionStatus(ctx context.Context, shiftID, from, to string) error
	CountAutoUnbookStats(ctx context.Context, from, to time.Time) (*AutoUnbookStats, error)
}

// ShiftChangeLogRepository 班次变更日志数据访问接口
type ShiftChangeLogRepository interface {
	Create(ctx context.Context, log *model.ShiftChangeLog) error
	ListByShift(ctx context.Context, shiftID string) ([]model.ShiftChangeLog, error)
}

// attendedStatuses 视为"已到岗"的工时状态
var attendedStatuses = []string{
	model.TimeEntryStatusClockedIn,
	model.TimeEntryStatusCompleted,
	model.TimeEntryStatusApproved,
}

// ── Shift Repository 实现 ──

type shiftRepo struct {
	db *gorm.DB
}

// NewShiftRepo 创建 ShiftRepository 实例
func NewShiftRepo(db *gorm.DB) ShiftRepository {
	return &shiftRepo{db: db}
}

func (r *shiftRepo) Create(ctx context.Context, shift *model.Shift) error {
	return r.db.WithContext(ctx).Create(shift).Error
}

func (r *shiftRepo) GetByID(ctx context.Context, id string) (*model.Shift, error) {
	var shift model.Shift
	err := r.db.WithContext(ctx).
		Preload("Location").
		Where("shift_id = ?", id).
		First(&shift).Error
	if err != nil {
		return nil, err
	}
	return &shift, nil
}

func (r *shiftRepo) List(ctx context.Context, filter ShiftFilter) ([]model.Shift, int64, error) {
	var shifts []model.Shift
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Shift{})
	if filter.WorkerID != "" {
		db = db.Where("assigned_to = ?", filter.WorkerID)
	}
	if filter.LocationID != "" {
		db = db.Where("location_id = ?", filter.LocationID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		db = db.Where("start_time >= ?", *filter.From)
	}
	if filter.To != nil {
		db = db.Where("start_time < ?", *filter.To)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		db = db.Offset(filter.Offset).Limit(filter.Limit)
	}
	err := db.Preload("Location").Order("start_time ASC").Find(&shifts).Error
	return shifts, total, err
}

func (r *shiftRepo) Update(ctx context.Context, shift *model.Shift) error {
	oldVersion := shift.Version
	result := r.db.WithContext(ctx).
		Model(&model.Shift{}).
		Where("shift_id = ? AND version = ?", shift.ShiftID, oldVersion).
		Updates(map[string]interface{}{
			"location_id":            shift.LocationID,
			"title":                  shift.Title,
			"start_time":             shift.StartTime,
			"end_time":               shift.EndTime,
			"assigned_to":            shift.AssignedTo,
			"max_capacity":           shift.MaxCapacity,
			"current_capacity":       shift.CurrentCapacity,
			"status":                 shift.Status,
			"auto_unbooking_enabled": shift.AutoUnbookingEnabled,
			"grace_period_seconds":   shift.GracePeriodSeconds,
			"updated_by":             shift.UpdatedBy,
			"version":                oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	shift.Version = oldVersion + 1
	return nil
}

func (r *shiftRepo) ListNoShowCandidates(ctx context.Context, now time.Time) ([]model.Shift, error) {
	var shifts []model.Shift
	err := r.db.WithContext(ctx).
		Preload("Location").
		Where("status = ? AND assigned_to IS NOT NULL", model.ShiftStatusBooked).
		Where("auto_unbooking_enabled = ? AND auto_unbooked_at IS NULL", true).
		Where("start_time <= ?", now).
		Order("start_time ASC").
		Find(&shifts).Error
	return shifts, err
}

// MarkAutoUnbooked 状态/原因、清空分配、容量归零在同一条 UPDATE 中完成。
// 条件包含"该成员在此班次无有效工时"，与手动签到的竞态由数据库裁决。
func (r *shiftRepo) MarkAutoUnbooked(ctx context.Context, mark AutoUnbookMark) error {
	attended := r.db.Model(&model.TimeEntry{}).
		Select("1").
		Where("time_entries.shift_id = shifts.shift_id").
		Where("time_entries.worker_id = ? AND time_entries.status IN ?", mark.WorkerID, attendedStatuses)

	result := r.db.WithContext(ctx).
		Model(&model.Shift{}).
		Where("shift_id = ? AND status = ? AND assigned_to = ?", mark.ShiftID, model.ShiftStatusBooked, mark.WorkerID).
		Where("auto_unbooked_at IS NULL").
		Where("NOT EXISTS (?)", attended).
		Updates(map[string]interface{}{
			"status":                    model.ShiftStatusAvailable,
			"assigned_to":               nil,
			"current_capacity":          0,
			"auto_unbooked_at":          mark.At,
			"auto_unbook_reason":        mark.Reason,
			"auto_unbooked_worker_id":   mark.WorkerID,
			"explanation_review_status": "",
			"version":                   gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrConditionNotMet
	}
	return nil
}

func (r *shiftRepo) SaveExplanation(ctx context.Context, shiftID, workerID, text string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.Shift{}).
		Where("shift_id = ? AND auto_unbooked_worker_id = ?", shiftID, workerID).
		Where("auto_unbooked_at IS NOT NULL AND explanation_submitted_at IS NULL").
		Updates(map[string]interface{}{
			"explanation_submitted_by":  workerID,
			"explanation_text":          text,
			"explanation_submitted_at":  at,
			"explanation_review_status": model.ReviewStatusPending,
			"version":                   gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrConditionNotMet
	}
	return nil
}

func (r *shiftRepo) SaveReview(ctx context.Context, shiftID, reviewerID, status, notes string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.Shift{}).
		Where("shift_id = ? AND explanation_submitted_at IS NOT NULL", shiftID).
		Where("explanation_review_status = ? AND explanation_reviewed_at IS NULL", model.ReviewStatusPending).
		Updates(map[string]interface{}{
			"explanation_review_status": status,
			"explanation_reviewed_by":   reviewerID,
			"explanation_reviewed_at":   at,
			"explanation_review_notes":  notes,
			"version":                   gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrConditionNotMet
	}
	return nil
}

func (r *shiftRepo) ListAutoUnbooked(ctx context.Context, filter AutoUnbookedFilter) ([]model.Shift, int64, error) {
	var shifts []model.Shift
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Shift{}).
		Where("auto_unbooked_at IS NOT NULL")
	if filter.WorkerID != "" {
		db = db.Where("auto_unbooked_worker_id = ?", filter.WorkerID)
	}
	if filter.PendingReview {
		db = db.Where("explanation_review_status = ?", model.ReviewStatusPending)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		db = db.Offset(filter.Offset).Limit(filter.Limit)
	}
	err := db.Preload("Location").Order("auto_unbooked_at DESC").Find(&shifts).Error
	return shifts, total, err
}

func (r *shiftRepo) ListStaleAutoUnbooked(ctx context.Context, unbookedBefore, now time.Time) ([]model.Shift, error) {
	var shifts []model.Shift
	err := r.db.WithContext(ctx).
		Where("auto_unbooked_at IS NOT NULL AND auto_unbooked_at < ?", unbookedBefore).
		Where("status = ? AND assigned_to IS NULL", model.ShiftStatusAvailable).
		Where("end_time < ?", now).
		Find(&shifts).Error
	return shifts, err
}

func (r *shiftRepo) TransitionStatus(ctx context.Context, shiftID, from, to string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Shift{}).
		Where("shift_id = ? AND status = ?", shiftID, from).
		Updates(map[string]interface{}{
			"status":  to,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrConditionNotMet
	}
	return nil
}

func (r *shiftRepo) CountAutoUnbookStats(ctx context.Context, from, to time.Time) (*AutoUnbookStats, error) {
	var stats AutoUnbookStats
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&model.Shift{}).
			Where("auto_unbooked_at >= ? AND auto_unbooked_at < ?", from, to)
	}

	if err := base().Count(&stats.Unbooked).Error; err != nil {
		return nil, err
	}
	if err := base().Where("explanation_submitted_at IS NOT NULL").Count(&stats.Explained).Error; err != nil {
		return nil, err
	}
	if err := base().Where("explanation_review_status = ?", model.ReviewStatusApproved).Count(&stats.Approved).Error; err != nil {
		return nil, err
	}
	if err := base().Where("explanation_review_status = ?", model.ReviewStatusRejected).Count(&stats.Rejected).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// ── ShiftChangeLog Repository 实现 ──

type shiftChangeLogRepo struct {
	db *gorm.DB
}

// NewShiftChangeLogRepo 创建 ShiftChangeLogRepository 实例
func NewShiftChangeLogRepo(db *gorm.DB) ShiftChangeLogRepository {
	return &shiftChangeLogRepo{db: db}
}

func (r *shiftChangeLogRepo) Create(ctx context.Context, log *model.ShiftChangeLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *shiftChangeLogRepo) ListByShift(ctx context.Context, shiftID string) ([]model.ShiftChangeLog, error) {
	var logs []model.ShiftChangeLog
	err := r.db.WithContext(ctx).
		Where("shift_id = ?", shiftID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}
