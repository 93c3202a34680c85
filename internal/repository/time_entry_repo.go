package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"suncoop/backend/internal/model"
	pkgerrors "suncoop/backend/pkg/errors"
)

// TimeEntryRepository 工时记录数据访问接口
type TimeEntryRepository interface {
	Create(ctx context.Context, entry *model.TimeEntry) error
	GetByID(ctx context.Context, id string) (*model.TimeEntry, error)
	GetActiveByWorker(ctx context.Context, workerID string) (*model.TimeEntry, error)
	HasAttendanceForShift(ctx context.Context, workerID, shiftID string) (bool, error)
	// Update 乐观锁更新；expectStatus 非空时额外要求当前状态一致
	Update(ctx context.Context, entry *model.TimeEntry, expectStatus string) error
	ListByWorker(ctx context.Context, workerID string, from, to time.Time) ([]model.TimeEntry, error)
	ListStuck(ctx context.Context, clockedInBefore time.Time) ([]model.TimeEntry, error)
	MarkStuckNotified(ctx context.Context, id string, at time.Time) error
}

type timeEntryRepo struct {
	db *gorm.DB
}

// NewTimeEntryRepo 创建 TimeEntryRepository 实例
func NewTimeEntryRepo(db *gorm.DB) TimeEntryRepository {
	return &timeEntryRepo{db: db}
}

func (r *timeEntryRepo) Create(ctx context.Context, entry *model.TimeEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *timeEntryRepo) GetByID(ctx context.Context, id string) (*model.TimeEntry, error) {
	var entry model.TimeEntry
	err := r.db.WithContext(ctx).
		Where("time_entry_id = ?", id).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *timeEntryRepo) GetActiveByWorker(ctx context.Context, workerID string) (*model.TimeEntry, error) {
	var entry model.TimeEntry
	err := r.db.WithContext(ctx).
		Where("worker_id = ? AND status = ?", workerID, model.TimeEntryStatusClockedIn).
		Order("clock_in_at DESC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *timeEntryRepo) HasAttendanceForShift(ctx context.Context, workerID, shiftID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.TimeEntry{}).
		Where("worker_id = ? AND shift_id = ? AND status IN ?", workerID, shiftID, attendedStatuses).
		Count(&count).Error
	return count > 0, err
}

var timeEntryUpdateColumns = []string{
	"shift_id", "clock_in_at", "clock_out_at", "status", "total_minutes", "notes",
	"ssid_log", "auto_clock_out_reasons", "reviewed_by", "reviewed_at", "updated_by", "version",
}

func (r *timeEntryRepo) Update(ctx context.Context, entry *model.TimeEntry, expectStatus string) error {
	oldVersion := entry.Version
	entry.Version = oldVersion + 1

	db := r.db.WithContext(ctx).
		Model(entry).
		Where("version = ?", oldVersion)
	if expectStatus != "" {
		db = db.Where("status = ?", expectStatus)
	}
	// 结构体 + Select 更新，保证 JSON 序列化字段经过 serializer
	result := db.Select(timeEntryUpdateColumns).Updates(entry)
	if result.Error != nil {
		entry.Version = oldVersion
		return result.Error
	}
	if result.RowsAffected == 0 {
		entry.Version = oldVersion
		if expectStatus != "" {
			return pkgerrors.ErrConditionNotMet
		}
		return pkgerrors.ErrOptimisticLock
	}
	return nil
}

func (r *timeEntryRepo) ListByWorker(ctx context.Context, workerID string, from, to time.Time) ([]model.TimeEntry, error) {
	var entries []model.TimeEntry
	err := r.db.WithContext(ctx).
		Where("worker_id = ? AND work_date >= ? AND work_date < ?", workerID, from, to).
		Order("work_date DESC, clock_in_at DESC").
		Find(&entries).Error
	return entries, err
}

func (r *timeEntryRepo) ListStuck(ctx context.Context, clockedInBefore time.Time) ([]model.TimeEntry, error) {
	var entries []model.TimeEntry
	err := r.db.WithContext(ctx).
		Where("status = ? AND clock_in_at < ?", model.TimeEntryStatusClockedIn, clockedInBefore).
		Where("stuck_notified_at IS NULL").
		Order("clock_in_at ASC").
		Find(&entries).Error
	return entries, err
}

func (r *timeEntryRepo) MarkStuckNotified(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.TimeEntry{}).
		Where("time_entry_id = ? AND stuck_notified_at IS NULL", id).
		Update("stuck_notified_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrConditionNotMet
	}
	return nil
}
