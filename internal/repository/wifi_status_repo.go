package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"suncoop/backend/internal/model"
	pkgerrors "suncoop/backend/pkg/errors"
)

// WifiStatusRepository WiFi 连接会话数据访问接口
type WifiStatusRepository interface {
	Create(ctx context.Context, status *model.WifiStatus) error
	GetByID(ctx context.Context, id string) (*model.WifiStatus, error)
	GetOpen(ctx context.Context, workerID, locationID string) (*model.WifiStatus, error)
	ListOpen(ctx context.Context, workerID string) ([]model.WifiStatus, error)
	// Close 关闭会话并可选写入待签退截止时间；会话已关闭返回 ErrConditionNotMet
	Close(ctx context.Context, id string, at time.Time, pendingAt *time.Time, pendingReason string) error
	AppendAutoAction(ctx context.Context, id string, action model.AutoAction) error
	HasConnectionSince(ctx context.Context, workerID, locationID string, since, now time.Time) (bool, error)
	HasReconnectAfter(ctx context.Context, workerID, locationID string, after time.Time) (bool, error)
	// ClaimPendingClockOut 抢占待签退任务，保证定时器与兜底任务只有一方执行
	ClaimPendingClockOut(ctx context.Context, id string) error
	ClearPendingClockOuts(ctx context.Context, workerID, locationID string) (int64, error)
	ListDuePendingClockOuts(ctx context.Context, now time.Time) ([]model.WifiStatus, error)
	ListHistory(ctx context.Context, workerID string, from, to time.Time) ([]model.WifiStatus, error)
	DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error)
}

type wifiStatusRepo struct {
	db *gorm.DB
}

// NewWifiStatusRepo 创建 WifiStatusRepository 实例
func NewWifiStatusRepo(db *gorm.DB) WifiStatusRepository {
	return &wifiStatusRepo{db: db}
}

func (r *wifiStatusRepo) Create(ctx context.Context, status *model.WifiStatus) error {
	return r.db.WithContext(ctx).Create(status).Error
}

func (r *wifiStatusRepo) GetByID(ctx context.Context, id string) (*model.WifiStatus, error) {
	var status model.WifiStatus
	err := r.db.WithContext(ctx).
		Where("wifi_status_id = ?", id).
		First(&status).Error
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *wifiStatusRepo) GetOpen(ctx context.Context, workerID, locationID string) (*model.WifiStatus, error) {
	var status model.WifiStatus
	err := r.db.WithContext(ctx).
		Where("worker_id = ? AND location_id = ?", workerID, locationID).
		Where("is_connected = ? AND is_active = ?", true, true).
		Order("connected_at DESC").
		First(&status).Error
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *wifiStatusRepo) ListOpen(ctx context.Context, workerID string) ([]model.WifiStatus, error) {
	var statuses []model.WifiStatus
	db := r.db.WithContext(ctx).
		Where("is_connected = ? AND is_active = ?", true, true)
	if workerID != "" {
		db = db.Where("worker_id = ?", workerID)
	}
	err := db.Order("connected_at DESC").Find(&statuses).Error
	return statuses, err
}

func (r *wifiStatusRepo) Close(ctx context.Context, id string, at time.Time, pendingAt *time.Time, pendingReason string) error {
	var status model.WifiStatus
	if err := r.db.WithContext(ctx).Where("wifi_status_id = ?", id).First(&status).Error; err != nil {
		return err
	}

	duration := int64(at.Sub(status.ConnectedAt) / time.Second)
	if duration < 0 {
		duration = 0
	}

	result := r.db.WithContext(ctx).
		Model(&model.WifiStatus{}).
		Where("wifi_status_id = ? AND is_connected = ?", id, true).
		Updates(map[string]interface{}{
			"is_connected":             false,
			"disconnected_at":          at,
			"duration_seconds":         duration,
			"pending_clock_out_at":     pendingAt,
			"pending_clock_out_reason": pendingReason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrConditionNotMet
	}
	return nil
}

func (r *wifiStatusRepo) AppendAutoAction(ctx context.Context, id string, action model.AutoAction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var status model.WifiStatus
		if err := tx.Where("wifi_status_id = ?", id).First(&status).Error; err != nil {
			return err
		}
		status.AutoActions = append(status.AutoActions, action)
		return tx.Model(&status).Select("auto_actions").Updates(&status).Error
	})
}

func (r *wifiStatusRepo) HasConnectionSince(ctx context.Context, workerID, locationID string, since, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.WifiStatus{}).
		Where("worker_id = ? AND location_id = ? AND connected_at <= ?", workerID, locationID, now).
		Where("((is_connected = ? AND is_active = ?) OR disconnected_at >= ?)", true, true, since).
		Count(&count).Error
	return count > 0, err
}

func (r *wifiStatusRepo) HasReconnectAfter(ctx context.Context, workerID, locationID string, after time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.WifiStatus{}).
		Where("worker_id = ? AND location_id = ?", workerID, locationID).
		Where("is_connected = ? AND is_active = ? AND connected_at >= ?", true, true, after).
		Count(&count).Error
	return count > 0, err
}

func (r *wifiStatusRepo) ClaimPendingClockOut(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&model.WifiStatus{}).
		Where("wifi_status_id = ? AND pending_clock_out_at IS NOT NULL", id).
		Update("pending_clock_out_at", nil)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrConditionNotMet
	}
	return nil
}

func (r *wifiStatusRepo) ClearPendingClockOuts(ctx context.Context, workerID, locationID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.WifiStatus{}).
		Where("worker_id = ? AND location_id = ? AND pending_clock_out_at IS NOT NULL", workerID, locationID).
		Update("pending_clock_out_at", nil)
	return result.RowsAffected, result.Error
}

func (r *wifiStatusRepo) ListDuePendingClockOuts(ctx context.Context, now time.Time) ([]model.WifiStatus, error) {
	var statuses []model.WifiStatus
	err := r.db.WithContext(ctx).
		Where("pending_clock_out_at IS NOT NULL AND pending_clock_out_at <= ?", now).
		Order("pending_clock_out_at ASC").
		Find(&statuses).Error
	return statuses, err
}

func (r *wifiStatusRepo) ListHistory(ctx context.Context, workerID string, from, to time.Time) ([]model.WifiStatus, error) {
	var statuses []model.WifiStatus
	err := r.db.WithContext(ctx).
		Where("worker_id = ? AND connected_at >= ? AND connected_at <= ?", workerID, from, to).
		Order("connected_at DESC").
		Find(&statuses).Error
	return statuses, err
}

func (r *wifiStatusRepo) DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("is_connected = ? AND disconnected_at < ?", false, before).
		Where("pending_clock_out_at IS NULL").
		Delete(&model.WifiStatus{})
	return result.RowsAffected, result.Error
}
