package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"suncoop/backend/config"
	"suncoop/backend/internal/dto"
	"suncoop/backend/internal/model"
	"suncoop/backend/internal/repository"
	pkgerrors "suncoop/backend/pkg/errors"
)

// ── 缺勤释放业务错误 ──

var (
	ErrShiftNotAutoUnbooked        = errors.New("该班次没有被自动释放")
	ErrExplanationTooShort         = errors.New("缺勤说明内容过短")
	ErrExplanationAlreadySubmitted = errors.New("缺勤说明已提交，不能重复提交")
	ErrExplanationNotSubmitted     = errors.New("该班次尚未提交缺勤说明")
	ErrExplanationAlreadyReviewed  = errors.New("缺勤说明已审核，不能重复审核")
)

const autoUnbookReason = "班次开始后超过宽限期仍未签到"

// AutoUnbookService 缺勤自动释放与缺勤说明审核
type AutoUnbookService interface {
	RunNoShowSweep(ctx context.Context) (*dto.SweepResult, error)
	SubmitExplanation(ctx context.Context, shiftID, workerID string, req *dto.SubmitExplanationRequest) (*dto.ShiftResponse, error)
	ReviewExplanation(ctx context.Context, shiftID, adminID string, req *dto.ReviewExplanationRequest) (*dto.ShiftResponse, error)
	ListAutoUnbooked(ctx context.Context, callerID, callerRole string, req *dto.AutoUnbookedListRequest) ([]dto.ShiftResponse, int64, error)
	GetStats(ctx context.Context, req *dto.AutoUnbookStatsRequest) (*dto.AutoUnbookStatsResponse, error)
	CleanupStaleShifts(ctx context.Context) (int, error)
}

type autoUnbookService struct {
	repo         *repository.Repository
	notifier     Notifier
	logger       *zap.Logger
	now          func() time.Time
	defaultGrace time.Duration
	defaultDelay time.Duration
	bonus        time.Duration
	minExplain   int
	retention    time.Duration
	concurrency  int
}

// NewAutoUnbookService 创建 AutoUnbookService 实例
func NewAutoUnbookService(cfg *config.Config, repo *repository.Repository, notifier Notifier, logger *zap.Logger) AutoUnbookService {
	return &autoUnbookService{
		repo:         repo,
		notifier:     notifier,
		logger:       logger,
		now:          utcNow,
		defaultGrace: cfg.AutoUnbook.DefaultGracePeriod,
		defaultDelay: cfg.Wifi.DefaultAutoClockOutDelay,
		bonus:        cfg.AutoUnbook.PresenceBonus,
		minExplain:   cfg.AutoUnbook.MinExplanationLength,
		retention:    cfg.Wifi.StaleShiftRetention,
		concurrency:  cfg.Scheduler.SweepConcurrency,
	}
}

// ────────────────────── 缺勤扫描 ──────────────────────

// RunNoShowSweep 评估全部候选班次；单个班次失败只记录日志，不影响其余班次
func (s *autoUnbookService) RunNoShowSweep(ctx context.Context) (*dto.SweepResult, error) {
	now := s.now()
	candidates, err := s.repo.Shift.ListNoShowCandidates(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("查询缺勤候选班次失败: %w", err)
	}

	var (
		mu     sync.Mutex
		result = &dto.SweepResult{Evaluated: len(candidates)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range candidates {
		shift := &candidates[i]
		g.Go(func() error {
			outcome, err := s.evaluateShift(gctx, shift, now)
			if err != nil {
				outcome = outcomeFailed
				s.logger.Error("缺勤评估失败",
					zap.String("shift_id", shift.ShiftID),
					zap.Stringp("worker_id", shift.AssignedTo),
					zap.String("location_id", shift.LocationID),
					zap.Error(err),
				)
			}
			noShowOutcomes.WithLabelValues(outcome).Inc()

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeWaiting:
				result.Waiting++
			case outcomeAttended:
				result.Attended++
			case outcomeExtended:
				result.Extended++
			case outcomeUnbooked:
				result.Unbooked++
			case outcomeSkipped:
				result.Skipped++
			default:
				result.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	if result.Unbooked > 0 || result.Failed > 0 {
		s.logger.Info("缺勤扫描完成",
			zap.Int("evaluated", result.Evaluated),
			zap.Int("unbooked", result.Unbooked),
			zap.Int("extended", result.Extended),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}

// evaluateShift 依次判断：宽限期未到 → 已签到 → 有 WiFi 记录延长一次 → 释放
func (s *autoUnbookService) evaluateShift(ctx context.Context, shift *model.Shift, now time.Time) (string, error) {
	if shift.AssignedTo == nil {
		return outcomeSkipped, nil
	}
	workerID := *shift.AssignedTo

	var settings model.WifiSettings
	if shift.Location != nil {
		settings = shift.Location.WifiSettings(s.defaultGrace, s.defaultDelay)
	}
	grace := shift.EffectiveGracePeriod(settings, s.defaultGrace)
	deadline := shift.StartTime.Add(grace)
	if now.Before(deadline) {
		return outcomeWaiting, nil
	}

	attended, err := s.repo.TimeEntry.HasAttendanceForShift(ctx, workerID, shift.ShiftID)
	if err != nil {
		return "", fmt.Errorf("查询到岗记录失败: %w", err)
	}
	if attended {
		return outcomeAttended, nil
	}

	present, err := s.repo.WifiStatus.HasConnectionSince(ctx, workerID, shift.LocationID, shift.StartTime.Add(-grace), now)
	if err != nil {
		return "", fmt.Errorf("查询 WiFi 记录失败: %w", err)
	}
	if present && now.Before(deadline.Add(s.bonus)) {
		return outcomeExtended, nil
	}

	return s.unbook(ctx, shift, workerID, now)
}

// unbook 单条条件更新完成释放，只有更新成功的一方发送通知
func (s *autoUnbookService) unbook(ctx context.Context, shift *model.Shift, workerID string, now time.Time) (string, error) {
	err := s.repo.Shift.MarkAutoUnbooked(ctx, repository.AutoUnbookMark{
		ShiftID:  shift.ShiftID,
		WorkerID: workerID,
		Reason:   autoUnbookReason,
		At:       now,
	})
	if err != nil {
		if errors.Is(err, pkgerrors.ErrConditionNotMet) {
			s.logger.Info("班次状态已变化，跳过自动释放", zap.String("shift_id", shift.ShiftID))
			return outcomeSkipped, nil
		}
		return "", fmt.Errorf("自动释放班次失败: %w", err)
	}

	s.logger.Warn("班次缺勤，已自动释放",
		zap.String("shift_id", shift.ShiftID),
		zap.String("worker_id", workerID),
		zap.Time("start_time", shift.StartTime),
	)

	w := workerID
	writeShiftChangeLog(ctx, s.repo, s.logger, &model.ShiftChangeLog{
		ShiftID:    shift.ShiftID,
		FromStatus: model.ShiftStatusBooked,
		ToStatus:   model.ShiftStatusAutoUnbooked,
		WorkerID:   &w,
		ChangeType: changeTypeAutoUnbook,
		Reason:     autoUnbookReason,
	})
	writeShiftChangeLog(ctx, s.repo, s.logger, &model.ShiftChangeLog{
		ShiftID:    shift.ShiftID,
		FromStatus: model.ShiftStatusAutoUnbooked,
		ToStatus:   model.ShiftStatusAvailable,
		WorkerID:   &w,
		ChangeType: changeTypeAutoUnbook,
		Reason:     "班次重新开放预约",
	})

	locName := shift.LocationID
	if shift.Location != nil {
		locName = shift.Location.Name
	}
	when := shift.StartTime.Format("2006-01-02 15:04")
	s.notifier.Notify(ctx, workerID, model.NotifyShiftAutoUnbooked, NotificationPayload{
		Title:       "班次已被自动取消",
		Content:     fmt.Sprintf("您在 %s 于 %s 开始的班次因未签到已被自动取消，请提交缺勤说明", locName, when),
		RelatedType: "shift",
		RelatedID:   shift.ShiftID,
	})
	s.notifier.NotifyAdmins(ctx, model.NotifyShiftManagement, NotificationPayload{
		Title:       "班次缺勤自动释放",
		Content:     fmt.Sprintf("%s 于 %s 开始的班次因成员缺勤已重新开放", locName, when),
		RelatedType: "shift",
		RelatedID:   shift.ShiftID,
	})
	return outcomeUnbooked, nil
}

// ────────────────────── 缺勤说明 ──────────────────────

func (s *autoUnbookService) SubmitExplanation(ctx context.Context, shiftID, workerID string, req *dto.SubmitExplanationRequest) (*dto.ShiftResponse, error) {
	if utf8.RuneCountInString(req.Explanation) < s.minExplain {
		return nil, ErrExplanationTooShort
	}

	shift, err := s.getShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if shift.AutoUnbookedAt == nil || shift.AutoUnbookedWorkerID == nil {
		return nil, ErrShiftNotAutoUnbooked
	}
	if *shift.AutoUnbookedWorkerID != workerID {
		return nil, ErrShiftNotOwned
	}
	if shift.Explanation.SubmittedAt != nil {
		return nil, ErrExplanationAlreadySubmitted
	}

	now := s.now()
	if err := s.repo.Shift.SaveExplanation(ctx, shiftID, workerID, req.Explanation, now); err != nil {
		if errors.Is(err, pkgerrors.ErrConditionNotMet) {
			return nil, ErrExplanationAlreadySubmitted
		}
		s.logger.Error("保存缺勤说明失败", zap.String("shift_id", shiftID), zap.Error(err))
		return nil, err
	}

	shift.Explanation.SubmittedBy = &workerID
	shift.Explanation.Text = req.Explanation
	shift.Explanation.SubmittedAt = &now
	shift.Explanation.ReviewStatus = model.ReviewStatusPending
	shift.Version++

	s.notifier.NotifyAdmins(ctx, model.NotifyExplanationSubmitted, NotificationPayload{
		Title:       "收到新的缺勤说明",
		Content:     fmt.Sprintf("%s 开始的班次收到缺勤说明，请审核", shift.StartTime.Format("2006-01-02 15:04")),
		RelatedType: "shift",
		RelatedID:   shiftID,
	})
	return toShiftResponse(shift), nil
}

// ReviewExplanation 审核结果只触发通知，不恢复班次分配
func (s *autoUnbookService) ReviewExplanation(ctx context.Context, shiftID, adminID string, req *dto.ReviewExplanationRequest) (*dto.ShiftResponse, error) {
	shift, err := s.getShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if shift.AutoUnbookedAt == nil {
		return nil, ErrShiftNotAutoUnbooked
	}
	if shift.Explanation.SubmittedAt == nil {
		return nil, ErrExplanationNotSubmitted
	}
	if shift.Explanation.ReviewedAt != nil {
		return nil, ErrExplanationAlreadyReviewed
	}

	now := s.now()
	if err := s.repo.Shift.SaveReview(ctx, shiftID, adminID, req.Decision, req.Notes, now); err != nil {
		if errors.Is(err, pkgerrors.ErrConditionNotMet) {
			return nil, ErrExplanationAlreadyReviewed
		}
		s.logger.Error("保存审核结果失败", zap.String("shift_id", shiftID), zap.Error(err))
		return nil, err
	}

	shift.Explanation.ReviewStatus = req.Decision
	shift.Explanation.ReviewedBy = &adminID
	shift.Explanation.ReviewedAt = &now
	shift.Explanation.ReviewNotes = req.Notes
	shift.Version++

	decision := "已通过"
	if req.Decision == model.ReviewStatusRejected {
		decision = "未通过"
	}
	if shift.AutoUnbookedWorkerID != nil {
		s.notifier.Notify(ctx, *shift.AutoUnbookedWorkerID, model.NotifyExplanationReviewed, NotificationPayload{
			Title:       "缺勤说明审核结果",
			Content:     fmt.Sprintf("您提交的缺勤说明%s", decision),
			RelatedType: "shift",
			RelatedID:   shiftID,
		})
	}
	return toShiftResponse(shift), nil
}

// ────────────────────── 查询与统计 ──────────────────────

// ListAutoUnbooked 普通成员只能查看自己被释放的班次
func (s *autoUnbookService) ListAutoUnbooked(ctx context.Context, callerID, callerRole string, req *dto.AutoUnbookedListRequest) ([]dto.ShiftResponse, int64, error) {
	filter := repository.AutoUnbookedFilter{
		WorkerID:      req.WorkerID,
		PendingReview: req.PendingReview,
		Offset:        req.GetOffset(),
		Limit:         req.GetPageSize(),
	}
	if callerRole != model.RoleAdmin {
		filter.WorkerID = callerID
	}

	shifts, total, err := s.repo.Shift.ListAutoUnbooked(ctx, filter)
	if err != nil {
		s.logger.Error("查询自动释放班次失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.ShiftResponse, 0, len(shifts))
	for i := range shifts {
		result = append(result, *toShiftResponse(&shifts[i]))
	}
	return result, total, nil
}

func (s *autoUnbookService) GetStats(ctx context.Context, req *dto.AutoUnbookStatsRequest) (*dto.AutoUnbookStatsResponse, error) {
	to := s.now()
	from := to.AddDate(0, 0, -30)
	if req.From != "" {
		t, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			return nil, ErrInvalidTimeParam
		}
		from = t.UTC()
	}
	if req.To != "" {
		t, err := time.Parse(time.RFC3339, req.To)
		if err != nil {
			return nil, ErrInvalidTimeParam
		}
		to = t.UTC()
	}

	stats, err := s.repo.Shift.CountAutoUnbookStats(ctx, from, to)
	if err != nil {
		s.logger.Error("统计自动释放失败", zap.Error(err))
		return nil, err
	}

	pending := stats.Explained - stats.Approved - stats.Rejected
	if pending < 0 {
		pending = 0
	}
	return &dto.AutoUnbookStatsResponse{
		From:      dto.FormatTime(from),
		To:        dto.FormatTime(to),
		Unbooked:  stats.Unbooked,
		Explained: stats.Explained,
		Approved:  stats.Approved,
		Rejected:  stats.Rejected,
		Pending:   pending,
	}, nil
}

// ────────────────────── 过期班次清理 ──────────────────────

// CleanupStaleShifts 自动释放后无人预约且已结束的班次置为 cancelled
func (s *autoUnbookService) CleanupStaleShifts(ctx context.Context) (int, error) {
	now := s.now()
	stale, err := s.repo.Shift.ListStaleAutoUnbooked(ctx, now.Add(-s.retention), now)
	if err != nil {
		return 0, fmt.Errorf("查询过期班次失败: %w", err)
	}

	cleaned := 0
	for i := range stale {
		shift := &stale[i]
		err := s.repo.Shift.TransitionStatus(ctx, shift.ShiftID, model.ShiftStatusAvailable, model.ShiftStatusCancelled)
		if err != nil {
			if !errors.Is(err, pkgerrors.ErrConditionNotMet) {
				s.logger.Error("清理过期班次失败", zap.String("shift_id", shift.ShiftID), zap.Error(err))
			}
			continue
		}
		writeShiftChangeLog(ctx, s.repo, s.logger, &model.ShiftChangeLog{
			ShiftID:    shift.ShiftID,
			FromStatus: model.ShiftStatusAvailable,
			ToStatus:   model.ShiftStatusCancelled,
			ChangeType: changeTypeCleanup,
			Reason:     "自动释放后无人预约，班次已结束",
		})
		cleaned++
	}

	if cleaned > 0 {
		s.logger.Info("过期班次清理完成", zap.Int("cleaned", cleaned))
	}
	return cleaned, nil
}

func (s *autoUnbookService) getShift(ctx context.Context, id string) (*model.Shift, error) {
	shift, err := s.repo.Shift.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShiftNotFound
		}
		s.logger.Error("查询班次失败", zap.String("shift_id", id), zap.Error(err))
		return nil, err
	}
	return shift, nil
}

// [自证通过] internal/service/auto_unbook_service.go
