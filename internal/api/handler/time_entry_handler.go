package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"suncoop/backend/internal/dto"
	"suncoop/backend/internal/service"
	"suncoop/backend/pkg/response"
)

// TimeEntryHandler 工时模块 HTTP 处理器
type TimeEntryHandler struct {
	timeEntrySvc service.TimeEntryService
}

// NewTimeEntryHandler 创建 TimeEntryHandler
func NewTimeEntryHandler(timeEntrySvc service.TimeEntryService) *TimeEntryHandler {
	return &TimeEntryHandler{timeEntrySvc: timeEntrySvc}
}

// ClockIn 手动签到
// POST /api/v1/time-entries/clock-in
func (h *TimeEntryHandler) ClockIn(c *gin.Context) {
	var req dto.ClockInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 21001, "参数校验失败")
		return
	}

	workerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	entry, err := h.timeEntrySvc.ClockIn(c.Request.Context(), workerID, &req)
	if err != nil {
		h.handleTimeEntryError(c, err)
		return
	}
	response.Created(c, entry)
}

// ClockOut 手动签退
// POST /api/v1/time-entries/clock-out
func (h *TimeEntryHandler) ClockOut(c *gin.Context) {
	var req dto.ClockOutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, 21001, "参数校验失败")
			return
		}
	}

	workerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	entry, err := h.timeEntrySvc.ClockOut(c.Request.Context(), workerID, &req)
	if err != nil {
		h.handleTimeEntryError(c, err)
		return
	}
	response.OK(c, entry)
}

// GetActive 当前进行中的工时
// GET /api/v1/time-entries/active
func (h *TimeEntryHandler) GetActive(c *gin.Context) {
	workerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	entry, err := h.timeEntrySvc.GetActive(c.Request.Context(), workerID)
	if err != nil {
		h.handleTimeEntryError(c, err)
		return
	}
	response.OK(c, entry)
}

// ListTimeEntries 工时列表；管理员可按 worker_id 查询
// GET /api/v1/time-entries
func (h *TimeEntryHandler) ListTimeEntries(c *gin.Context) {
	var req dto.TimeEntryListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 21001, "参数校验失败")
		return
	}

	workerID, ok := resolveTargetWorker(c, req.WorkerID)
	if !ok {
		return
	}

	list, err := h.timeEntrySvc.List(c.Request.Context(), workerID, &req)
	if err != nil {
		h.handleTimeEntryError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// ApproveTimeEntry 审核通过
// POST /api/v1/time-entries/:id/approve
func (h *TimeEntryHandler) ApproveTimeEntry(c *gin.Context) {
	adminID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	entry, err := h.timeEntrySvc.Approve(c.Request.Context(), c.Param("id"), adminID)
	if err != nil {
		h.handleTimeEntryError(c, err)
		return
	}
	response.OK(c, entry)
}

// RejectTimeEntry 审核驳回
// POST /api/v1/time-entries/:id/reject
func (h *TimeEntryHandler) RejectTimeEntry(c *gin.Context) {
	adminID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	entry, err := h.timeEntrySvc.Reject(c.Request.Context(), c.Param("id"), adminID)
	if err != nil {
		h.handleTimeEntryError(c, err)
		return
	}
	response.OK(c, entry)
}

// handleTimeEntryError 统一处理工时模块业务错误
func (h *TimeEntryHandler) handleTimeEntryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTimeEntryNotFound):
		response.NotFound(c, 21101, "工时记录不存在")
	case errors.Is(err, service.ErrAlreadyClockedIn):
		response.Conflict(c, 21102, "当前已有进行中的签到记录")
	case errors.Is(err, service.ErrNotClockedIn):
		response.Conflict(c, 21103, "当前没有进行中的签到记录")
	case errors.Is(err, service.ErrTimeEntryNotReviewable):
		response.Conflict(c, 21104, "只有已签退的工时记录可以审核")
	case errors.Is(err, service.ErrTimeEntryConflict):
		response.Conflict(c, 21105, "工时记录已被其他操作修改，请刷新后重试")
	case errors.Is(err, service.ErrInvalidDateParam):
		response.BadRequest(c, 21106, "日期参数格式错误，应为 YYYY-MM-DD")
	case errors.Is(err, service.ErrLocationNotFound):
		response.NotFound(c, 16001, "地点不存在")
	case errors.Is(err, service.ErrShiftNotFound):
		response.NotFound(c, 20101, "班次不存在")
	case errors.Is(err, service.ErrShiftNotOwned):
		response.Forbidden(c, 20102, "该班次不属于当前成员")
	default:
		response.InternalError(c)
	}
}
