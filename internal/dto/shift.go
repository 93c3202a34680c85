package dto

// ── 班次模块 DTO ──

// CreateShiftRequest 创建班次请求
type CreateShiftRequest struct {
	LocationID           string `json:"location_id"            binding:"required,uuid"`
	Title                string `json:"title"                  binding:"omitempty,max=100"`
	StartTime            string `json:"start_time"             binding:"required"` // RFC3339
	EndTime              string `json:"end_time"               binding:"required"`
	MaxCapacity          int    `json:"max_capacity"           binding:"omitempty,min=1,max=50"`
	AutoUnbookingEnabled *bool  `json:"auto_unbooking_enabled"`
	GracePeriodSeconds   *int   `json:"grace_period_seconds"   binding:"omitempty,min=0,max=86400"`
}

// ShiftListRequest 班次列表查询参数
type ShiftListRequest struct {
	WorkerID   string `form:"worker_id"   binding:"omitempty,uuid"`
	LocationID string `form:"location_id" binding:"omitempty,uuid"`
	Status     string `form:"status"      binding:"omitempty,oneof=available booked completed cancelled no_show"`
	From       string `form:"from"` // RFC3339
	To         string `form:"to"`
	PaginationRequest
}

// ShiftStatusRequest 班次状态变更请求（完成/取消）
type ShiftStatusRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// ShiftResponse 班次响应
type ShiftResponse struct {
	ID                   string               `json:"id"`
	Location             *LocationBrief       `json:"location,omitempty"`
	LocationID           string               `json:"location_id"`
	Title                string               `json:"title,omitempty"`
	StartTime            string               `json:"start_time"`
	EndTime              string               `json:"end_time"`
	AssignedTo           *string              `json:"assigned_to,omitempty"`
	MaxCapacity          int                  `json:"max_capacity"`
	CurrentCapacity      int                  `json:"current_capacity"`
	Status               string               `json:"status"`
	AutoUnbookingEnabled bool                 `json:"auto_unbooking_enabled"`
	GracePeriodSeconds   *int                 `json:"grace_period_seconds,omitempty"`
	AutoUnbookedAt       *string              `json:"auto_unbooked_at,omitempty"`
	AutoUnbookReason     string               `json:"auto_unbook_reason,omitempty"`
	AutoUnbookedWorkerID *string              `json:"auto_unbooked_worker_id,omitempty"`
	Explanation          *ExplanationResponse `json:"explanation,omitempty"`
	Version              int                  `json:"version"`
}

// ShiftChangeLogResponse 班次变更日志响应
type ShiftChangeLogResponse struct {
	ID         string  `json:"id"`
	FromStatus string  `json:"from_status"`
	ToStatus   string  `json:"to_status"`
	WorkerID   *string `json:"worker_id,omitempty"`
	ChangeType string  `json:"change_type"`
	Reason     string  `json:"reason,omitempty"`
	OperatorID *string `json:"operator_id,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

// ── 缺勤说明 ──

// SubmitExplanationRequest 提交缺勤说明请求
type SubmitExplanationRequest struct {
	Explanation string `json:"explanation" binding:"required,max=2000"`
}

// ReviewExplanationRequest 审核缺勤说明请求
type ReviewExplanationRequest struct {
	Decision string `json:"decision" binding:"required,oneof=approved rejected"`
	Notes    string `json:"notes"    binding:"omitempty,max=500"`
}

// AutoUnbookedListRequest 已自动释放班次查询参数
type AutoUnbookedListRequest struct {
	WorkerID      string `form:"worker_id"      binding:"omitempty,uuid"`
	PendingReview bool   `form:"pending_review"`
	PaginationRequest
}

// AutoUnbookStatsRequest 自动释放统计查询参数
type AutoUnbookStatsRequest struct {
	From string `form:"from"` // RFC3339，默认最近 30 天
	To   string `form:"to"`
}

// ExplanationResponse 缺勤说明响应
type ExplanationResponse struct {
	SubmittedBy  *string `json:"submitted_by,omitempty"`
	Text         string  `json:"text,omitempty"`
	SubmittedAt  *string `json:"submitted_at,omitempty"`
	ReviewStatus string  `json:"review_status,omitempty"`
	ReviewedBy   *string `json:"reviewed_by,omitempty"`
	ReviewedAt   *string `json:"reviewed_at,omitempty"`
	ReviewNotes  string  `json:"review_notes,omitempty"`
}

// AutoUnbookStatsResponse 自动释放统计响应
type AutoUnbookStatsResponse struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Unbooked  int64  `json:"unbooked"`
	Explained int64  `json:"explained"`
	Approved  int64  `json:"approved"`
	Rejected  int64  `json:"rejected"`
	Pending   int64  `json:"pending"`
}

// SweepResult 一次缺勤扫描的汇总
type SweepResult struct {
	Evaluated int `json:"evaluated"`
	Unbooked  int `json:"unbooked"`
	Extended  int `json:"extended"`
	Attended  int `json:"attended"`
	Waiting   int `json:"waiting"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}
