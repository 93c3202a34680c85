package dto

// ── 定时任务管理 DTO ──

// JobResponse 定时任务状态
type JobResponse struct {
	Name            string  `json:"name"`
	IntervalSeconds float64 `json:"interval_seconds"`
	Running         bool    `json:"running"`
	Executing       bool    `json:"executing"`
	LastRunAt       *string `json:"last_run_at,omitempty"`
	LastDurationMs  int64   `json:"last_duration_ms"`
	LastError       string  `json:"last_error,omitempty"`
	RunCount        int64   `json:"run_count"`
	FailCount       int64   `json:"fail_count"`
}

// JobActionRequest 定时任务操作
type JobActionRequest struct {
	Action string `json:"action" binding:"required,oneof=run start stop restart"`
}
