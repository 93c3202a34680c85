package dto

// ── 工时模块 DTO ──

// ClockInRequest 手动签到请求
type ClockInRequest struct {
	LocationID string `json:"location_id" binding:"required,uuid"`
	ShiftID    string `json:"shift_id"    binding:"omitempty,uuid"`
	Notes      string `json:"notes"       binding:"omitempty,max=500"`
}

// ClockOutRequest 手动签退请求
type ClockOutRequest struct {
	Notes string `json:"notes" binding:"omitempty,max=500"`
}

// TimeEntryListRequest 工时列表查询参数
type TimeEntryListRequest struct {
	WorkerID string `form:"worker_id" binding:"omitempty,uuid"`
	From     string `form:"from"` // YYYY-MM-DD
	To       string `form:"to"`
}

// TimeEntryResponse 工时记录响应
type TimeEntryResponse struct {
	ID                  string                   `json:"id"`
	WorkerID            string                   `json:"worker_id"`
	ShiftID             *string                  `json:"shift_id,omitempty"`
	LocationID          string                   `json:"location_id"`
	WorkDate            string                   `json:"work_date"`
	ClockInAt           *string                  `json:"clock_in_at,omitempty"`
	ClockOutAt          *string                  `json:"clock_out_at,omitempty"`
	Status              string                   `json:"status"`
	TotalMinutes        int                      `json:"total_minutes"`
	Notes               string                   `json:"notes,omitempty"`
	IsWifiOriginated    bool                     `json:"is_wifi_originated"`
	SSIDLog             []SSIDEventResponse      `json:"ssid_log,omitempty"`
	AutoClockOutReasons []ClockOutReasonResponse `json:"auto_clock_out_reasons,omitempty"`
	ReviewedBy          *string                  `json:"reviewed_by,omitempty"`
	ReviewedAt          *string                  `json:"reviewed_at,omitempty"`
	Version             int                      `json:"version"`
}

// SSIDEventResponse SSID 连接流水
type SSIDEventResponse struct {
	SSID  string `json:"ssid"`
	Event string `json:"event"`
	At    string `json:"at"`
}

// ClockOutReasonResponse 自动签退原因
type ClockOutReasonResponse struct {
	Reason string `json:"reason"`
	At     string `json:"at"`
	Detail string `json:"detail,omitempty"`
}
