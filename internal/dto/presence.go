package dto

// ── WiFi 考勤 DTO ──

// ReportStatusRequest 客户端上报 WiFi 连接状态
type ReportStatusRequest struct {
	LocationID string      `json:"location_id" binding:"required,uuid"`
	SSID       string      `json:"ssid"        binding:"required,max=64"`
	Connected  *bool       `json:"connected"   binding:"required"`
	ShiftID    string      `json:"shift_id"    binding:"omitempty,uuid"`
	DeviceInfo *DeviceInfo `json:"device_info"`
	Latitude   *float64    `json:"latitude"    binding:"omitempty,min=-90,max=90"`
	Longitude  *float64    `json:"longitude"   binding:"omitempty,min=-180,max=180"`
}

// DeviceInfo 上报设备信息
type DeviceInfo struct {
	DeviceID   string `json:"device_id"   binding:"omitempty,max=100"`
	Platform   string `json:"platform"    binding:"omitempty,max=50"`
	AppVersion string `json:"app_version" binding:"omitempty,max=50"`
	MACAddress string `json:"mac_address" binding:"omitempty,max=50"`
}

// ForceDisconnectRequest 管理员强制断开
type ForceDisconnectRequest struct {
	WorkerID   string `json:"worker_id"   binding:"required,uuid"`
	LocationID string `json:"location_id" binding:"omitempty,uuid"` // 为空时断开该成员全部在线会话
	Reason     string `json:"reason"      binding:"omitempty,max=200"`
}

// PresenceHistoryRequest 连接历史查询参数
type PresenceHistoryRequest struct {
	WorkerID string `form:"worker_id" binding:"omitempty,uuid"`
	From     string `form:"from"` // RFC3339，默认最近 7 天
	To       string `form:"to"`
}

// PresenceResponse 连接会话响应
type PresenceResponse struct {
	ID                string               `json:"id"`
	WorkerID          string               `json:"worker_id"`
	LocationID        string               `json:"location_id"`
	ShiftID           *string              `json:"shift_id,omitempty"`
	SSID              string               `json:"ssid"`
	IsConnected       bool                 `json:"is_connected"`
	ConnectedAt       string               `json:"connected_at"`
	DisconnectedAt    *string              `json:"disconnected_at,omitempty"`
	DurationSeconds   int64                `json:"duration_seconds"`
	PendingClockOutAt *string              `json:"pending_clock_out_at,omitempty"`
	AutoActions       []AutoActionResponse `json:"auto_actions,omitempty"`
}

// AutoActionResponse 自动动作流水
type AutoActionResponse struct {
	Action      string `json:"action"`
	Result      string `json:"result"`
	At          string `json:"at"`
	Detail      string `json:"detail,omitempty"`
	TimeEntryID string `json:"time_entry_id,omitempty"`
}

// ForceDisconnectResponse 强制断开结果
type ForceDisconnectResponse struct {
	Disconnected []PresenceResponse `json:"disconnected"`
}
