package dto

// ── 地点模块 DTO ──

// CreateLocationRequest 创建地点请求
type CreateLocationRequest struct {
	Name                     string `json:"name"                         binding:"required,min=2,max=100"`
	Address                  string `json:"address"                      binding:"omitempty,max=200"`
	WifiTrackingEnabled      bool   `json:"wifi_tracking_enabled"`
	WifiSSID                 string `json:"wifi_ssid"                    binding:"omitempty,max=64"`
	GracePeriodSeconds       int    `json:"grace_period_seconds"         binding:"omitempty,min=0,max=86400"`
	AutoClockOutDelaySeconds int    `json:"auto_clock_out_delay_seconds" binding:"omitempty,min=0,max=3600"`
}

// UpdateLocationRequest 更新地点请求
type UpdateLocationRequest struct {
	Name                     *string `json:"name"                         binding:"omitempty,min=2,max=100"`
	Address                  *string `json:"address"                      binding:"omitempty,max=200"`
	IsActive                 *bool   `json:"is_active"`
	WifiTrackingEnabled      *bool   `json:"wifi_tracking_enabled"`
	WifiSSID                 *string `json:"wifi_ssid"                    binding:"omitempty,max=64"`
	GracePeriodSeconds       *int    `json:"grace_period_seconds"         binding:"omitempty,min=0,max=86400"`
	AutoClockOutDelaySeconds *int    `json:"auto_clock_out_delay_seconds" binding:"omitempty,min=0,max=3600"`
}

// LocationListRequest 地点列表查询参数
type LocationListRequest struct {
	IncludeInactive bool `form:"include_inactive"`
}

// LocationResponse 地点信息响应
type LocationResponse struct {
	ID                       string `json:"id"`
	Name                     string `json:"name"`
	Address                  string `json:"address,omitempty"`
	IsActive                 bool   `json:"is_active"`
	WifiTrackingEnabled      bool   `json:"wifi_tracking_enabled"`
	WifiSSID                 string `json:"wifi_ssid,omitempty"`
	GracePeriodSeconds       int    `json:"grace_period_seconds"`
	AutoClockOutDelaySeconds int    `json:"auto_clock_out_delay_seconds"`
	CreatedAt                string `json:"created_at"`
	UpdatedAt                string `json:"updated_at"`
}

// LocationBrief 地点简要信息
type LocationBrief struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
