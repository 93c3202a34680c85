package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"suncoop/backend/config"
	"suncoop/backend/internal/api/handler"
	"suncoop/backend/internal/api/middleware"
	"suncoop/backend/internal/model"
	"suncoop/backend/pkg/jwt"
)

const (
	healthPath  = "/health"
	metricsPath = "/metrics"
)

// Setup 初始化并返回 Gin 路由引擎
// limiter 为 nil 时限流使用进程内令牌桶
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, limiter middleware.RateChecker, logger *zap.Logger) *gin.Engine {
	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger, healthPath, metricsPath))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查与指标 ──
	r.GET(healthPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET(metricsPath, gin.WrapH(promhttp.Handler()))

	adminOnly := middleware.RoleAuth(model.RoleAdmin)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr, logger))
	v1.Use(middleware.RateLimit(limiter, cfg.Server.RateLimit.Limit, cfg.Server.RateLimit.Window, logger))
	{
		// 地点模块
		locations := v1.Group("/locations")
		{
			locations.GET("", h.Location.ListLocations)
			locations.GET("/:id", h.Location.GetLocation)
			locations.POST("", adminOnly, h.Location.CreateLocation)
			locations.PUT("/:id", adminOnly, h.Location.UpdateLocation)
		}

		// 班次模块
		shifts := v1.Group("/shifts")
		{
			shifts.GET("", h.Shift.ListShifts)
			shifts.GET("/:id", h.Shift.GetShift)
			shifts.GET("/:id/change-logs", h.Shift.GetChangeLogs)
			shifts.POST("", adminOnly, h.Shift.CreateShift)
			shifts.POST("/:id/book", h.Shift.BookShift)
			shifts.POST("/:id/unbook", h.Shift.UnbookShift)
			shifts.POST("/:id/complete", adminOnly, h.Shift.CompleteShift)
			shifts.POST("/:id/cancel", adminOnly, h.Shift.CancelShift)

			// 缺勤说明
			shifts.POST("/:id/explanation", h.AutoUnbook.SubmitExplanation)
			shifts.POST("/:id/explanation/review", adminOnly, h.AutoUnbook.ReviewExplanation)
		}

		// 缺勤释放查询
		autoUnbook := v1.Group("/auto-unbook")
		{
			autoUnbook.GET("/shifts", h.AutoUnbook.ListAutoUnbooked) // 成员只能看到自己的（Service 层过滤）
			autoUnbook.GET("/stats", adminOnly, h.AutoUnbook.GetStats)
		}

		// 工时模块
		timeEntries := v1.Group("/time-entries")
		{
			timeEntries.POST("/clock-in", h.TimeEntry.ClockIn)
			timeEntries.POST("/clock-out", h.TimeEntry.ClockOut)
			timeEntries.GET("/active", h.TimeEntry.GetActive)
			timeEntries.GET("", h.TimeEntry.ListTimeEntries)
			timeEntries.POST("/:id/approve", adminOnly, h.TimeEntry.ApproveTimeEntry)
			timeEntries.POST("/:id/reject", adminOnly, h.TimeEntry.RejectTimeEntry)
		}

		// WiFi 考勤
		wifi := v1.Group("/wifi")
		{
			wifi.POST("/status", h.Presence.ReportStatus)
			wifi.GET("/current", h.Presence.CurrentConnections)
			wifi.GET("/history", h.Presence.History)
			wifi.POST("/force-disconnect", adminOnly, h.Presence.ForceDisconnect)
		}

		// 站内通知
		notifications := v1.Group("/notifications")
		{
			notifications.GET("", h.Notification.ListMine)
			notifications.PUT("/:id/read", h.Notification.MarkRead)
		}

		// 后台任务管理
		jobs := v1.Group("/admin/jobs", adminOnly)
		{
			jobs.GET("", h.Job.ListJobs)
			jobs.POST("/:name", h.Job.ActOnJob)
		}
	}

	return r
}
