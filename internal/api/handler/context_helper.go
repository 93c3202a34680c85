package handler

import (
	"github.com/gin-gonic/gin"

	"suncoop/backend/internal/model"
	"suncoop/backend/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) {
	v, exists := c.Get("role")
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// resolveTargetWorker 管理员可通过 worker_id 查询他人数据，普通成员只能查询自己
func resolveTargetWorker(c *gin.Context, requested string) (string, bool) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return "", false
	}
	role, ok := MustGetRole(c)
	if !ok {
		return "", false
	}
	if requested == "" || requested == userID {
		return userID, true
	}
	if role != model.RoleAdmin {
		response.Forbidden(c, 10003, "无权限查看其他成员的数据")
		return "", false
	}
	return requested, true
}
