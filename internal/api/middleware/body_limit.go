package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"suncoop/backend/pkg/response"
)

// BodyLimit 请求体大小限制
// Content-Length 已超限的请求直接拒绝；未声明长度的请求由 MaxBytesReader 在读取时截断
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxBytes {
			response.PayloadTooLarge(c, 10005, "请求体过大")
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
