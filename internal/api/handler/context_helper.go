package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"crb/backend/pkg/response"
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

// GetRole 读取 role，未注入时返回空串
func GetRole(c *gin.Context) string {
	return c.GetString("role")
}

// tokenMeta 当前 Access Token 的 jti 与过期时间
func tokenMeta(c *gin.Context) (string, time.Time, bool) {
	jti := c.GetString("token_jti")
	exp := c.GetTime("token_exp")
	if jti == "" || exp.IsZero() {
		return "", time.Time{}, false
	}
	return jti, exp, true
}
