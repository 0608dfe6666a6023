package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"crb/backend/pkg/response"
)

// TokenRevoker 吊销 Access Token（pkg/redis.Client 实现）
type TokenRevoker interface {
	BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error
}

// AuthHandler 认证模块 HTTP 处理器
// Token 由外部认证服务签发，这里只提供身份查询与登出
type AuthHandler struct {
	revoker TokenRevoker
}

// NewAuthHandler 创建 AuthHandler
func NewAuthHandler(revoker TokenRevoker) *AuthHandler {
	return &AuthHandler{revoker: revoker}
}

// Me 当前调用方身份
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	response.OK(c, gin.H{
		"user_id": userID,
		"role":    GetRole(c),
	})
}

// Logout 登出：当前 Token 加入黑名单直到自然过期
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if _, ok := MustGetUserID(c); !ok {
		return
	}
	jti, exp, ok := tokenMeta(c)
	if !ok || h.revoker == nil {
		response.OK(c, nil)
		return
	}

	ttl := time.Until(exp)
	if ttl <= 0 {
		response.OK(c, nil)
		return
	}
	if err := h.revoker.BlacklistToken(c.Request.Context(), jti, ttl); err != nil {
		response.InternalError(c)
		return
	}
	response.OK(c, nil)
}
