package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"crb/backend/config"
	"crb/backend/internal/api/handler"
	"crb/backend/internal/api/middleware"
	"crb/backend/pkg/jwt"
	"crb/backend/pkg/redis"
)

const (
	maxBodyBytes    = 1 << 20
	writeRateLimit  = 60
	writeRateWindow = time.Minute
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 可以为 nil：此时黑名单与限流降级放行
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, db *gorm.DB, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	var (
		blacklist middleware.Blacklist
		limiter   middleware.Limiter
	)
	if rdb != nil {
		blacklist, limiter = rdb, rdb
	}

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", healthCheck(db, rdb))

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	authorized := v1.Group("")
	authorized.Use(middleware.JWTAuth(jwtMgr, blacklist))
	{
		// 认证模块
		authorized.GET("/auth/me", h.Auth.Me)
		authorized.POST("/auth/logout", h.Auth.Logout)

		writeLimit := middleware.RateLimit(limiter, writeRateLimit, writeRateWindow)

		// 日历模块
		calendars := authorized.Group("/calendars")
		{
			calendars.POST("", writeLimit, h.Calendar.Create)
			calendars.GET("", h.Calendar.List)
			calendars.GET("/:id", h.Calendar.GetByID)
			calendars.GET("/:id/events", h.Event.Search)
			calendars.GET("/:id/occurrences", h.Event.ListOccurrences)
			calendars.GET("/:id/export.ics", h.Export.ExportICS)
			calendars.GET("/:id/export.xlsx", h.Export.ExportXLSX)
		}

		// 事件模块
		events := authorized.Group("/events")
		{
			events.POST("", writeLimit, h.Event.Create)
			events.GET("/:id", h.Event.GetByID)
			events.PUT("/:id", writeLimit, h.Event.Update)
			events.DELETE("/:id", writeLimit, h.Event.Delete)
			events.POST("/:id/occurrences/delete", writeLimit, h.Event.DeleteOccurrence)
		}
	}

	return r
}

// healthCheck 数据库不可用时返回 503；Redis 只影响降级能力，不影响健康状态
func healthCheck(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := gin.H{"status": "ok", "database": "ok", "redis": "disabled"}
		code := http.StatusOK

		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				status["status"], status["database"] = "degraded", "unavailable"
				code = http.StatusServiceUnavailable
			}
		}
		if rdb != nil {
			status["redis"] = "ok"
			if err := rdb.Ping(ctx); err != nil {
				status["redis"] = "unavailable"
			}
		}
		c.JSON(code, status)
	}
}
