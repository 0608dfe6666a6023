package handler

import (
	"crb/backend/internal/notify"
	"crb/backend/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth     *AuthHandler
	Calendar *CalendarHandler
	Event    *EventHandler
	Export   *ExportHandler
}

// NewHandler 创建 Handler 聚合
// revoker 为 nil 时登出只返回成功，不写黑名单
func NewHandler(svc *service.Service, dispatcher notify.Dispatcher, revoker TokenRevoker) *Handler {
	return &Handler{
		Auth:     NewAuthHandler(revoker),
		Calendar: NewCalendarHandler(svc.Calendar),
		Event:    NewEventHandler(svc.Event, dispatcher),
		Export:   NewExportHandler(svc.Export),
	}
}
