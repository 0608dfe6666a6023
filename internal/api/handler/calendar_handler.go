package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"crb/backend/internal/dto"
	"crb/backend/internal/service"
	"crb/backend/pkg/response"
)

// CalendarHandler 日历模块 HTTP 处理器
type CalendarHandler struct {
	calendarSvc service.CalendarService
}

// NewCalendarHandler 创建 CalendarHandler
func NewCalendarHandler(calendarSvc service.CalendarService) *CalendarHandler {
	return &CalendarHandler{calendarSvc: calendarSvc}
}

// Create 创建日历
// POST /api/v1/calendars
func (h *CalendarHandler) Create(c *gin.Context) {
	var req dto.CreateCalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	cal, err := h.calendarSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		handleCalendarError(c, err)
		return
	}
	response.Created(c, cal)
}

// List 我的日历
// GET /api/v1/calendars
func (h *CalendarHandler) List(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.calendarSvc.ListMine(c.Request.Context(), callerID)
	if err != nil {
		handleCalendarError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// GetByID 日历详情
// GET /api/v1/calendars/:id
func (h *CalendarHandler) GetByID(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	cal, err := h.calendarSvc.GetByID(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		handleCalendarError(c, err)
		return
	}
	response.OK(c, cal)
}

func handleCalendarError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrCalendarNotFound):
		response.NotFound(c, 21001, "日历不存在")
	case errors.Is(err, service.ErrCalendarForbidden):
		response.Forbidden(c, 21002, "无权操作该日历")
	default:
		response.InternalError(c)
	}
}
