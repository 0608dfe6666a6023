package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"crb/backend/internal/dto"
	"crb/backend/internal/notify"
	"crb/backend/internal/scheduling"
	"crb/backend/internal/service"
	pkgerrors "crb/backend/pkg/errors"
	"crb/backend/pkg/response"
)

// EventHandler 事件模块 HTTP 处理器
type EventHandler struct {
	eventSvc   service.EventService
	dispatcher notify.Dispatcher
}

// NewEventHandler 创建 EventHandler
func NewEventHandler(eventSvc service.EventService, dispatcher notify.Dispatcher) *EventHandler {
	return &EventHandler{eventSvc: eventSvc, dispatcher: dispatcher}
}

// Create 创建事件
// POST /api/v1/events
//
// 系列中途冲突时自动截断，响应中 policy=truncate 并带 conflict_date；
// 首次发生即冲突时返回 409。
func (h *EventHandler) Create(c *gin.Context) {
	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.eventSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		handleEventError(c, err)
		return
	}

	h.notify(c, notify.Message{
		Action:       notify.ActionCreated,
		EventID:      result.Event.ID,
		CalendarID:   result.Event.CalendarID,
		ActorID:      callerID,
		Policy:       result.Policy,
		ConflictDate: result.ConflictDate,
	})
	response.Created(c, result)
}

// GetByID 事件详情
// GET /api/v1/events/:id
func (h *EventHandler) GetByID(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	ev, err := h.eventSvc.GetByID(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		handleEventError(c, err)
		return
	}
	response.OK(c, ev)
}

// Update 编辑事件（重复事件可指定 occurrence_date 与 scope）
// PUT /api/v1/events/:id
func (h *EventHandler) Update(c *gin.Context) {
	var req dto.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.eventSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		handleEventError(c, err)
		return
	}

	h.notify(c, notify.Message{
		Action:     notify.ActionUpdated,
		EventID:    result.Event.ID,
		CalendarID: result.Event.CalendarID,
		ActorID:    callerID,
		Policy:     result.Policy,
	})
	response.OK(c, result)
}

// Delete 删除单条事件记录；记录不存在时 deleted=false
// DELETE /api/v1/events/:id
func (h *EventHandler) Delete(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	result, err := h.eventSvc.Delete(c.Request.Context(), id, callerID)
	if err != nil {
		handleEventError(c, err)
		return
	}
	if result.Deleted {
		h.notify(c, notify.Message{
			Action:     notify.ActionDeleted,
			EventID:    id,
			CalendarID: result.CalendarID,
			ActorID:    callerID,
		})
	}
	response.OK(c, result)
}

// DeleteOccurrence 删除重复事件中的某次发生
// POST /api/v1/events/:id/occurrences/delete
func (h *EventHandler) DeleteOccurrence(c *gin.Context) {
	var req dto.DeleteOccurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	result, err := h.eventSvc.DeleteOccurrence(c.Request.Context(), id, &req, callerID)
	if err != nil {
		handleEventError(c, err)
		return
	}

	h.notify(c, notify.Message{Action: notify.ActionOccurrenceDeleted, EventID: id, ActorID: callerID})
	response.OK(c, result)
}

// Search 日历内按标题/描述搜索
// GET /api/v1/calendars/:id/events?q=
func (h *EventHandler) Search(c *gin.Context) {
	var req dto.EventSearchRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.eventSvc.Search(c.Request.Context(), c.Param("id"), req.Q, callerID)
	if err != nil {
		handleEventError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

// ListOccurrences 展开闭区间内的全部发生
// GET /api/v1/calendars/:id/occurrences?from=&to=
func (h *EventHandler) ListOccurrences(c *gin.Context) {
	var req dto.OccurrenceListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "from / to 格式应为 YYYY-MM-DD")
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.eventSvc.ListOccurrences(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		handleEventError(c, err)
		return
	}
	response.OK(c, gin.H{"list": list})
}

func (h *EventHandler) notify(c *gin.Context, msg notify.Message) {
	if h.dispatcher == nil {
		return
	}
	h.dispatcher.Dispatch(c.Request.Context(), msg)
}

func handleEventError(c *gin.Context, err error) {
	var (
		verr     *scheduling.ValidationError
		conflict *scheduling.OverlapConflict
	)
	switch {
	case errors.As(err, &verr):
		response.ErrorWithDetails(c, http.StatusBadRequest, 20001, "事件参数不合法", verr.Field+": "+verr.Reason)
	case errors.As(err, &conflict):
		msg := "与已有事件时间冲突"
		if conflict.Policy == scheduling.PolicyRejectFull {
			msg = "首次发生即与已有事件时间冲突"
		}
		response.Conflict(c, 20002, msg, conflict.ConflictDate.Format(scheduling.DateLayout))
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 20003, "事件已被修改，请刷新后重试", "")
	case errors.Is(err, service.ErrEventNotFound):
		response.NotFound(c, 22001, "事件不存在")
	default:
		handleCalendarError(c, err)
	}
}
