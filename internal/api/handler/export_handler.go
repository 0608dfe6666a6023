package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"crb/backend/internal/dto"
	"crb/backend/internal/service"
	"crb/backend/pkg/response"
)

const (
	contentTypeICS  = "text/calendar; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportICS 导出日历为 iCalendar
// GET /api/v1/calendars/:id/export.ics
func (h *ExportHandler) ExportICS(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportICS(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		h.handleExportError(c, err)
		return
	}
	response.Attachment(c, contentTypeICS, filename, buf.Bytes())
}

// ExportXLSX 导出区间内的发生列表
// GET /api/v1/calendars/:id/export.xlsx?from=&to=
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	var req dto.OccurrenceListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "from / to 格式应为 YYYY-MM-DD")
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportXLSX(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleExportError(c, err)
		return
	}
	response.Attachment(c, contentTypeXLSX, filename, buf.Bytes())
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExportGenerateFail):
		response.Error(c, http.StatusInternalServerError, 23001, "生成导出文件失败")
	default:
		handleEventError(c, err)
	}
}
