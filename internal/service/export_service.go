package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"crb/backend/config"
	"crb/backend/internal/dto"
	"crb/backend/internal/model"
	"crb/backend/internal/repository"
	"crb/backend/internal/scheduling"
)

// ── 导出模块业务错误 ──

var (
	ErrExportGenerateFail = errors.New("生成导出文件失败")
)

// icsParentProperty 分支记录在 ICS 中携带的系列根 ID
const icsParentProperty ics.ComponentProperty = "X-CRB-PARENT-ID"

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response：
//   - ICS：每条记录一个 VEVENT，重复规则写成 RRULE；拆分后的系列彼此不重叠，无需 EXDATE
//   - Excel：闭区间内展开后的每次发生一行
type ExportService interface {
	ExportICS(ctx context.Context, calendarID, callerID string) (*bytes.Buffer, string, error)
	ExportXLSX(ctx context.Context, calendarID string, req *dto.OccurrenceListRequest, callerID string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	events EventService
	loc    *time.Location
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, events EventService, cfg *config.SchedulingConfig, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, events: events, loc: cfg.Location(), logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportICS 导出日历为 iCalendar
// ═══════════════════════════════════════════════════════════

func (s *exportService) ExportICS(ctx context.Context, calendarID, callerID string) (*bytes.Buffer, string, error) {
	cal, err := checkManage(ctx, s.repo, s.logger, calendarID, callerID)
	if err != nil {
		return nil, "", err
	}
	events, err := s.repo.Event.ListByCalendar(ctx, calendarID)
	if err != nil {
		s.logger.Error("查询日历事件失败", zap.Error(err))
		return nil, "", &scheduling.StoreError{Op: "list", Err: err}
	}

	out := ics.NewCalendar()
	out.SetMethod(ics.MethodPublish)
	out.SetProductId("-//crb//calendar//ZH")
	out.SetXWRCalName(cal.Name)
	out.SetXWRTimezone(s.loc.String())

	for i := range events {
		ev := &events[i]
		localize(ev, s.loc)
		series, err := scheduling.NewSeries(ev)
		if err != nil {
			s.logger.Warn("事件重复规则无效，跳过导出", zap.String("event_id", ev.EventID), zap.Error(err))
			continue
		}
		writeVEvent(out.AddEvent(ev.EventID+"@crb"), ev, series)
	}

	buf := bytes.NewBufferString(out.Serialize())
	return buf, fmt.Sprintf("%s.ics", cal.Name), nil
}

func writeVEvent(vev *ics.VEvent, ev *model.Event, series *scheduling.Series) {
	vev.SetSummary(ev.Title)
	if ev.Description != "" {
		vev.SetDescription(ev.Description)
	}
	vev.SetStartAt(ev.StartDate)
	vev.SetEndAt(ev.EndDate)
	vev.SetDtStampTime(ev.UpdatedAt)
	vev.SetCreatedTime(ev.CreatedAt)
	vev.SetModifiedAt(ev.UpdatedAt)
	if rule := series.RRule(); rule != "" {
		// 重复事件从窗口内第一次发生开始
		if first, ok := series.First(); ok {
			slot := series.SlotOn(first)
			vev.SetStartAt(slot.Start)
			vev.SetEndAt(slot.End)
		}
		vev.AddRrule(rule)
	}
	if ev.ParentID != nil {
		vev.SetProperty(icsParentProperty, *ev.ParentID)
	}
}

// ═══════════════════════════════════════════════════════════
// ExportXLSX 导出发生列表为 Excel
// ═══════════════════════════════════════════════════════════
//
// 表头: | 日期 | 星期 | 开始 | 结束 | 标题 | 类型 |

func (s *exportService) ExportXLSX(ctx context.Context, calendarID string, req *dto.OccurrenceListRequest, callerID string) (*bytes.Buffer, string, error) {
	cal, err := checkManage(ctx, s.repo, s.logger, calendarID, callerID)
	if err != nil {
		return nil, "", err
	}
	occurrences, err := s.events.ListOccurrences(ctx, calendarID, req, callerID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "日程"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "B", 12)
	f.SetColWidth(sheetName, "C", "D", 10)
	f.SetColWidth(sheetName, "E", "E", 30)
	f.SetColWidth(sheetName, "F", "F", 10)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	// 标题行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s（%s ~ %s）", cal.Name, req.From, req.To))
	f.MergeCell(sheetName, "A1", "F1")
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	headers := []string{"日期", "星期", "开始", "结束", "标题", "类型"}
	for i, h := range headers {
		f.SetCellValue(sheetName, cell(colName(i), 2), h)
	}
	f.SetCellStyle(sheetName, "A2", "F2", headerStyle)

	row := 3
	for _, occ := range occurrences {
		start, _ := time.Parse(time.RFC3339, occ.Start)
		end, _ := time.Parse(time.RFC3339, occ.End)
		kind := "单次"
		if occ.Recurring {
			kind = "重复"
		}
		f.SetCellValue(sheetName, cell("A", row), occ.Date)
		f.SetCellValue(sheetName, cell("B", row), weekdayNames[start.Weekday()])
		f.SetCellValue(sheetName, cell("C", row), start.Format("15:04"))
		f.SetCellValue(sheetName, cell("D", row), end.Format("15:04"))
		f.SetCellValue(sheetName, cell("E", row), occ.Title)
		f.SetCellValue(sheetName, cell("F", row), kind)
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("%s_%s_%s.xlsx", cal.Name, req.From, req.To)
	return buf, filename, nil
}

// ── 辅助函数 ──

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "周一",
	time.Tuesday:   "周二",
	time.Wednesday: "周三",
	time.Thursday:  "周四",
	time.Friday:    "周五",
	time.Saturday:  "周六",
	time.Sunday:    "周日",
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
