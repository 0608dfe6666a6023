package dto

import "time"

// ── 事件模块 DTO ──

// CreateEventRequest 创建事件请求
type CreateEventRequest struct {
	CalendarID  string     `json:"calendar_id"  binding:"required,uuid"`
	Title       string     `json:"title"        binding:"required,min=1,max=200"`
	Description string     `json:"description"  binding:"max=2000"`
	StartDate   time.Time  `json:"start_date"   binding:"required"`
	EndDate     time.Time  `json:"end_date"     binding:"required,gtfield=StartDate"`
	RepeatType  *string    `json:"repeat_type"  binding:"omitempty,repeat_type"`
	RepeatOn    []int      `json:"repeat_on"    binding:"omitempty,max=7,dive,weekday"`
	StartRepeat *time.Time `json:"start_repeat"`
	EndRepeat   *string    `json:"end_repeat"   binding:"omitempty,datetime=2006-01-02"` // 含当天，为空表示不限
}

// UpdateEventRequest 更新事件请求
//
// 对重复事件：occurrence_date 指定被编辑的那次发生（缺省为首次发生），
// scope=following 编辑该次及之后，scope=only 仅编辑该次。
type UpdateEventRequest struct {
	Title          *string    `json:"title"           binding:"omitempty,min=1,max=200"`
	Description    *string    `json:"description"     binding:"omitempty,max=2000"`
	StartDate      *time.Time `json:"start_date"`
	EndDate        *time.Time `json:"end_date"`
	RepeatType     *string    `json:"repeat_type"     binding:"omitempty,repeat_type"` // "none" 取消重复
	RepeatOn       []int      `json:"repeat_on"       binding:"omitempty,max=7,dive,weekday"`
	EndRepeat      *string    `json:"end_repeat"      binding:"omitempty,datetime=2006-01-02"`
	ClearEndRepeat bool       `json:"clear_end_repeat"`
	OccurrenceDate *string    `json:"occurrence_date" binding:"omitempty,datetime=2006-01-02"`
	Scope          string     `json:"scope"           binding:"omitempty,oneof=following only"`
	Version        *int       `json:"version"         binding:"omitempty,min=1"`
}

// DeleteOccurrenceRequest 删除重复事件中某次发生
type DeleteOccurrenceRequest struct {
	OccurrenceDate string `json:"occurrence_date" binding:"required,datetime=2006-01-02"`
	Scope          string `json:"scope"           binding:"omitempty,oneof=following only"`
}

// OccurrenceListRequest 发生列表查询参数（闭区间）
type OccurrenceListRequest struct {
	From string `form:"from" binding:"required,datetime=2006-01-02"`
	To   string `form:"to"   binding:"required,datetime=2006-01-02"`
}

// EventSearchRequest 事件搜索参数
type EventSearchRequest struct {
	Q string `form:"q" binding:"max=100"`
}

// EventResponse 事件信息响应
type EventResponse struct {
	ID            string  `json:"id"`
	CalendarID    string  `json:"calendar_id"`
	UserID        string  `json:"user_id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	RepeatType    string  `json:"repeat_type"`
	RepeatOn      []int   `json:"repeat_on,omitempty"`
	StartRepeat   *string `json:"start_repeat,omitempty"`
	EndRepeat     *string `json:"end_repeat,omitempty"`
	ExceptionTime *string `json:"exception_time,omitempty"`
	ExceptionType *string `json:"exception_type,omitempty"`
	ParentID      *string `json:"parent_id,omitempty"`
	Version       int     `json:"version"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// EventResultResponse 创建/更新结果
// policy=truncate 时 conflict_date 为被截掉的第一个冲突日期
type EventResultResponse struct {
	Event        EventResponse   `json:"event"`
	Policy       string          `json:"policy"`
	ConflictDate *string         `json:"conflict_date,omitempty"`
	Affected     []EventResponse `json:"affected,omitempty"`
}

// DeleteEventResponse 删除单条记录的结果
type DeleteEventResponse struct {
	Deleted    bool   `json:"deleted"`
	CalendarID string `json:"calendar_id,omitempty"`
}

// MutationResponse 删除某次发生后的变更摘要
type MutationResponse struct {
	Updated []EventResponse `json:"updated"`
	Created []EventResponse `json:"created"`
	Deleted []string        `json:"deleted"`
}

// OccurrenceResponse 单次发生
type OccurrenceResponse struct {
	EventID   string  `json:"event_id"`
	ParentID  *string `json:"parent_id,omitempty"`
	Title     string  `json:"title"`
	Date      string  `json:"date"`
	Start     string  `json:"start"`
	End       string  `json:"end"`
	Recurring bool    `json:"recurring"`
}
