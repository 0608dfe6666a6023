package model

import (
	"sort"
	"time"

	"gorm.io/gorm"
)

// 重复类型
const (
	RepeatNone    = "none"
	RepeatDaily   = "daily"
	RepeatWeekly  = "weekly"
	RepeatMonthly = "monthly"
	RepeatYearly  = "yearly"
)

// 例外类型
const (
	ExceptionEditOnly      = "edit_only"       // 仅覆盖一次发生，自身不再重复
	ExceptionEditAllFollow = "edit_all_follow" // 从被编辑的发生起接管后续系列
)

// Event 事件表，对应 events
//
// ParentID 是系列血缘指针：从某个重复系列拆分出来的记录指向系列根，
// 根本身 ParentID 为空，子记录不再继续嵌套。
type Event struct {
	EventID       string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"event_id"`
	CalendarID    string     `gorm:"type:uuid;not null"                             json:"calendar_id"`
	UserID        string     `gorm:"type:uuid;not null"                             json:"user_id"`
	Title         string     `gorm:"type:varchar(200);not null"                     json:"title"`
	Description   string     `gorm:"type:text;not null;default:''"                  json:"description"`
	StartDate     time.Time  `gorm:"not null"                                       json:"start_date"`
	EndDate       time.Time  `gorm:"not null"                                       json:"end_date"`
	RepeatType    *string    `gorm:"type:varchar(10)"                               json:"repeat_type,omitempty"` // daily | weekly | monthly | yearly
	StartRepeat   *time.Time `json:"start_repeat,omitempty"`
	EndRepeat     *time.Time `gorm:"type:date"                                      json:"end_repeat,omitempty"` // 含当天
	ExceptionTime *time.Time `json:"exception_time,omitempty"`                                                   // 被覆盖的原始发生时间
	ExceptionType *string    `gorm:"type:varchar(20)"                               json:"exception_type,omitempty"` // edit_only | edit_all_follow
	ParentID      *string    `gorm:"type:uuid"                                      json:"parent_id,omitempty"`
	VersionedModel

	// 关联
	RepeatOns []RepeatOn `gorm:"foreignKey:EventID;references:EventID" json:"repeat_ons,omitempty"`
}

// TableName 指定表名
func (Event) TableName() string { return "events" }

// RepeatOn 每周重复的星期，对应 repeat_ons
type RepeatOn struct {
	RepeatOnID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"-"`
	EventID    string `gorm:"type:uuid;not null"                             json:"-"`
	DayOfWeek  int    `gorm:"type:smallint;not null"                         json:"day_of_week"` // 1=周一 … 7=周日
}

// TableName 指定表名
func (RepeatOn) TableName() string { return "repeat_ons" }

// BeforeCreate end_repeat 按字面日期写入 DATE 列
func (e *Event) BeforeCreate(_ *gorm.DB) error {
	e.EndRepeat = e.EndRepeatDate()
	return nil
}

// EndRepeatDate end_repeat 的 UTC 零点副本，避免写入 DATE 列时被会话时区换算到前一天
func (e *Event) EndRepeatDate() *time.Time {
	if e.EndRepeat == nil {
		return nil
	}
	y, m, d := e.EndRepeat.Date()
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// RepeatKind 返回重复类型，非重复事件返回 RepeatNone
func (e *Event) RepeatKind() string {
	if e.RepeatType == nil || *e.RepeatType == "" {
		return RepeatNone
	}
	return *e.RepeatType
}

// IsException 是否为单次例外记录
// 未标注类型的例外按单次处理
func (e *Event) IsException() bool {
	if e.ExceptionTime == nil {
		return false
	}
	return e.ExceptionType == nil || *e.ExceptionType != ExceptionEditAllFollow
}

// IsRecurring 是否按重复规则展开；例外记录即使保留 repeat_type 也只占一个时段
func (e *Event) IsRecurring() bool {
	return e.RepeatKind() != RepeatNone && !e.IsException()
}

// RootID 系列根 ID
func (e *Event) RootID() string {
	if e.ParentID != nil && *e.ParentID != "" {
		return *e.ParentID
	}
	return e.EventID
}

// Duration 单次发生的时长
func (e *Event) Duration() time.Duration {
	return e.EndDate.Sub(e.StartDate)
}

// Weekdays 按星期升序返回去重后的 RepeatOn
func (e *Event) Weekdays() []int {
	seen := make(map[int]bool, len(e.RepeatOns))
	days := make([]int, 0, len(e.RepeatOns))
	for _, ro := range e.RepeatOns {
		if seen[ro.DayOfWeek] {
			continue
		}
		seen[ro.DayOfWeek] = true
		days = append(days, ro.DayOfWeek)
	}
	sort.Ints(days)
	return days
}

// SetWeekdays 以显式星期集合替换 RepeatOn
func (e *Event) SetWeekdays(days []int) {
	seen := make(map[int]bool, len(days))
	ros := make([]RepeatOn, 0, len(days))
	for _, d := range days {
		if seen[d] {
			continue
		}
		seen[d] = true
		ros = append(ros, RepeatOn{EventID: e.EventID, DayOfWeek: d})
	}
	sort.Slice(ros, func(i, j int) bool { return ros[i].DayOfWeek < ros[j].DayOfWeek })
	e.RepeatOns = ros
}

// Clone 深拷贝（指针字段与 RepeatOn 均复制），用于构造拆分后的新记录
func (e *Event) Clone() *Event {
	c := *e
	if e.RepeatType != nil {
		v := *e.RepeatType
		c.RepeatType = &v
	}
	if e.StartRepeat != nil {
		v := *e.StartRepeat
		c.StartRepeat = &v
	}
	if e.EndRepeat != nil {
		v := *e.EndRepeat
		c.EndRepeat = &v
	}
	if e.ExceptionTime != nil {
		v := *e.ExceptionTime
		c.ExceptionTime = &v
	}
	if e.ExceptionType != nil {
		v := *e.ExceptionType
		c.ExceptionType = &v
	}
	if e.ParentID != nil {
		v := *e.ParentID
		c.ParentID = &v
	}
	c.RepeatOns = append([]RepeatOn(nil), e.RepeatOns...)
	return &c
}
