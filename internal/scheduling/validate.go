package scheduling

import (
	"fmt"
	"strings"

	"crb/backend/internal/model"
)

var repeatKinds = map[string]bool{
	model.RepeatDaily:   true,
	model.RepeatWeekly:  true,
	model.RepeatMonthly: true,
	model.RepeatYearly:  true,
}

// Normalize 整理事件的重复相关字段，使其满足存储约束
//
//   - repeat_type 为空串或 none 时视为不重复，清空重复窗口与星期
//   - 非每周重复不保留 RepeatOn
//   - start_repeat 缺省取 start_date
//   - 每周重复未选星期时取 start_date 当天的星期
//   - end_repeat 只保留日期
func Normalize(ev *model.Event) {
	if ev.RepeatType != nil {
		kind := strings.ToLower(strings.TrimSpace(*ev.RepeatType))
		if kind == "" || kind == model.RepeatNone {
			ev.RepeatType = nil
		} else {
			ev.RepeatType = &kind
		}
	}

	loc := ev.StartDate.Location()
	if ev.RepeatKind() == model.RepeatNone {
		ev.StartRepeat = nil
		ev.EndRepeat = nil
		ev.RepeatOns = nil
		return
	}

	if ev.StartRepeat == nil {
		sr := ev.StartDate
		ev.StartRepeat = &sr
	}
	if ev.EndRepeat != nil {
		er := CivilDate(*ev.EndRepeat, loc)
		ev.EndRepeat = &er
	}
	if ev.RepeatKind() != model.RepeatWeekly {
		ev.RepeatOns = nil
		return
	}
	if len(ev.Weekdays()) == 0 {
		ev.SetWeekdays([]int{isoWeekday(ev.StartDate.In(loc))})
	} else {
		ev.SetWeekdays(ev.Weekdays())
	}
}

// Validate 校验事件属性，失败返回 *ValidationError
func Validate(ev *model.Event) error {
	if strings.TrimSpace(ev.Title) == "" {
		return invalid("title", "不能为空")
	}
	if ev.CalendarID == "" {
		return invalid("calendar_id", "不能为空")
	}
	if ev.StartDate.IsZero() || ev.EndDate.IsZero() {
		return invalid("start_date", "开始与结束时间不能为空")
	}
	if !ev.EndDate.After(ev.StartDate) {
		return invalid("end_date", "必须晚于 start_date")
	}
	if ev.ExceptionType != nil {
		switch *ev.ExceptionType {
		case model.ExceptionEditOnly, model.ExceptionEditAllFollow:
		default:
			return invalid("exception_type", fmt.Sprintf("不支持的例外类型 %q", *ev.ExceptionType))
		}
	}

	kind := ev.RepeatKind()
	if kind == model.RepeatNone {
		return nil
	}
	if !repeatKinds[kind] {
		return invalid("repeat_type", fmt.Sprintf("不支持的重复类型 %q", kind))
	}
	for _, d := range ev.Weekdays() {
		if d < 1 || d > 7 {
			return invalid("repeat_on", fmt.Sprintf("星期取值 %d 超出 1-7", d))
		}
	}
	if kind != model.RepeatWeekly && len(ev.RepeatOns) > 0 {
		return invalid("repeat_on", "仅每周重复可以指定星期")
	}
	if ev.StartRepeat != nil && ev.EndRepeat != nil {
		loc := ev.StartDate.Location()
		if CivilDate(*ev.EndRepeat, loc).Before(DateOf(*ev.StartRepeat, loc)) {
			return invalid("end_repeat", "不能早于 start_repeat")
		}
	}
	return nil
}

// Prepare 规范化后校验
func Prepare(ev *model.Event) error {
	Normalize(ev)
	return Validate(ev)
}
