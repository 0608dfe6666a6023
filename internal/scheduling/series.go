package scheduling

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"crb/backend/internal/model"
)

var rruleWeekdays = map[int]rrule.Weekday{
	1: rrule.MO,
	2: rrule.TU,
	3: rrule.WE,
	4: rrule.TH,
	5: rrule.FR,
	6: rrule.SA,
	7: rrule.SU,
}

// Slot 单次发生占用的时段 [Start, End)
type Slot struct {
	Start time.Time
	End   time.Time
}

// Overlaps 半开区间重叠判断，首尾相接不算冲突
func (s Slot) Overlaps(o Slot) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

// Series 单个事件的重复规则
//
// 非重复事件与单次例外记录只在 start_date 当天发生一次；
// 重复事件在 [start_repeat, end_repeat] 窗口内按 rrule 展开，end_repeat 为空时无上界，
// 调用方必须自行限定扫描范围。
type Series struct {
	event *model.Event
	loc   *time.Location
	first time.Time
	until *time.Time
	opt   *rrule.ROption
	rule  *rrule.RRule
}

// NewSeries 由事件构建重复规则
func NewSeries(ev *model.Event) (*Series, error) {
	loc := ev.StartDate.Location()
	s := &Series{event: ev, loc: loc}

	if !ev.IsRecurring() {
		s.first = DateOf(ev.StartDate, loc)
		until := s.first
		s.until = &until
		return s, nil
	}

	windowStart := ev.StartDate
	if ev.StartRepeat != nil {
		windowStart = *ev.StartRepeat
	}
	s.first = DateOf(windowStart, loc)
	if ev.EndRepeat != nil {
		until := CivilDate(*ev.EndRepeat, loc)
		if until.Before(s.first) {
			return nil, invalid("end_repeat", "不能早于 start_repeat")
		}
		s.until = &until
	}

	opt := rrule.ROption{Dtstart: s.first, Interval: 1, Wkst: rrule.MO}
	if s.until != nil {
		opt.Until = *s.until
	}

	anchor := ev.StartDate.In(loc)
	switch ev.RepeatKind() {
	case model.RepeatDaily:
		opt.Freq = rrule.DAILY
	case model.RepeatWeekly:
		opt.Freq = rrule.WEEKLY
		days := ev.Weekdays()
		if len(days) == 0 {
			days = []int{isoWeekday(anchor)}
		}
		for _, d := range days {
			wd, ok := rruleWeekdays[d]
			if !ok {
				return nil, invalid("repeat_on", fmt.Sprintf("星期取值 %d 超出 1-7", d))
			}
			opt.Byweekday = append(opt.Byweekday, wd)
		}
	case model.RepeatMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{anchor.Day()}
	case model.RepeatYearly:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{int(anchor.Month())}
		opt.Bymonthday = []int{anchor.Day()}
	default:
		return nil, invalid("repeat_type", fmt.Sprintf("不支持的重复类型 %q", ev.RepeatKind()))
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, invalid("repeat_type", err.Error())
	}
	s.opt = &opt
	s.rule = rule
	return s, nil
}

// Event 规则对应的事件
func (s *Series) Event() *model.Event { return s.event }

// Location 展开所用时区
func (s *Series) Location() *time.Location { return s.loc }

// Recurring 是否按规则重复
func (s *Series) Recurring() bool { return s.rule != nil }

// WindowStart 重复窗口起点（非重复事件为 start_date 当天）
func (s *Series) WindowStart() time.Time { return s.first }

// Until 重复窗口终点（含），无上界时 ok=false
func (s *Series) Until() (time.Time, bool) {
	if s.until == nil {
		return time.Time{}, false
	}
	return *s.until, true
}

// NextOnOrAfter 返回不早于 probe 的最早发生日期
// probe 按字面年月日解释
func (s *Series) NextOnOrAfter(probe time.Time) (time.Time, bool) {
	p := CivilDate(probe, s.loc)
	if s.rule == nil {
		if p.After(s.first) {
			return time.Time{}, false
		}
		return s.first, true
	}
	if p.Before(s.first) {
		p = s.first
	}
	next := s.rule.After(p, true)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

// First 首次发生日期；窗口内没有任何发生时 ok=false
func (s *Series) First() (time.Time, bool) {
	return s.NextOnOrAfter(s.first)
}

// OccursOn d 当天是否有发生
func (s *Series) OccursOn(d time.Time) bool {
	next, ok := s.NextOnOrAfter(d)
	return ok && next.Equal(CivilDate(d, s.loc))
}

// SlotOn 日期 d 上那次发生的时段；调用方需先确认 OccursOn(d)
func (s *Series) SlotOn(d time.Time) Slot {
	if s.rule == nil {
		return Slot{Start: s.event.StartDate, End: s.event.EndDate}
	}
	start := At(CivilDate(d, s.loc), s.event.StartDate.In(s.loc))
	return Slot{Start: start, End: start.Add(s.event.Duration())}
}

// Between 闭区间 [from, to] 内的发生日期（升序）
func (s *Series) Between(from, to time.Time) []time.Time {
	f, t := CivilDate(from, s.loc), CivilDate(to, s.loc)
	if t.Before(f) {
		return nil
	}
	if s.rule == nil {
		if s.first.Before(f) || s.first.After(t) {
			return nil
		}
		return []time.Time{s.first}
	}
	return s.rule.Between(f, t, true)
}

// Slots 闭区间 [from, to] 内每次发生的时段
func (s *Series) Slots(from, to time.Time) []Slot {
	days := s.Between(from, to)
	slots := make([]Slot, 0, len(days))
	for _, d := range days {
		slots = append(slots, s.SlotOn(d))
	}
	return slots
}

// Each 按升序惰性遍历发生日期，直到超过 limit（含）或 fn 返回 false
func (s *Series) Each(limit time.Time, fn func(d time.Time) bool) {
	limit = CivilDate(limit, s.loc)
	if s.rule == nil {
		if !s.first.After(limit) {
			fn(s.first)
		}
		return
	}
	next := s.rule.Iterator()
	for {
		d, ok := next()
		if !ok || d.After(limit) {
			return
		}
		if !fn(d) {
			return
		}
	}
}

// RRule RFC-5545 RRULE 文本（不含 DTSTART），非重复事件返回空串
// UNTIL 取 end_repeat 当天最后一秒，当天的发生仍包含在内
func (s *Series) RRule() string {
	if s.opt == nil {
		return ""
	}
	opt := *s.opt
	opt.Dtstart = time.Time{}
	if s.until != nil {
		opt.Until = AddDays(*s.until, 1).Add(-time.Second)
	}
	return opt.RRuleString()
}
