package scheduling

import (
	"time"

	"crb/backend/internal/model"
)

// ── 测试辅助 ──
// 2024-01-01 是周一

func at(m time.Month, d, h, min int) time.Time {
	return time.Date(2024, m, d, h, min, 0, 0, time.UTC)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strp(s string) *string { return &s }

func newEvent(id string, start, end time.Time) *model.Event {
	return &model.Event{
		EventID:    id,
		CalendarID: "cal-001",
		UserID:     "user-001",
		Title:      "事件" + id,
		StartDate:  start,
		EndDate:    end,
	}
}

func repeating(ev *model.Event, kind string) *model.Event {
	ev.RepeatType = strp(kind)
	sr := ev.StartDate
	ev.StartRepeat = &sr
	return ev
}

func weeklyOn(ev *model.Event, days ...int) *model.Event {
	repeating(ev, model.RepeatWeekly)
	ev.SetWeekdays(days)
	return ev
}

func until(ev *model.Event, d time.Time) *model.Event {
	ev.EndRepeat = &d
	return ev
}

func sameDay(a, b time.Time) bool {
	return a.Format(DateLayout) == b.Format(DateLayout)
}
