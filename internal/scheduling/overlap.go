package scheduling

import (
	"time"

	"crb/backend/internal/model"
)

// DefaultHorizonDays 候选系列默认向前扫描一年
const DefaultHorizonDays = 365

// Detector 时段重叠检测器，无状态，可并发复用
type Detector struct {
	horizonDays int
}

// NewDetector 创建检测器
// horizonDays 从候选系列首次发生起算，有无 end_repeat 都按它截止；窗口之外的冲突不做预检测
func NewDetector(horizonDays int) *Detector {
	if horizonDays < 1 {
		horizonDays = DefaultHorizonDays
	}
	return &Detector{horizonDays: horizonDays}
}

// HorizonDays 扫描窗口天数
func (d *Detector) HorizonDays() int { return d.horizonDays }

// indexedSlot 已有事件的一次发生
type indexedSlot struct {
	slot    Slot
	eventID string
}

// FindOverlap 返回候选事件与已有事件最早冲突的发生日期（候选事件时区下的日历日）
//
// 候选系列按升序逐日惰性展开，找到第一个冲突立即返回；
// 已有事件先在扫描窗口内按起始日建索引。跨零点的时段会和前后日期的发生一并比较。
// 已有事件列表应事先排除候选自身及其血缘（见 ExcludeLineage），其他日历的事件直接忽略。
func (d *Detector) FindOverlap(candidate *model.Event, existing []model.Event) (time.Time, bool, error) {
	cs, err := NewSeries(candidate)
	if err != nil {
		return time.Time{}, false, err
	}
	loc := cs.Location()

	limit := AddDays(cs.WindowStart(), d.horizonDays)
	if until, ok := cs.Until(); ok && until.Before(limit) {
		limit = until
	}

	candSpan := spanDays(candidate.Duration())
	maxSpan := 0
	for i := range existing {
		if s := spanDays(existing[i].Duration()); s > maxSpan {
			maxSpan = s
		}
	}

	from := AddDays(cs.WindowStart(), -maxSpan)
	to := AddDays(limit, candSpan)
	index := make(map[int][]indexedSlot)
	for i := range existing {
		ev := &existing[i]
		if ev.CalendarID != candidate.CalendarID {
			continue
		}
		es, err := NewSeries(ev)
		if err != nil {
			// 已落库的数据理论上都通过过校验，坏数据不阻塞新的预约
			continue
		}
		for _, slot := range es.Slots(DateOf(from, es.Location()), DateOf(to, es.Location())) {
			key := dayKey(DateOf(slot.Start, loc))
			index[key] = append(index[key], indexedSlot{slot: slot, eventID: ev.EventID})
		}
	}
	if len(index) == 0 {
		return time.Time{}, false, nil
	}

	var (
		conflict time.Time
		found    bool
	)
	cs.Each(limit, func(day time.Time) bool {
		slot := cs.SlotOn(day)
		first := AddDays(DateOf(slot.Start, loc), -maxSpan)
		last := DateOf(slot.End, loc)
		for probe := first; !probe.After(last); probe = AddDays(probe, 1) {
			for _, other := range index[dayKey(probe)] {
				if slot.Overlaps(other.slot) {
					conflict, found = day, true
					return false
				}
			}
		}
		return true
	})
	return conflict, found, nil
}

// spanDays 时长跨越的整天数（向上取整），用于扩大比较范围
func spanDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + 24*time.Hour - 1) / (24 * time.Hour))
}

// ExcludeLineage 去掉属于 rootID 系列（根本身及其全部分支）的事件
func ExcludeLineage(events []model.Event, rootID string) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.EventID == rootID || ev.RootID() == rootID {
			continue
		}
		out = append(out, ev)
	}
	return out
}
