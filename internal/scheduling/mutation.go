package scheduling

import (
	"time"

	"crb/backend/internal/model"
)

// Scope 对重复系列中某次发生的编辑/删除范围
type Scope string

const (
	ScopeFollowing Scope = "following" // 该次及之后全部发生
	ScopeOnly      Scope = "only"      // 仅该次发生
)

// ParseScope 空串按 following 处理
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeFollowing:
		return ScopeFollowing, nil
	case ScopeOnly:
		return ScopeOnly, nil
	default:
		return "", invalid("scope", "仅支持 following / only")
	}
}

// Mutation 一次编辑或删除需要落库的全部变更
// 同一个 Mutation 必须在一个事务内提交
type Mutation struct {
	Updated []*model.Event
	Created []*model.Event
	Deleted []string
	// Primary 编辑后承载被编辑发生的记录；删除方案为 nil
	Primary *model.Event
}

// Empty 方案为空
func (m *Mutation) Empty() bool {
	return len(m.Updated) == 0 && len(m.Created) == 0 && len(m.Deleted) == 0
}

// OccurrenceSlot 系列在日期 day 上那次发生的时段，day 不是发生日期时返回 ValidationError
func OccurrenceSlot(ev *model.Event, day time.Time) (Slot, error) {
	s, err := NewSeries(ev)
	if err != nil {
		return Slot{}, err
	}
	d := CivilDate(day, s.Location())
	if !s.OccursOn(d) {
		return Slot{}, invalid("occurrence_date", d.Format(DateLayout)+" 不是该事件的发生日期")
	}
	return s.SlotOn(d), nil
}

// occurrence 定位被编辑/删除的那次发生
type occurrence struct {
	series  *Series
	day     time.Time
	start   time.Time
	isFirst bool
	next    time.Time
	hasNext bool
}

func locate(original *model.Event, day time.Time) (*occurrence, error) {
	s, err := NewSeries(original)
	if err != nil {
		return nil, err
	}
	d := CivilDate(day, s.Location())
	if !s.OccursOn(d) {
		return nil, invalid("occurrence_date", d.Format(DateLayout)+" 不是该事件的发生日期")
	}
	first, _ := s.First()
	next, hasNext := s.NextOnOrAfter(AddDays(d, 1))
	return &occurrence{
		series:  s,
		day:     d,
		start:   s.SlotOn(d).Start,
		isFirst: d.Equal(first),
		next:    next,
		hasNext: hasNext,
	}, nil
}

// ────── Edit ──────

// PlanEdit 生成编辑方案
//
// proposed 是编辑后的完整属性（由调用方在 original 基础上叠加改动得到），
// occurrence 是被编辑的那次发生的日期。
//
//   - 非重复事件或单次例外：原地更新
//   - following：被编辑发生之前的部分保留在原记录（end_repeat 截到前一天），
//     新建分支记录承接该次及之后的发生；编辑首次发生时直接原地更新
//   - only：原记录截断，新建单次例外记录，之后的发生由续接记录承接
//
// 承载被编辑发生的记录如果仍是重复系列，其 start_date 必须是自身的一次发生，
// 否则被编辑的日期不再落在任何记录上（例如每周一三的系列改到周四而 repeat_on 未包含周四）。
func PlanEdit(original, proposed *model.Event, occurrence time.Time, scope Scope) (*Mutation, error) {
	m, err := planEdit(original, proposed, occurrence, scope)
	if err != nil {
		return nil, err
	}
	if err := checkAnchor(m.Primary); err != nil {
		return nil, err
	}
	return m, nil
}

func planEdit(original, proposed *model.Event, occurrence time.Time, scope Scope) (*Mutation, error) {
	if !original.IsRecurring() {
		upd := inPlace(original, proposed)
		return &Mutation{Updated: []*model.Event{upd}, Primary: upd}, nil
	}

	occ, err := locate(original, occurrence)
	if err != nil {
		return nil, err
	}
	root := original.RootID()

	switch scope {
	case ScopeOnly:
		exception := newException(original, proposed, root, occ.start)
		if occ.isFirst {
			if !occ.hasNext {
				upd := inPlace(original, proposed)
				clearRepeat(upd)
				return &Mutation{Updated: []*model.Event{upd}, Primary: upd}, nil
			}
			return &Mutation{
				Updated: []*model.Event{advance(original, occ)},
				Created: []*model.Event{exception},
				Primary: exception,
			}, nil
		}
		m := &Mutation{
			Updated: []*model.Event{truncate(original, occ.day)},
			Created: []*model.Event{exception},
			Primary: exception,
		}
		if occ.hasNext {
			m.Created = append(m.Created, continuation(original, occ, root))
		}
		return m, nil

	default:
		if occ.isFirst {
			upd := inPlace(original, proposed)
			return &Mutation{Updated: []*model.Event{upd}, Primary: upd}, nil
		}
		branch := detach(proposed)
		branch.ParentID = &root
		branch.CalendarID = original.CalendarID
		branch.UserID = original.UserID
		start := occ.start
		branch.ExceptionTime = &start
		if branch.RepeatKind() != model.RepeatNone {
			follow := model.ExceptionEditAllFollow
			branch.ExceptionType = &follow
			sr := branch.StartDate
			branch.StartRepeat = &sr
		} else {
			only := model.ExceptionEditOnly
			branch.ExceptionType = &only
			clearRepeat(branch)
		}
		return &Mutation{
			Updated: []*model.Event{truncate(original, occ.day)},
			Created: []*model.Event{branch},
			Primary: branch,
		}, nil
	}
}

// ────── Delete ──────

// PlanDelete 生成删除某次发生的方案
//
//   - 非重复事件或单次例外：删除记录
//   - following：首次发生时删除整条记录，否则截断到前一天
//   - only：首次发生时窗口前移到下一次（没有下一次则删除），否则截断并新建续接记录
func PlanDelete(original *model.Event, occurrence time.Time, scope Scope) (*Mutation, error) {
	if !original.IsRecurring() {
		return &Mutation{Deleted: []string{original.EventID}}, nil
	}

	occ, err := locate(original, occurrence)
	if err != nil {
		return nil, err
	}

	if scope == ScopeOnly {
		if occ.isFirst {
			if !occ.hasNext {
				return &Mutation{Deleted: []string{original.EventID}}, nil
			}
			return &Mutation{Updated: []*model.Event{advance(original, occ)}}, nil
		}
		m := &Mutation{Updated: []*model.Event{truncate(original, occ.day)}}
		if occ.hasNext {
			m.Created = append(m.Created, continuation(original, occ, original.RootID()))
		}
		return m, nil
	}

	if occ.isFirst {
		return &Mutation{Deleted: []string{original.EventID}}, nil
	}
	return &Mutation{Updated: []*model.Event{truncate(original, occ.day)}}, nil
}

// checkAnchor 重复记录的起始日必须是它自己的一次发生
func checkAnchor(ev *model.Event) error {
	if ev == nil || !ev.IsRecurring() {
		return nil
	}
	s, err := NewSeries(ev)
	if err != nil {
		return err
	}
	d := DateOf(ev.StartDate, s.Location())
	if !s.OccursOn(d) {
		return invalid("start_date", d.Format(DateLayout)+" 不在该系列的重复日期内，请同时调整 repeat_on")
	}
	return nil
}

// ────── 记录构造 ──────

// inPlace 以 proposed 的属性覆盖 original，保留身份、血缘与版本号
func inPlace(original, proposed *model.Event) *model.Event {
	keep := original.Clone()
	upd := proposed.Clone()
	upd.EventID = keep.EventID
	upd.CalendarID = keep.CalendarID
	upd.UserID = keep.UserID
	upd.ParentID = keep.ParentID
	upd.ExceptionTime = keep.ExceptionTime
	upd.ExceptionType = keep.ExceptionType
	upd.VersionedModel = keep.VersionedModel
	upd.SetWeekdays(proposed.Weekdays())
	return upd
}

// truncate 原系列截止到 day 的前一天
func truncate(original *model.Event, day time.Time) *model.Event {
	upd := original.Clone()
	end := AddDays(day, -1)
	upd.EndRepeat = &end
	return upd
}

// advance 原系列窗口前移到下一次发生
func advance(original *model.Event, occ *occurrence) *model.Event {
	upd := original.Clone()
	pinWeekdays(upd)
	moveTo(upd, occ.series.SlotOn(occ.next))
	return upd
}

// continuation 被拆开的系列在该次发生之后的部分
func continuation(original *model.Event, occ *occurrence, root string) *model.Event {
	c := detach(original)
	pinWeekdays(c)
	c.ParentID = &root
	c.ExceptionTime = nil
	c.ExceptionType = nil
	moveTo(c, occ.series.SlotOn(occ.next))
	return c
}

// newException 只覆盖一次发生的例外记录
func newException(original, proposed *model.Event, root string, occStart time.Time) *model.Event {
	ex := detach(proposed)
	ex.ParentID = &root
	ex.CalendarID = original.CalendarID
	ex.UserID = original.UserID
	only := model.ExceptionEditOnly
	ex.ExceptionType = &only
	ex.ExceptionTime = &occStart
	clearRepeat(ex)
	return ex
}

// detach 复制为一条待新建的记录
func detach(ev *model.Event) *model.Event {
	c := ev.Clone()
	c.EventID = ""
	c.VersionedModel = model.VersionedModel{}
	c.SetWeekdays(ev.Weekdays())
	return c
}

func moveTo(ev *model.Event, slot Slot) {
	ev.StartDate = slot.Start
	ev.EndDate = slot.End
	sr := slot.Start
	ev.StartRepeat = &sr
}

// pinWeekdays 每周重复且未显式指定星期时，按当前起始日固定下来，避免移动起始日后星期漂移
func pinWeekdays(ev *model.Event) {
	if ev.RepeatKind() == model.RepeatWeekly && len(ev.Weekdays()) == 0 {
		ev.SetWeekdays([]int{isoWeekday(ev.StartDate.In(ev.StartDate.Location()))})
	}
}

func clearRepeat(ev *model.Event) {
	ev.RepeatType = nil
	ev.StartRepeat = nil
	ev.EndRepeat = nil
	ev.RepeatOns = nil
}
