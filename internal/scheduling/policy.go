package scheduling

import (
	"time"

	"crb/backend/internal/model"
)

// Resolution 冲突处理结论
type Resolution struct {
	Policy       Policy
	ConflictDate *time.Time
	// TruncateTo 截断后的 end_repeat（冲突日前一天），仅 PolicyTruncate 有值
	TruncateTo *time.Time
}

// Accepted 是否可以落库（截断后接受也算）
func (r Resolution) Accepted() bool {
	return r.Policy != PolicyRejectFull
}

// Err 非 ACCEPT 时转成 OverlapConflict
func (r Resolution) Err() error {
	if r.Policy == PolicyAccept || r.ConflictDate == nil {
		return nil
	}
	return &OverlapConflict{Policy: r.Policy, ConflictDate: *r.ConflictDate}
}

// Resolve 将最早冲突日期归类
//
//   - 无冲突 → ACCEPT
//   - 没有重复窗口，或冲突落在首次发生当天（及之前）→ REJECT_FULL
//   - 其余 → TRUNCATE，end_repeat 截到冲突日前一天
func Resolve(candidate *model.Event, conflict time.Time, found bool) Resolution {
	if !found {
		return Resolution{Policy: PolicyAccept}
	}
	c := conflict
	reject := Resolution{Policy: PolicyRejectFull, ConflictDate: &c}

	if candidate.StartRepeat == nil || !candidate.IsRecurring() {
		return reject
	}

	loc := candidate.StartDate.Location()
	first := DateOf(*candidate.StartRepeat, loc)
	if s, err := NewSeries(candidate); err == nil {
		if d, ok := s.First(); ok {
			first = d
		}
	}
	if !DateOf(conflict, loc).After(first) {
		return reject
	}

	to := AddDays(DateOf(conflict, loc), -1)
	return Resolution{Policy: PolicyTruncate, ConflictDate: &c, TruncateTo: &to}
}

// ApplyTruncation 按结论截断候选系列的 end_repeat
func ApplyTruncation(candidate *model.Event, r Resolution) {
	if r.Policy != PolicyTruncate || r.TruncateTo == nil {
		return
	}
	to := *r.TruncateTo
	candidate.EndRepeat = &to
}
