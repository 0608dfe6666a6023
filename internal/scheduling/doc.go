// Package scheduling 重复事件排程与冲突检测引擎
//
// 职责划分（自底向上）：
//   - Series      重复规则模型 + 发生日期展开（基于 rrule-go，惰性迭代）
//   - Detector    候选事件与同日历已有事件的时段重叠检测，返回最早冲突日期
//   - Resolve     将冲突日期归类为 接受 / 整体拒绝 / 截断后接受
//   - PlanEdit / PlanDelete  对重复系列中单次发生的编辑与删除生成拆分方案
//
// 本包不做任何 I/O：读取与持久化由 service 层通过 Event Store 完成。
// 日期一律以事件自身时区下的"日历日"（零点）表示；时区数据库的正确性不在考虑范围内。
package scheduling
