package scheduling

import "time"

// DateLayout 日期格式
const DateLayout = "2006-01-02"

// DateOf 取 t 在 loc 下的日历日（零点）
func DateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// CivilDate 将只有日期含义的值（如 DATE 列）按字面年月日放到 loc
func CivilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// AddDays 日期加减天数
func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// At 将 clock 的时刻（按 clock 自身时区的钟面时间）放到日期 d 上
func At(d, clock time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), clock.Location())
}

// dayKey 跨时区比较日历日用的整数键
func dayKey(d time.Time) int {
	y, m, dd := d.Date()
	return y*10000 + int(m)*100 + dd
}

// isoWeekday 1=周一 … 7=周日
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
