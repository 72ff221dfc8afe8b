package sales

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout 区间查询与导出文件名使用的日期格式。
const DateLayout = "2006-01-02"

// WindowKind 报表时间窗口类型。
type WindowKind string

const (
	WindowToday    WindowKind = "today"
	WindowThisWeek WindowKind = "week"
	WindowRange    WindowKind = "range"
)

// Window 命名窗口或显式日期区间。Start/End 只取年月日。
type Window struct {
	Kind  WindowKind
	Start time.Time
	End   time.Time
}

// Today 当天窗口。
func Today() Window { return Window{Kind: WindowToday} }

// ThisWeek 本周窗口（周起始日见 Calendar.WeekStart）。
func ThisWeek() Window { return Window{Kind: WindowThisWeek} }

// Range 闭区间 [start, end]，start 晚于 end 返回 ErrInvalidRange。
func Range(start, end time.Time) (Window, error) {
	s := dateOnly(start)
	e := dateOnly(end)
	if s.After(e) {
		return Window{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, s.Format(DateLayout), e.Format(DateLayout))
	}
	return Window{Kind: WindowRange, Start: s, End: e}, nil
}

// ParseRange 解析 YYYY-MM-DD 形式的起止日期。
func ParseRange(start, end string) (Window, error) {
	s, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		return Window{}, validationf("start must be YYYY-MM-DD, got %q", start)
	}
	e, err := time.Parse(DateLayout, strings.TrimSpace(end))
	if err != nil {
		return Window{}, validationf("end must be YYYY-MM-DD, got %q", end)
	}
	return Range(s, e)
}

// ParseWindow 解析命名窗口：today / week。
func ParseWindow(name string) (Window, error) {
	switch WindowKind(strings.ToLower(strings.TrimSpace(name))) {
	case WindowToday:
		return Today(), nil
	case WindowThisWeek, "thisweek":
		return ThisWeek(), nil
	default:
		return Window{}, validationf("unknown window %q", name)
	}
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Calendar 决定窗口边界的本地日历：时区与每周起始日。
// 订单时间以 UTC 落库；窗口按本地日历计算后转换成 UTC 时刻再比较。
type Calendar struct {
	Location  *time.Location
	WeekStart time.Weekday
}

func (c Calendar) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// Bounds 返回窗口对应的 UTC 时刻区间 [from, until)。
//   - today：当地 now 所在日的 00:00 至次日 00:00
//   - week：本周起始日 00:00 至 now（含 now）
//   - range：Start 当日 00:00 至 End 次日 00:00
func (c Calendar) Bounds(w Window, now time.Time) (from, until time.Time, err error) {
	loc := c.location()
	local := now.In(loc)
	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)

	switch w.Kind {
	case WindowToday:
		from = midnight
		until = midnight.AddDate(0, 0, 1)
	case WindowThisWeek:
		offset := (int(local.Weekday()) - int(c.WeekStart) + 7) % 7
		from = midnight.AddDate(0, 0, -offset)
		until = now.Add(time.Nanosecond)
	case WindowRange:
		if w.Start.After(w.End) {
			return time.Time{}, time.Time{}, ErrInvalidRange
		}
		sy, sm, sd := w.Start.Date()
		ey, em, ed := w.End.Date()
		from = time.Date(sy, sm, sd, 0, 0, 0, 0, loc)
		until = time.Date(ey, em, ed, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	default:
		return time.Time{}, time.Time{}, validationf("unknown window %q", w.Kind)
	}
	return from.UTC(), until.UTC(), nil
}

// Contains 判断 createdAt 是否落在窗口内。
func (c Calendar) Contains(w Window, now, createdAt time.Time) (bool, error) {
	from, until, err := c.Bounds(w, now)
	if err != nil {
		return false, err
	}
	return !createdAt.Before(from) && createdAt.Before(until), nil
}

// Label 用于缓存键与导出文件名，如 "2024-06-10_2024-06-15"。
func (c Calendar) Label(w Window, now time.Time) string {
	loc := c.location()
	switch w.Kind {
	case WindowRange:
		return w.Start.Format(DateLayout) + "_" + w.End.Format(DateLayout)
	case WindowThisWeek:
		from, _, _ := c.Bounds(w, now)
		return from.In(loc).Format(DateLayout) + "_" + now.In(loc).Format(DateLayout)
	default:
		d := now.In(loc).Format(DateLayout)
		return d + "_" + d
	}
}
